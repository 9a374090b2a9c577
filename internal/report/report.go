// Package report writes the analysis and news outputs as Markdown files.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ReportFile = "report.md"
	NewsFile   = "news.md"

	timestampLayout = "2006-01-02 15:04:05"
)

// Writer exports crew outputs into Dir.
type Writer struct {
	Dir string
	Now func() time.Time
	Out io.Writer
}

func NewWriter(dir string, out io.Writer) *Writer {
	return &Writer{Dir: dir, Now: time.Now, Out: out}
}

// Export writes report.md from the first output and news.md from the second.
// Failures are logged and skipped. It returns the paths written.
func (w *Writer) Export(symbol, analysisType string, outputs []string) []string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().Format(timestampLayout)

	var written []string
	if len(outputs) > 0 {
		if path, err := w.write(ReportFile, AnalysisReport(symbol, analysisType, ts, outputs[0])); err != nil {
			w.warn(err)
		} else {
			written = append(written, path)
			w.println("✅ Report exported to " + ReportFile)
		}
	}
	if len(outputs) > 1 {
		if path, err := w.write(NewsFile, NewsReport(symbol, ts, outputs[1])); err != nil {
			w.warn(err)
		} else {
			written = append(written, path)
			w.println("✅ News report exported to " + NewsFile)
		}
	}
	return written
}

// AnalysisReport renders the financial analysis document.
func AnalysisReport(symbol, analysisType, ts, body string) string {
	var sb strings.Builder
	sb.WriteString("# Financial Analysis Report\n\n")
	fmt.Fprintf(&sb, "**Stock Symbol:** %s  \n", symbol)
	fmt.Fprintf(&sb, "**Analysis Type:** %s  \n", titleCase(analysisType))
	fmt.Fprintf(&sb, "**Generated:** %s  \n", ts)
	sb.WriteString("**Generated by:** CortexVN Financial Analysis Crew\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("*This report was automatically generated by the CortexVN Financial Analysis Crew.*\n")
	return sb.String()
}

// NewsReport renders the news research document.
func NewsReport(symbol, ts, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s - Recent News & Market Intelligence\n\n", symbol)
	fmt.Fprintf(&sb, "**Generated on:** %s\n\n", ts)
	sb.WriteString("---\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString("*This report was generated using CortexVN with news research capabilities.*\n")
	return sb.String()
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func (w *Writer) write(name, content string) (string, error) {
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("bytes", len(content)).Msg("report written")
	return path, nil
}

func (w *Writer) warn(err error) {
	log.Warn().Err(err).Msg("could not export reports")
	w.println(fmt.Sprintf("⚠️ Warning: Could not export reports: %v", err))
}

func (w *Writer) println(line string) {
	if w.Out != nil {
		fmt.Fprintln(w.Out, line)
	}
}
