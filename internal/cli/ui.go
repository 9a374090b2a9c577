package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	taglineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	resultStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(1, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(24)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// DisplayWelcomeBanner shows the welcome banner
func DisplayWelcomeBanner(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("CortexVN"))
	fmt.Fprintln(w, taglineStyle.Render("Multi-agent financial analysis for the Vietnamese stock market"))
	fmt.Fprintln(w)
}

// DisplayAnalysisHeader shows the symbol and analysis type of a run.
func DisplayAnalysisHeader(w io.Writer, symbol, analysisType string) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📊 %s · %s analysis", symbol, analysisType)))
}

// DisplayResult renders the final crew output in a bordered panel.
func DisplayResult(w io.Writer, result string) {
	if strings.HasPrefix(result, "❌") {
		fmt.Fprintln(w, errorStyle.Render(result))
		return
	}
	fmt.Fprintln(w, resultStyle.Render(strings.TrimSpace(result)))
}

func displayField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s%v\n", labelStyle.Render(label), value)
}

func configured(ok bool) string {
	if ok {
		return "✅ Configured"
	}
	return "❌ Not configured"
}
