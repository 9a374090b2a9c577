// Package cleanup removes generated reports and vector-store lock files.
package cleanup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phuslu/log"
)

// Files are the generated documents removed by Run.
var Files = []string{"report.md", "news.md", "executive_summary.md"}

const lockPattern = "chromadb-*.lock"

type Result struct {
	Deleted   []string
	Missing   []string
	LockFiles int
	Errors    []error
}

// Run deletes the generated reports in reportsDir and the ChromaDB lock files in
// lockDir, reporting each step on out. An empty directory means the working directory.
// A failure is printed and the remaining files are still processed.
func Run(reportsDir, lockDir string, out io.Writer) Result {
	if reportsDir == "" {
		reportsDir = "."
	}
	if lockDir == "" {
		lockDir = "."
	}
	var res Result

	fmt.Fprintln(out, "Deleting report files and temporary database files...")
	for _, name := range Files {
		err := os.Remove(filepath.Join(reportsDir, name))
		switch {
		case err == nil:
			res.Deleted = append(res.Deleted, name)
			fmt.Fprintf(out, "Deleted: %s\n", name)
		case errors.Is(err, os.ErrNotExist):
			res.Missing = append(res.Missing, name)
			fmt.Fprintf(out, "File not found: %s\n", name)
		default:
			res.Errors = append(res.Errors, err)
			fmt.Fprintf(out, "Error deleting %s: %v\n", name, err)
		}
	}

	fmt.Fprintln(out, "Cleaning up ChromaDB lock files...")
	locks, err := filepath.Glob(filepath.Join(lockDir, lockPattern))
	if err != nil {
		res.Errors = append(res.Errors, err)
		fmt.Fprintf(out, "Error cleaning ChromaDB lock files: %v\n", err)
	}
	for _, path := range locks {
		name := filepath.Base(path)
		if err := os.Remove(path); err != nil {
			res.Errors = append(res.Errors, err)
			fmt.Fprintf(out, "Error deleting %s: %v\n", name, err)
			continue
		}
		res.LockFiles++
		res.Deleted = append(res.Deleted, name)
		fmt.Fprintf(out, "Deleted: %s\n", name)
	}
	if len(locks) == 0 {
		fmt.Fprintln(out, "No ChromaDB lock files found")
	} else {
		fmt.Fprintf(out, "Deleted %d ChromaDB lock files\n", res.LockFiles)
	}

	fmt.Fprintln(out, "Done!")
	log.Debug().Str("reports_dir", reportsDir).Str("lock_dir", lockDir).Int("deleted", len(res.Deleted)).Int("errors", len(res.Errors)).Msg("cleanup finished")
	return res
}
