// Package cli provides the command-line interface for CortexVN
package cli

import (
	"errors"
	"fmt"
	"os"
)

// reportedError has already been printed for the user.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
