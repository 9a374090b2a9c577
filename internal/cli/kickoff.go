package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/analysis"
	"github.com/dyike/CortexVN/internal/crewconfig"
	"github.com/dyike/CortexVN/internal/storage"
)

// Analyzer runs one analysis and returns the final text.
type Analyzer interface {
	RunAnalysis(ctx context.Context, symbol, analysisType string) string
}

// AnalyzerFactory builds the analyzer of a run.
type AnalyzerFactory func(ctx context.Context, cfg *config.Config, out io.Writer) (Analyzer, error)

// historyAnalyzer owns the run history store of its runner.
type historyAnalyzer struct {
	*analysis.Runner
	store *storage.Store
}

func (a historyAnalyzer) Close() error {
	return a.store.Close()
}

// NewAnalyzer loads the crew definitions and builds an analysis runner.
// With history enabled the returned analyzer is an io.Closer.
func NewAnalyzer(ctx context.Context, cfg *config.Config, out io.Writer) (Analyzer, error) {
	crewCfg, err := crewconfig.Load(cfg.AgentsConfigPath, cfg.TasksConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load crew config: %w", err)
	}

	opts := []analysis.Option{analysis.WithOutput(out)}
	var store *storage.Store
	if cfg.HistoryEnabled {
		store, err = storage.NewStore(cfg.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		opts = append(opts, analysis.WithHistory(store))
	}

	runner, err := analysis.NewRunner(ctx, cfg, crewCfg, opts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	if store != nil {
		return historyAnalyzer{Runner: runner, store: store}, nil
	}
	return runner, nil
}

func closeAnalyzer(a Analyzer) {
	c, ok := a.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close analyzer")
	}
}

// Kickoff analyzes the default symbol with the default analysis type.
// A missing API key prints setup instructions and is not an error.
func Kickoff(ctx context.Context, cfg *config.Config, out io.Writer, factory AnalyzerFactory) error {
	fmt.Fprintln(out, "🚀 Starting CortexVN Financial Analysis Crew...")
	fmt.Fprintln(out, strings.Repeat("=", 60))

	if cfg.APIKey() == "" {
		env := cfg.APIKeyEnv()
		fmt.Fprintf(out, "❌ Error: %s environment variable not set.\n", env)
		fmt.Fprintf(out, "Please set your %s API key:\n", providerName(cfg.LLMProvider))
		fmt.Fprintf(out, "export %s='your-api-key-here'\n", env)
		return nil
	}

	if factory == nil {
		factory = NewAnalyzer
	}
	runner, err := factory(ctx, cfg, out)
	if err != nil {
		fmt.Fprintf(out, "❌ Error running CortexVN Financial Analysis Crew: %v\n", err)
		return reportedError{err}
	}
	defer closeAnalyzer(runner)

	symbol := cfg.DefaultSymbol
	fmt.Fprintf(out, "📊 Analyzing %s stock with CortexVN crew...\n", symbol)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	result := runner.RunAnalysis(ctx, symbol, cfg.DefaultAnalysisType)

	fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(out, "🎯 FINANCIAL ANALYSIS RESULTS")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, result)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, "✅ Analysis completed successfully!")
	return nil
}

func providerName(provider string) string {
	switch provider {
	case config.ProviderDeepSeek:
		return "DeepSeek"
	default:
		return "OpenAI"
	}
}
