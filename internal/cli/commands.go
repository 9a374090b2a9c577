package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/analysis"
	"github.com/dyike/CortexVN/internal/cleanup"
	"github.com/dyike/CortexVN/internal/crewconfig"
	"github.com/dyike/CortexVN/internal/dataflows"
	"github.com/dyike/CortexVN/internal/debug"
	"github.com/dyike/CortexVN/internal/logging"
)

const Version = "v1.0.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	return newRootCmd(cfg, NewAnalyzer)
}

func newRootCmd(cfg *config.Config, factory AnalyzerFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortexvn",
		Short: "CortexVN - AI-Powered Vietnamese Stock Analysis",
		Long: `CortexVN runs a crew of LLM agents over Vietnamese stock market data.
A financial analyst reads the statements, ratios and dividends of a ticker and a
news researcher searches the web for recent developments. Both write Markdown reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if needsValidConfig(cmd) {
				if err := cfg.Validate(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "❌ Invalid configuration: %v\n", err)
					fmt.Fprintln(cmd.ErrOrStderr(), "Run 'cortexvn config validate' for details.")
					return reportedError{err}
				}
			}

			debugMode, _ := cmd.Flags().GetBool("debug")
			cfg.Debug = cfg.Debug || debugMode
			logging.Setup(cfg.LogLevel, cfg.Debug)

			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			if err := debug.NewEinoDebugger(cfg).Initialize(cmd.Context()); err != nil {
				log.Warn().Err(err).Msg("eino debugger disabled")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return Kickoff(cmd.Context(), cfg, cmd.OutOrStdout(), factory)
		},
	}

	rootCmd.AddCommand(newRunCmd(cfg, factory))
	rootCmd.AddCommand(newAnalyzeCmd(cfg, factory))
	rootCmd.AddCommand(newInteractiveCmd(cfg, factory))
	rootCmd.AddCommand(newCleanupCmd(cfg))
	rootCmd.AddCommand(newHistoryCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	return rootCmd
}

// needsValidConfig is false for the commands that must work with a broken configuration.
func needsValidConfig(cmd *cobra.Command) bool {
	switch cmd.CommandPath() {
	case "cortexvn version", "cortexvn config validate", "cortexvn help":
		return false
	}
	return true
}

func newRunCmd(cfg *config.Config, factory AnalyzerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the crew on the default symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Kickoff(cmd.Context(), cfg, cmd.OutOrStdout(), factory)
		},
	}
}

func newAnalyzeCmd(cfg *config.Config, factory AnalyzerFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [SYMBOL]",
		Short: "Run the financial analysis and news research for a stock symbol",
		Long: `Run the analysis crew for a given Vietnamese ticker.
Example: cortexvn analyze VNM --type=profitability`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysisType, _ := cmd.Flags().GetString("type")
			return runAnalyzeCommand(cmd.Context(), cfg, factory, cmd.OutOrStdout(), args[0], analysisType)
		},
	}

	cmd.Flags().StringP("type", "t", cfg.DefaultAnalysisType,
		"Analysis type: "+strings.Join(analysis.Types, ", "))

	return cmd
}

func newInteractiveCmd(cfg *config.Config, factory AnalyzerFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Choose the symbol and analysis type interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveMode(cmd.Context(), cfg, factory, cmd.OutOrStdout())
		},
	}
}

func newCleanupCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete generated reports and ChromaDB lock files",
		Run: func(cmd *cobra.Command, args []string) {
			cleanup.Run(cfg.ReportsDir, cfg.ProjectDir, cmd.OutOrStdout())
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CortexVN %s\n", Version)
			fmt.Fprintln(out, "Multi-agent financial analysis for the Vietnamese stock market")
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Inspect and validate CortexVN configuration settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cmd.OutOrStdout(), cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and crew definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), cfg)
		},
	})

	return configCmd
}

func runAnalyzeCommand(ctx context.Context, cfg *config.Config, factory AnalyzerFactory, out io.Writer, symbol, analysisType string) error {
	if err := dataflows.ValidateSymbol(symbol); err != nil {
		return err
	}
	symbol = dataflows.NormalizeSymbol(symbol)
	if _, err := analysis.TaskNameFor(analysisType); err != nil {
		return err
	}
	if cfg.APIKey() == "" {
		return fmt.Errorf("%s environment variable not set", cfg.APIKeyEnv())
	}

	if factory == nil {
		factory = NewAnalyzer
	}
	runner, err := factory(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}
	defer closeAnalyzer(runner)

	DisplayAnalysisHeader(out, symbol, analysisType)
	result := runner.RunAnalysis(ctx, symbol, analysisType)
	DisplayResult(out, result)
	if strings.HasPrefix(result, "❌") {
		return errors.New("analysis failed")
	}
	return nil
}

func runInteractiveMode(ctx context.Context, cfg *config.Config, factory AnalyzerFactory, out io.Writer) error {
	DisplayWelcomeBanner(out)

	for {
		symbol, err := PromptForTicker(cfg.DefaultSymbol)
		if err != nil {
			return promptErr(out, err)
		}
		analysisType, err := PromptForAnalysisType(cfg.DefaultAnalysisType)
		if err != nil {
			return promptErr(out, err)
		}

		if err := runAnalyzeCommand(ctx, cfg, factory, out, symbol, analysisType); err != nil {
			fmt.Fprintf(out, "❌ Analysis failed: %v\n", err)
		}
		fmt.Fprintln(out, "\n"+strings.Repeat("-", 60))

		again, err := PromptForAnother()
		if err != nil {
			return promptErr(out, err)
		}
		if !again {
			fmt.Fprintln(out, "👋 Thank you for using CortexVN!")
			return nil
		}
	}
}

func promptErr(out io.Writer, err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		fmt.Fprintln(out, "👋 Thank you for using CortexVN!")
		return nil
	}
	return err
}

// showConfig displays the current configuration
func showConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "📋 Current CortexVN Configuration:")
	fmt.Fprintln(out, "═══════════════════════════════════════")
	displayField(out, "Project Directory:", cfg.ProjectDir)
	displayField(out, "Reports Directory:", cfg.ReportsDir)
	displayField(out, "Cache Directory:", cfg.DataCacheDir)
	displayField(out, "Cache Enabled:", cfg.CacheEnabled)
	fmt.Fprintln(out)
	displayField(out, "LLM Provider:", cfg.LLMProvider)
	displayField(out, "Model:", cfg.Model)
	displayField(out, "Backend URL:", cfg.BackendURL)
	displayField(out, "Max Tokens:", cfg.MaxTokens)
	fmt.Fprintln(out)
	displayField(out, "Report Period:", cfg.Period)
	displayField(out, "Report Language:", cfg.Lang)
	displayField(out, "Code Interpreter:", cfg.CodeInterpreterMode)
	displayField(out, "Agents Config:", cfg.AgentsConfigPath)
	displayField(out, "Tasks Config:", cfg.TasksConfigPath)
	displayField(out, "Default Symbol:", cfg.DefaultSymbol)
	displayField(out, "Run History:", cfg.HistoryEnabled)
	if cfg.HistoryEnabled {
		displayField(out, "History Database:", cfg.HistoryDBPath)
	}
	displayField(out, "Debug Mode:", cfg.Debug)
	displayField(out, "Eino Debug:", cfg.EinoDebugEnabled)
	if url := debug.NewEinoDebugger(cfg).GetDebugURL(); url != "" {
		displayField(out, "Debug URL:", url)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "🔌 API Configuration:")
	fmt.Fprintln(out, "─────────────────────")
	displayField(out, cfg.APIKeyEnv()+":", configured(cfg.APIKey() != ""))
	displayField(out, "BRAVE_API_KEY:", configured(cfg.BraveAPIKey != ""))
}

// validateConfig validates the configuration and the crew definitions
func validateConfig(out io.Writer, cfg *config.Config) error {
	fmt.Fprintln(out, "🔍 Validating CortexVN Configuration...")
	fmt.Fprintln(out, "═══════════════════════════════════════")

	fmt.Fprint(out, "⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "❌")
		return err
	}
	fmt.Fprintln(out, "✅")

	fmt.Fprint(out, "🤖 Checking agents and tasks... ")
	crewCfg, err := crewconfig.Load(cfg.AgentsConfigPath, cfg.TasksConfigPath)
	if err != nil {
		fmt.Fprintln(out, "❌")
		return err
	}
	for _, typ := range analysis.Types {
		name, _ := analysis.TaskNameFor(typ)
		if _, ok := crewCfg.Task(name); !ok {
			fmt.Fprintln(out, "❌")
			return fmt.Errorf("task %s is not configured", name)
		}
	}
	if _, ok := crewCfg.Task(analysis.TaskNewsResearch); !ok {
		fmt.Fprintln(out, "❌")
		return fmt.Errorf("task %s is not configured", analysis.TaskNewsResearch)
	}
	fmt.Fprintln(out, "✅")

	fmt.Fprint(out, "🔑 Checking API keys... ")
	var warnings []string
	if cfg.APIKey() == "" {
		warnings = append(warnings, cfg.APIKeyEnv()+" not configured")
	}
	if cfg.BraveAPIKey == "" {
		warnings = append(warnings, "BRAVE_API_KEY not configured, news research will have no search results")
	}
	if len(warnings) > 0 {
		fmt.Fprintln(out, "⚠️")
		for _, warning := range warnings {
			fmt.Fprintf(out, "  ⚠️  %s\n", warning)
		}
	} else {
		fmt.Fprintln(out, "✅")
	}

	fmt.Fprintln(out)
	if len(warnings) == 0 {
		fmt.Fprintln(out, "✅ Configuration validation completed successfully!")
	} else {
		fmt.Fprintf(out, "⚠️  Configuration validation completed with %d warnings.\n", len(warnings))
	}
	return nil
}
