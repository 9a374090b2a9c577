package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/storage"
)

var (
	columnStyle = lipgloss.NewStyle().Width(14)
	idStyle     = lipgloss.NewStyle().Width(38)
	statusStyle = map[string]lipgloss.Style{
		storage.StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Width(10),
		storage.StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Width(10),
		storage.StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Width(10),
	}
)

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded analysis runs",
		Long:  "List and show analysis runs recorded when HISTORY_ENABLED is set",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the latest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withHistory(cmd.OutOrStdout(), cfg, func(store *storage.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				displayRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	listCmd.Flags().IntP("limit", "n", 20, "Number of runs to list, 0 for all")

	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the task outputs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.OutOrStdout(), cfg, func(store *storage.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				displayRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	historyCmd.AddCommand(listCmd, showCmd)
	return historyCmd
}

func withHistory(out io.Writer, cfg *config.Config, fn func(*storage.Store) error) error {
	if !cfg.HistoryEnabled {
		fmt.Fprintln(out, "⚠️  Run history is disabled. Set HISTORY_ENABLED=true to record runs.")
		return nil
	}
	store, err := storage.NewStore(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func displayRuns(w io.Writer, runs []storage.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet")
		return
	}
	fmt.Fprintln(w, idStyle.Render("RUN ID")+columnStyle.Render("SYMBOL")+columnStyle.Render("TYPE")+
		lipgloss.NewStyle().Width(10).Render("STATUS")+"STARTED")
	for _, run := range runs {
		fmt.Fprintln(w, idStyle.Render(run.ID)+columnStyle.Render(run.Symbol)+columnStyle.Render(run.AnalysisType)+
			renderStatus(run.Status)+run.StartedAt.Local().Format(time.DateTime))
	}
}

func displayRun(w io.Writer, run *storage.RunRecord) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📊 %s · %s analysis", run.Symbol, run.AnalysisType)))
	displayField(w, "Run ID:", run.ID)
	displayField(w, "Status:", renderStatus(run.Status))
	displayField(w, "Started:", run.StartedAt.Local().Format(time.DateTime))
	if !run.FinishedAt.IsZero() {
		displayField(w, "Duration:", run.Duration().Round(time.Millisecond))
	}
	if run.Error != "" {
		displayField(w, "Error:", errorStyle.Render(run.Error))
	}
	for _, task := range run.Tasks {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintf(w, "📝 %s (%s)\n", task.Name, task.Agent)
		fmt.Fprintln(w, strings.Repeat("─", 60))
		fmt.Fprintln(w, task.Raw)
	}
}

func renderStatus(status string) string {
	style, ok := statusStyle[status]
	if !ok {
		style = lipgloss.NewStyle().Width(10)
	}
	return style.Render(status)
}
