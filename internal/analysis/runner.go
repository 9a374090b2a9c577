package analysis

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/agents"
	"github.com/dyike/CortexVN/internal/crew"
	"github.com/dyike/CortexVN/internal/crewconfig"
	"github.com/dyike/CortexVN/internal/dataflows"
	"github.com/dyike/CortexVN/internal/report"
	"github.com/dyike/CortexVN/internal/storage"
	"github.com/dyike/CortexVN/internal/tools"
)

// DataSource provides the market data of a symbol.
type DataSource interface {
	FetchFinancialData(ctx context.Context, symbol string) (*dataflows.Dataset, error)
	CompanyInfo(ctx context.Context, symbol string) dataflows.CompanyInfo
}

// Exporter persists the task outputs of a run.
type Exporter interface {
	Export(symbol, analysisType string, outputs []string) []string
}

// History records every run and its task outputs.
type History interface {
	BeginRun(ctx context.Context, id, symbol, analysisType string) error
	FinishRun(ctx context.Context, id string, tasks []storage.TaskRecord, runErr error) error
}

// Runner fetches data, runs the analysis crew and exports the reports.
type Runner struct {
	cfg      *config.Config
	crewCfg  *crewconfig.Config
	agents   map[string]*crew.Agent
	order    []*crew.Agent
	data     DataSource
	exporter Exporter
	history  History
	out      io.Writer

	chatModel model.ToolCallingChatModel
	registry  *tools.Registry
}

type Option func(*Runner)

func WithChatModel(m model.ToolCallingChatModel) Option {
	return func(r *Runner) {
		r.chatModel = m
	}
}

func WithDataSource(ds DataSource) Option {
	return func(r *Runner) {
		r.data = ds
	}
}

func WithRegistry(reg *tools.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

func WithExporter(e Exporter) Option {
	return func(r *Runner) {
		r.exporter = e
	}
}

// WithHistory records runs in h. Runs are not recorded by default.
func WithHistory(h History) Option {
	return func(r *Runner) {
		r.history = h
	}
}

// WithOutput sets where the status lines are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// NewRunner builds the chat model, the tools and one agent per configured definition.
func NewRunner(ctx context.Context, cfg *config.Config, crewCfg *crewconfig.Config, opts ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg, crewCfg: crewCfg, out: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}

	if r.chatModel == nil {
		m, err := agents.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.chatModel = m
	}
	if r.registry == nil {
		r.registry = tools.NewRegistry(cfg)
	}
	if r.data == nil {
		r.data = dataflows.NewFetcherFromConfig(cfg)
	}
	if r.exporter == nil {
		r.exporter = report.NewWriter(cfg.ReportsDir, r.out)
	}

	r.agents = make(map[string]*crew.Agent, len(crewCfg.Agents))
	for _, name := range crewCfg.AgentNames() {
		ac := crewCfg.Agents[name]
		agentTools, err := r.registry.ForAgent(ac)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		a := crew.NewAgent(name, ac, r.chatModel, agentTools)
		r.agents[name] = a
		r.order = append(r.order, a)
	}
	return r, nil
}

// Run analyzes symbol with the financial and news tasks and exports both reports.
func (r *Runner) Run(ctx context.Context, symbol, analysisType string) (*crew.CrewOutput, error) {
	runID := uuid.NewString()
	symbol = dataflows.NormalizeSymbol(symbol)
	r.beginRun(ctx, runID, symbol, analysisType)
	out, err := r.run(ctx, runID, symbol, analysisType)
	r.finishRun(ctx, runID, out, err)
	return out, err
}

func (r *Runner) run(ctx context.Context, runID, symbol, analysisType string) (*crew.CrewOutput, error) {
	if err := dataflows.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if _, err := TaskNameFor(analysisType); err != nil {
		return nil, err
	}

	company := r.data.CompanyInfo(ctx, symbol)
	ds, err := r.data.FetchFinancialData(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("financial data unavailable")
	}

	tc := TaskContext{Symbol: symbol, Company: company, Dataset: ds}
	analysisTask, err := NewAnalysisTask(ctx, r.crewCfg, r.agents, analysisType, tc)
	if err != nil {
		return nil, err
	}

	industry := company.Industry
	if industry == "" {
		industry = "N/A"
	}
	r.printf("📊 Company Info: %s (%s) - Industry: %s\n", company.Name, symbol, industry)

	newsTask, err := NewNewsTask(ctx, r.crewCfg, r.agents, tc)
	if err != nil {
		return nil, err
	}

	c := &crew.Crew{
		RunID:   runID,
		Agents:  r.order,
		Tasks:   []*crew.Task{analysisTask, newsTask},
		Process: crew.ProcessSequential,
		Verbose: true,
		Memory:  true,
	}

	r.printf("🚀 Starting financial analysis and news research for %s...\n", symbol)
	out, err := c.Kickoff(ctx)
	if err != nil {
		return nil, err
	}
	r.printf("✅ Analysis and news research completed for %s\n", symbol)

	r.exporter.Export(symbol, analysisType, out.Outputs())
	return out, nil
}

// RunAnalysis is Run with the error folded into the returned text.
func (r *Runner) RunAnalysis(ctx context.Context, symbol, analysisType string) string {
	out, err := r.Run(ctx, symbol, analysisType)
	if err != nil {
		msg := fmt.Sprintf("❌ Error during analysis: %v", err)
		r.printf("%s\n", msg)
		return msg
	}
	return out.Raw()
}

func (r *Runner) beginRun(ctx context.Context, runID, symbol, analysisType string) {
	if r.history == nil {
		return
	}
	if err := r.history.BeginRun(ctx, runID, symbol, analysisType); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to record run start")
	}
}

func (r *Runner) finishRun(ctx context.Context, runID string, out *crew.CrewOutput, runErr error) {
	if r.history == nil {
		return
	}
	var tasks []storage.TaskRecord
	if out != nil {
		for i, t := range out.TasksOutput {
			tasks = append(tasks, storage.TaskRecord{Position: i, Name: t.Name, Agent: t.Agent, Raw: t.Raw, Plan: t.Plan})
		}
	}
	// the run context may already be cancelled
	if err := r.history.FinishRun(context.WithoutCancel(ctx), runID, tasks, runErr); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to record run result")
	}
}

func (r *Runner) printf(format string, args ...any) {
	if r.out != nil {
		fmt.Fprintf(r.out, format, args...)
	}
}
