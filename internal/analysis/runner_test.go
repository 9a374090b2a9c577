package analysis

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/crewconfig"
	"github.com/dyike/CortexVN/internal/dataflows"
	"github.com/dyike/CortexVN/internal/report"
	"github.com/dyike/CortexVN/internal/storage"
)

type scriptedModel struct {
	mu      *sync.Mutex
	prompts *[]string
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{mu: &sync.Mutex{}, prompts: &[]string{}}
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	last := input[len(input)-1].Content
	m.mu.Lock()
	*m.prompts = append(*m.prompts, last)
	m.mu.Unlock()

	switch {
	case strings.Contains(last, "create a detailed plan"), strings.Contains(last, "Refine your plan"):
		return schema.AssistantMessage("1. read the data\nREADY: I am ready to execute the task.", nil), nil
	case strings.Contains(last, "Research recent news"):
		return schema.AssistantMessage("news findings", nil), nil
	case strings.Contains(last, "FETCHED DATA FOR PANDAS OPERATIONS"):
		return schema.AssistantMessage("analysis findings", nil), nil
	default:
		return schema.AssistantMessage("unexpected prompt", nil), nil
	}
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

type fakeSource struct {
	ds      *dataflows.Dataset
	err     error
	company dataflows.CompanyInfo
}

func (f *fakeSource) FetchFinancialData(ctx context.Context, symbol string) (*dataflows.Dataset, error) {
	if f.err != nil {
		return &dataflows.Dataset{Symbol: symbol}, f.err
	}
	return f.ds, nil
}

func (f *fakeSource) CompanyInfo(ctx context.Context, symbol string) dataflows.CompanyInfo {
	return f.company
}

func newTestRunner(t *testing.T, src DataSource, out *bytes.Buffer, opts ...Option) (*Runner, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ReportsDir = t.TempDir()

	crewCfg, err := crewconfig.Default()
	require.NoError(t, err)

	opts = append([]Option{
		WithChatModel(newScriptedModel()),
		WithDataSource(src),
		WithOutput(out),
	}, opts...)
	r, err := NewRunner(context.Background(), cfg, crewCfg, opts...)
	require.NoError(t, err)
	return r, cfg.ReportsDir
}

func TestRunnerRun(t *testing.T) {
	var out bytes.Buffer
	src := &fakeSource{
		ds:      sampleDataset(),
		company: dataflows.CompanyInfo{Symbol: "REE", Name: "REE Corporation", Industry: "Electricity"},
	}
	r, dir := newTestRunner(t, src, &out)

	result, err := r.Run(context.Background(), " ree ", TypeComprehensive)
	require.NoError(t, err)
	require.Len(t, result.TasksOutput, 2)
	assert.Equal(t, "analysis findings", result.TasksOutput[0].Raw)
	assert.Equal(t, "news findings", result.Raw())
	assert.Contains(t, result.TasksOutput[0].Plan, "READY")

	printed := out.String()
	assert.Contains(t, printed, "📊 Company Info: REE Corporation (REE) - Industry: Electricity\n")
	assert.Contains(t, printed, "🚀 Starting financial analysis and news research for REE...\n")
	assert.Contains(t, printed, "✅ Analysis and news research completed for REE\n")
	assert.Contains(t, printed, "✅ Report exported to report.md\n")
	assert.Contains(t, printed, "✅ News report exported to news.md\n")

	body, err := os.ReadFile(filepath.Join(dir, report.ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(body), "analysis findings")
	news, err := os.ReadFile(filepath.Join(dir, report.NewsFile))
	require.NoError(t, err)
	assert.Contains(t, string(news), "# REE - Recent News & Market Intelligence")
}

func TestRunAnalysisNoData(t *testing.T) {
	var out bytes.Buffer
	src := &fakeSource{
		err:     fmt.Errorf("fetch financial data for REE: %w", dataflows.ErrNoData),
		company: dataflows.CompanyInfo{Symbol: "REE", Name: "REE"},
	}
	r, dir := newTestRunner(t, src, &out)

	got := r.RunAnalysis(context.Background(), "REE", TypeComprehensive)
	assert.Equal(t, "❌ Error during analysis: could not fetch financial data for REE", got)
	assert.Contains(t, out.String(), got+"\n")
	assert.NotContains(t, out.String(), "📊 Company Info")
	assert.NoFileExists(t, filepath.Join(dir, report.ReportFile))
}

func TestRunAnalysisUnknownType(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRunner(t, &fakeSource{ds: sampleDataset()}, &out)

	got := r.RunAnalysis(context.Background(), "REE", "valuation")
	assert.Equal(t, "❌ Error during analysis: unknown analysis type: valuation", got)
}

func TestRunAnalysisInvalidSymbol(t *testing.T) {
	var out bytes.Buffer
	r, _ := newTestRunner(t, &fakeSource{ds: sampleDataset()}, &out)

	got := r.RunAnalysis(context.Background(), "   ", TypeComprehensive)
	assert.True(t, strings.HasPrefix(got, "❌ Error during analysis: "))
}

func TestNewRunnerMissingKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMProvider = config.ProviderOpenAI
	cfg.OpenAIAPIKey = ""
	crewCfg, err := crewconfig.Default()
	require.NoError(t, err)

	_, err = NewRunner(context.Background(), cfg, crewCfg)
	assert.Error(t, err)
}

func newTestHistory(t *testing.T) *storage.Store {
	t.Helper()
	h, err := storage.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRunnerRecordsHistory(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	var out bytes.Buffer
	src := &fakeSource{ds: sampleDataset(), company: dataflows.CompanyInfo{Symbol: "REE", Name: "REE"}}
	r, _ := newTestRunner(t, src, &out, WithHistory(h))

	result, err := r.Run(ctx, "REE", TypeProfitability)
	require.NoError(t, err)

	run, err := h.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusDone, run.Status)
	assert.Equal(t, "REE", run.Symbol)
	assert.Equal(t, TypeProfitability, run.AnalysisType)
	require.Len(t, run.Tasks, 2)
	assert.Equal(t, TaskProfitabilityAnalysis, run.Tasks[0].Name)
	assert.Equal(t, "analysis findings", run.Tasks[0].Raw)
	assert.Equal(t, TaskNewsResearch, run.Tasks[1].Name)
}

func TestRunnerRecordsFailedRun(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	var out bytes.Buffer
	src := &fakeSource{err: dataflows.ErrNoData, company: dataflows.CompanyInfo{Symbol: "VNM"}}
	r, _ := newTestRunner(t, src, &out, WithHistory(h))

	_, err := r.Run(ctx, "VNM", TypeComprehensive)
	require.Error(t, err)

	runs, err := h.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusError, runs[0].Status)
	assert.Equal(t, "could not fetch financial data for VNM", runs[0].Error)
}

func TestRunnerRecordsRejectedInput(t *testing.T) {
	ctx := context.Background()
	h := newTestHistory(t)
	var out bytes.Buffer
	r, _ := newTestRunner(t, &fakeSource{ds: sampleDataset()}, &out, WithHistory(h))

	_, err := r.Run(ctx, "REE", "valuation")
	require.Error(t, err)
	_, err = r.Run(ctx, "   ", TypeComprehensive)
	require.Error(t, err)

	runs, err := h.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, storage.StatusError, run.Status)
		assert.NotEmpty(t, run.Error)
	}
	types := []string{runs[0].AnalysisType, runs[1].AnalysisType}
	assert.ElementsMatch(t, []string{"valuation", TypeComprehensive}, types)
}
