// Package analysis turns fetched market data into crew tasks and runs them.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexVN/internal/crew"
	"github.com/dyike/CortexVN/internal/crewconfig"
	"github.com/dyike/CortexVN/internal/dataflows"
)

// Analysis types accepted by the runner.
const (
	TypeComprehensive = "comprehensive"
	TypeProfitability = "profitability"
	TypeLiquidity     = "liquidity"
)

var Types = []string{TypeComprehensive, TypeProfitability, TypeLiquidity}

const (
	TaskFinancialAnalysis     = "financial_analysis"
	TaskProfitabilityAnalysis = "profitability_analysis"
	TaskLiquidityAnalysis     = "liquidity_analysis"
	TaskNewsResearch          = "news_research"
)

var (
	ErrUnknownAnalysisType = errors.New("unknown analysis type")
	ErrNoFinancialData     = errors.New("could not fetch financial data")
)

// TaskNameFor maps an analysis type onto its task definition.
func TaskNameFor(analysisType string) (string, error) {
	switch analysisType {
	case TypeComprehensive:
		return TaskFinancialAnalysis, nil
	case TypeProfitability:
		return TaskProfitabilityAnalysis, nil
	case TypeLiquidity:
		return TaskLiquidityAnalysis, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAnalysisType, analysisType)
	}
}

var contextSections = []struct {
	table   string
	prefix  string
	comment string
}{
	{dataflows.TableIncomeStatement, "income_statement", "Income Statement DataFrame (use this exact data):"},
	{dataflows.TableBalanceSheet, "balance_sheet", "Balance Sheet DataFrame (use this to query key financial metrics):"},
	{dataflows.TableFinancialRatios, "financial_ratios", "Financial Ratios DataFrame (use this exact data):"},
	{dataflows.TableCashFlow, "cash_flow", "Cash Flow DataFrame (use this exact data):"},
	{dataflows.TableDividendSchedule, "dividend", "Dividend Schedule DataFrame (use this exact data):"},
}

// DataContext renders the dataset as data/columns assignments the analyst can load into pandas.
func DataContext(ds *dataflows.Dataset) (string, error) {
	var sb strings.Builder
	sb.WriteString("FETCHED DATA FOR PANDAS OPERATIONS:\n")
	for _, s := range contextSections {
		t := ds.Table(s.table)

		records, err := json.Marshal(t.Records())
		if err != nil {
			return "", fmt.Errorf("encode %s records: %w", s.table, err)
		}
		columns, err := json.Marshal(t.ColumnNames())
		if err != nil {
			return "", fmt.Errorf("encode %s columns: %w", s.table, err)
		}

		fmt.Fprintf(&sb, "\n# %s\n", s.comment)
		fmt.Fprintf(&sb, "%s_data = %s\n", s.prefix, emptyList(records))
		fmt.Fprintf(&sb, "%s_columns = %s\n", s.prefix, emptyList(columns))
	}
	return sb.String(), nil
}

func emptyList(b []byte) string {
	if string(b) == "null" {
		return "[]"
	}
	return string(b)
}

// TaskContext carries the values substituted into task descriptions.
type TaskContext struct {
	Symbol  string
	Company dataflows.CompanyInfo
	Dataset *dataflows.Dataset
}

func (tc TaskContext) variables() map[string]any {
	name := tc.Company.Name
	if name == "" {
		name = tc.Symbol
	}
	return map[string]any{
		"stock_symbol": tc.Symbol,
		"company_name": name,
		"industry":     tc.Company.Industry,
		"data_context": "",
	}
}

// RenderDescription fills the {placeholder} variables of a task description.
func RenderDescription(ctx context.Context, description string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(schema.FString, schema.UserMessage(description))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render task description: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("render task description: empty result")
	}
	return msgs[0].Content, nil
}

// BuildTask instantiates a configured task for its agent.
func BuildTask(ctx context.Context, cfg *crewconfig.Config, agents map[string]*crew.Agent, name string, vars map[string]any) (*crew.Task, error) {
	tc, ok := cfg.Task(name)
	if !ok {
		return nil, fmt.Errorf("task %s is not configured", name)
	}
	a, ok := agents[tc.Agent]
	if !ok {
		return nil, fmt.Errorf("task %s: %w %q", name, crewconfig.ErrUnknownAgent, tc.Agent)
	}

	description, err := RenderDescription(ctx, tc.Description, vars)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	return &crew.Task{
		Name:           name,
		Description:    description,
		ExpectedOutput: strings.TrimSpace(tc.ExpectedOutput),
		Agent:          a,
	}, nil
}

// NewAnalysisTask builds the financial analysis task of analysisType with the dataset attached.
func NewAnalysisTask(ctx context.Context, cfg *crewconfig.Config, agents map[string]*crew.Agent, analysisType string, tc TaskContext) (*crew.Task, error) {
	if tc.Dataset.Empty() {
		return nil, fmt.Errorf("%w for %s", ErrNoFinancialData, tc.Symbol)
	}
	name, err := TaskNameFor(analysisType)
	if err != nil {
		return nil, err
	}

	dataContext, err := DataContext(tc.Dataset)
	if err != nil {
		return nil, err
	}
	vars := tc.variables()
	vars["data_context"] = dataContext
	return BuildTask(ctx, cfg, agents, name, vars)
}

// NewNewsTask builds the news research task.
func NewNewsTask(ctx context.Context, cfg *crewconfig.Config, agents map[string]*crew.Agent, tc TaskContext) (*crew.Task, error) {
	return BuildTask(ctx, cfg, agents, TaskNewsResearch, tc.variables())
}
