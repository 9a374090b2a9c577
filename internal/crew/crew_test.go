package crew

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexVN/internal/crewconfig"
)

type call struct {
	msgs      []*schema.Message
	withTools bool
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) add(c call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) all() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

type fakeModel struct {
	rec     *recorder
	tools   []*schema.ToolInfo
	respond func(msgs []*schema.Message, withTools bool) *schema.Message
}

func newFakeModel(respond func(msgs []*schema.Message, withTools bool) *schema.Message) *fakeModel {
	return &fakeModel{rec: &recorder{}, respond: respond}
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msgs := append([]*schema.Message(nil), input...)
	withTools := len(m.tools) > 0
	m.rec.add(call{msgs: msgs, withTools: withTools})
	return m.respond(msgs, withTools), nil
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &fakeModel{rec: m.rec, tools: tools, respond: m.respond}, nil
}

func lastUser(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}

type echoInput struct {
	Text string `json:"text"`
}

type echoOutput struct {
	Echo string `json:"echo"`
}

func echoTool() tool.BaseTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "echo",
			Desc: "Echo the text back",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"text": {Type: "string", Desc: "text to echo", Required: true},
			}),
		},
		func(ctx context.Context, in echoInput) (*echoOutput, error) {
			return &echoOutput{Echo: "echo:" + in.Text}, nil
		},
	)
}

func analystConfig() crewconfig.AgentConfig {
	return crewconfig.AgentConfig{
		Role:      "Financial Analyst",
		Goal:      "Analyze the numbers",
		Backstory: "You read statements for a living.",
	}
}

func TestKickoffSequentialContext(t *testing.T) {
	fm := newFakeModel(func(msgs []*schema.Message, _ bool) *schema.Message {
		if strings.Contains(lastUser(msgs), "first task") {
			return schema.AssistantMessage("  first result  ", nil)
		}
		return schema.AssistantMessage("second result", nil)
	})
	a := NewAgent("analyst", analystConfig(), fm, nil)
	c := &Crew{
		Agents:  []*Agent{a},
		Process: ProcessSequential,
		Tasks: []*Task{
			{Name: "one", Description: "do the first task", ExpectedOutput: "a number", Agent: a},
			{Name: "two", Description: "do the second task", ExpectedOutput: "a summary", Agent: a},
		},
	}

	out, err := c.Kickoff(context.Background())
	require.NoError(t, err)
	require.Len(t, out.TasksOutput, 2)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "first result", out.TasksOutput[0].Raw)
	assert.Equal(t, "second result", out.Raw())
	assert.Equal(t, "second result", out.String())
	assert.Equal(t, []string{"first result", "second result"}, out.Outputs())
	assert.Equal(t, "Financial Analyst", out.TasksOutput[1].Agent)

	calls := fm.rec.all()
	require.Len(t, calls, 2)
	assert.Equal(t, schema.System, calls[0].msgs[0].Role)
	assert.Contains(t, calls[0].msgs[0].Content, "You are Financial Analyst.")
	assert.Contains(t, calls[0].msgs[0].Content, "Your personal goal is: Analyze the numbers")
	assert.NotContains(t, lastUser(calls[0].msgs), "This is the context you're working with")

	second := lastUser(calls[1].msgs)
	assert.Contains(t, second, "Current Task: do the second task")
	assert.Contains(t, second, "This is the expected criteria for your final answer: a summary")
	assert.Contains(t, second, "This is the context you're working with:\nfirst result")
}

func TestKickoffKeepsRunID(t *testing.T) {
	fm := newFakeModel(func([]*schema.Message, bool) *schema.Message {
		return schema.AssistantMessage("done", nil)
	})
	a := NewAgent("analyst", analystConfig(), fm, nil)
	c := &Crew{
		RunID: "run-42",
		Tasks: []*Task{{Name: "one", Description: "do it", ExpectedOutput: "anything", Agent: a}},
	}

	out, err := c.Kickoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-42", out.RunID)
}

func TestKickoffValidation(t *testing.T) {
	fm := newFakeModel(func([]*schema.Message, bool) *schema.Message {
		return schema.AssistantMessage("ok", nil)
	})
	a := NewAgent("analyst", analystConfig(), fm, nil)

	_, err := (&Crew{Agents: []*Agent{a}}).Kickoff(context.Background())
	assert.True(t, errors.Is(err, ErrNoTasks))

	_, err = (&Crew{
		Agents:  []*Agent{a},
		Tasks:   []*Task{{Name: "one", Agent: a}},
		Process: ProcessHierarchical,
	}).Kickoff(context.Background())
	assert.True(t, errors.Is(err, ErrUnsupportedProcess))

	_, err = (&Crew{Tasks: []*Task{{Name: "orphan"}}}).Kickoff(context.Background())
	assert.Error(t, err)
	assert.Empty(t, fm.rec.all())
}

func TestKickoffReasoningReady(t *testing.T) {
	fm := newFakeModel(func(msgs []*schema.Message, _ bool) *schema.Message {
		if strings.Contains(lastUser(msgs), "create a detailed plan") {
			return schema.AssistantMessage("1. load data\n2. compute margins\nREADY: I am ready to execute the task.", nil)
		}
		return schema.AssistantMessage("analysis done", nil)
	})
	cfg := analystConfig()
	cfg.Settings.Reasoning = true
	cfg.Settings.MaxReasoningAttempts = 3
	a := NewAgent("analyst", cfg, fm, nil)

	out, err := (&Crew{Agents: []*Agent{a}, Tasks: []*Task{
		{Name: "one", Description: "analyze", ExpectedOutput: "report", Agent: a},
	}}).Kickoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "analysis done", out.Raw())
	assert.Contains(t, out.TasksOutput[0].Plan, "compute margins")

	calls := fm.rec.all()
	require.Len(t, calls, 2)
	assert.Contains(t, lastUser(calls[0].msgs), "Available tools: none")
	assert.Contains(t, lastUser(calls[1].msgs), "\n\nReasoning Plan:\n1. load data")
}

func TestKickoffReasoningNotReady(t *testing.T) {
	fm := newFakeModel(func(msgs []*schema.Message, _ bool) *schema.Message {
		if strings.Contains(msgs[1].Content, "create a detailed plan") && !strings.Contains(lastUser(msgs), "Current Task") {
			return schema.AssistantMessage("draft plan\nNOT READY: I need to refine my plan.", nil)
		}
		return schema.AssistantMessage("done anyway", nil)
	})
	cfg := analystConfig()
	cfg.Settings.Reasoning = true
	cfg.Settings.MaxReasoningAttempts = 2
	a := NewAgent("analyst", cfg, fm, nil)

	out, err := (&Crew{Agents: []*Agent{a}, Tasks: []*Task{
		{Name: "one", Description: "analyze", ExpectedOutput: "report", Agent: a},
	}}).Kickoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done anyway", out.Raw())

	calls := fm.rec.all()
	require.Len(t, calls, 3)
	assert.Contains(t, lastUser(calls[1].msgs), "Refine your plan")
	assert.Contains(t, lastUser(calls[2].msgs), "Reasoning Plan:\ndraft plan")
}

func TestKickoffToolCall(t *testing.T) {
	fm := newFakeModel(func(msgs []*schema.Message, withTools bool) *schema.Message {
		last := msgs[len(msgs)-1]
		if withTools && last.Role != schema.Tool {
			return schema.AssistantMessage("", []schema.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: schema.FunctionCall{Name: "echo", Arguments: `{"text":"hi"}`},
			}})
		}
		return schema.AssistantMessage("final: "+last.Content, nil)
	})
	cfg := analystConfig()
	cfg.Settings.MaxIter = 3
	a := NewAgent("analyst", cfg, fm, []tool.BaseTool{echoTool()})

	out, err := (&Crew{Verbose: true, Agents: []*Agent{a}, Tasks: []*Task{
		{Name: "one", Description: "use the echo tool", ExpectedOutput: "echoed text", Agent: a},
	}}).Kickoff(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.Raw(), "echo:hi")

	calls := fm.rec.all()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].withTools)
	assert.Equal(t, schema.Tool, calls[1].msgs[len(calls[1].msgs)-1].Role)
}

func TestKickoffForcesFinalAnswer(t *testing.T) {
	fm := newFakeModel(func(msgs []*schema.Message, withTools bool) *schema.Message {
		if withTools {
			return schema.AssistantMessage("", []schema.ToolCall{{
				ID:       "call_loop",
				Type:     "function",
				Function: schema.FunctionCall{Name: "echo", Arguments: `{"text":"again"}`},
			}})
		}
		if strings.Contains(lastUser(msgs), "MUST give your absolute best final answer") {
			return schema.AssistantMessage("forced answer", nil)
		}
		return schema.AssistantMessage("unexpected", nil)
	})
	cfg := analystConfig()
	cfg.Settings.MaxIter = 1
	a := NewAgent("analyst", cfg, fm, []tool.BaseTool{echoTool()})

	out, err := (&Crew{Agents: []*Agent{a}, Tasks: []*Task{
		{Name: "one", Description: "loop forever", ExpectedOutput: "anything", Agent: a},
	}}).Kickoff(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forced answer", out.Raw())

	calls := fm.rec.all()
	final := calls[len(calls)-1]
	assert.False(t, final.withTools)
	for _, m := range final.msgs {
		assert.NotEqual(t, schema.Tool, m.Role)
		assert.Empty(t, m.ToolCalls)
	}
}

func TestFlattenToolTurns(t *testing.T) {
	history := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.AssistantMessage("", []schema.ToolCall{{Function: schema.FunctionCall{Name: "echo", Arguments: `{"text":"x"}`}}}),
		schema.ToolMessage(`{"echo":"echo:x"}`, "call_1"),
	}
	out := flattenToolTurns(history)
	require.Len(t, out, 3)
	assert.Equal(t, "sys", out[0].Content)
	assert.Equal(t, `Calling tools: echo({"text":"x"})`, out[1].Content)
	assert.Equal(t, schema.User, out[2].Role)
	assert.Equal(t, "Tool result:\n{\"echo\":\"echo:x\"}", out[2].Content)
}

func TestPlanReady(t *testing.T) {
	assert.True(t, planReady("steps\nREADY: I am ready to execute the task."))
	assert.False(t, planReady("steps\nNOT READY: I need to refine my plan."))
	assert.False(t, planReady("just steps"))
	assert.False(t, planReady("READY: I am ready to execute the task.\nWait, one more step is missing."))
	assert.False(t, planReady("Fetch the ratios once the data is ready."))
	assert.False(t, planReady(""))
	assert.True(t, planReady("steps\n\n**READY:** I am ready to execute the task.\n"))
	assert.True(t, planReady("steps\nready: I am ready to execute the task."))
}

func TestMaxSteps(t *testing.T) {
	a := NewAgent("a", analystConfig(), nil, nil)
	assert.Equal(t, 2*defaultMaxIter+1, a.maxSteps())
	a.Settings.MaxIter = 2
	assert.Equal(t, 5, a.maxSteps())
}
