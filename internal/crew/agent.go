package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/internal/agents"
	"github.com/dyike/CortexVN/internal/crewconfig"
)

const defaultMaxIter = 25

const finalAnswerPrompt = "Now it's time you MUST give your absolute best final answer. " +
	"You'll ignore all previous instructions, stop using any tools, and just return your absolute BEST Final answer."

// Agent is an LLM persona that executes tasks, optionally with tools.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string
	Tools     []tool.BaseTool
	Settings  crewconfig.AgentSettings

	model model.ToolCallingChatModel
}

func NewAgent(name string, cfg crewconfig.AgentConfig, chatModel model.ToolCallingChatModel, tools []tool.BaseTool) *Agent {
	return &Agent{
		Name:      name,
		Role:      strings.TrimSpace(cfg.Role),
		Goal:      strings.TrimSpace(cfg.Goal),
		Backstory: strings.TrimSpace(cfg.Backstory),
		Tools:     tools,
		Settings:  cfg.Settings,
		model:     chatModel,
	}
}

func (a *Agent) systemPrompt() string {
	return fmt.Sprintf("You are %s. %s\nYour personal goal is: %s", a.Role, a.Backstory, a.Goal)
}

// maxSteps bounds the react graph: one model and one tools step per iteration plus the closing answer.
func (a *Agent) maxSteps() int {
	iter := a.Settings.MaxIter
	if iter <= 0 {
		iter = defaultMaxIter
	}
	return 2*iter + 1
}

func (a *Agent) toolNames(ctx context.Context) []string {
	names := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			continue
		}
		names = append(names, info.Name)
	}
	return names
}

// plan asks the model for an execution plan until it reports READY or the attempts run out.
func (a *Agent) plan(ctx context.Context, task *Task) (string, error) {
	attempts := a.Settings.MaxReasoningAttempts
	if attempts <= 0 {
		attempts = 1
	}

	tools := strings.Join(a.toolNames(ctx), ", ")
	if tools == "" {
		tools = "none"
	}

	msgs := []*schema.Message{
		schema.SystemMessage(a.systemPrompt()),
		schema.UserMessage(fmt.Sprintf(
			"You are working on the following task:\n\n%s\n\nExpected output: %s\n\nAvailable tools: %s\n\n"+
				"Before executing, create a detailed plan for completing this task. "+
				"Outline the steps, the data you will use and how you will verify the result. "+
				"End your plan with \"READY: I am ready to execute the task.\" if the plan is complete, "+
				"or \"NOT READY: I need to refine my plan.\" if it needs refinement.",
			task.Description, task.ExpectedOutput, tools)),
	}

	var plan string
	for attempt := 1; ; attempt++ {
		resp, err := a.model.Generate(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("reasoning attempt %d: %w", attempt, err)
		}
		plan = strings.TrimSpace(resp.Content)
		ready := planReady(plan)
		log.Debug().Str("agent", a.Name).Int("attempt", attempt).Bool("ready", ready).Msg("reasoning plan")
		if ready || attempt >= attempts {
			return plan, nil
		}
		msgs = append(msgs, resp, schema.UserMessage(
			"Refine your plan. Address any gaps, then end with \"READY: I am ready to execute the task.\" "+
				"or \"NOT READY: I need to refine my plan.\""))
	}
}

// planReady reports whether the last non-empty line of plan carries the READY: marker.
func planReady(plan string) bool {
	lines := strings.Split(strings.TrimSpace(plan), "\n")
	last := strings.ToUpper(strings.TrimSpace(lines[len(lines)-1]))
	last = strings.TrimLeft(last, "*_# ")
	return strings.HasPrefix(last, "READY:")
}

// run answers msgs. Agents with tools go through a react loop bounded by max_iter.
func (a *Agent) run(ctx context.Context, msgs []*schema.Message, handlers ...callbacks.Handler) (*schema.Message, error) {
	if len(a.Tools) == 0 {
		return a.model.Generate(ctx, msgs)
	}

	var history []*schema.Message
	ra, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: a.model,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: a.Tools,
		},
		MessageModifier: func(ctx context.Context, input []*schema.Message) []*schema.Message {
			history = input
			return input
		},
		MaxStep:               a.maxSteps(),
		StreamToolCallChecker: agents.ToolCallChecker,
	})
	if err != nil {
		return nil, fmt.Errorf("create react agent %s: %w", a.Name, err)
	}

	var opts []agent.AgentOption
	if len(handlers) > 0 {
		opts = append(opts, agent.WithComposeOptions(compose.WithCallbacks(handlers...)))
	}

	msg, err := ra.Generate(ctx, msgs, opts...)
	if err == nil {
		return msg, nil
	}
	if !exceededMaxSteps(err) {
		return nil, err
	}

	log.Warn().Str("agent", a.Name).Int("max_iter", a.Settings.MaxIter).Msg("max iterations reached, forcing final answer")
	if len(history) == 0 {
		history = msgs
	}
	final := append(flattenToolTurns(history), schema.UserMessage(finalAnswerPrompt))
	return a.model.Generate(ctx, final)
}

// flattenToolTurns rewrites tool calls and results as plain turns for a model without tools.
func flattenToolTurns(history []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch {
		case m.Role == schema.Tool:
			out = append(out, schema.UserMessage("Tool result:\n"+m.Content))
		case len(m.ToolCalls) > 0:
			calls := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, fmt.Sprintf("%s(%s)", tc.Function.Name, tc.Function.Arguments))
			}
			content := strings.TrimSpace(m.Content + "\nCalling tools: " + strings.Join(calls, ", "))
			out = append(out, schema.AssistantMessage(content, nil))
		default:
			out = append(out, m)
		}
	}
	return out
}

func exceededMaxSteps(err error) bool {
	return errors.Is(err, compose.ErrExceedMaxSteps) || strings.Contains(err.Error(), "exceeds max steps")
}
