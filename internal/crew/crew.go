// Package crew runs agents over an ordered list of tasks on an eino graph.
package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/consts"
)

type Process string

const (
	ProcessSequential   Process = "sequential"
	ProcessHierarchical Process = "hierarchical"
)

var (
	ErrUnsupportedProcess = errors.New("unsupported process")
	ErrNoTasks            = errors.New("crew has no tasks")
)

// Task is one unit of work assigned to an agent.
type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent
}

type TaskOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
	Raw         string `json:"raw"`
	Plan        string `json:"plan,omitempty"`
}

func (o TaskOutput) String() string {
	return o.Raw
}

type CrewOutput struct {
	RunID       string       `json:"run_id"`
	TasksOutput []TaskOutput `json:"tasks_output"`
}

// Raw is the output of the last task.
func (o *CrewOutput) Raw() string {
	if o == nil || len(o.TasksOutput) == 0 {
		return ""
	}
	return o.TasksOutput[len(o.TasksOutput)-1].Raw
}

func (o *CrewOutput) String() string {
	return o.Raw()
}

// Outputs returns the raw text of every task in submission order.
func (o *CrewOutput) Outputs() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.TasksOutput))
	for i, t := range o.TasksOutput {
		out[i] = t.Raw
	}
	return out
}

type Crew struct {
	// RunID identifies the kickoff. A new one is generated when empty.
	RunID   string
	Agents  []*Agent
	Tasks   []*Task
	Process Process
	Verbose bool
	Memory  bool
}

type kickoffState struct {
	Outputs []TaskOutput
	Plan    string
}

func (c *Crew) validate() error {
	if c.Process != "" && c.Process != ProcessSequential {
		return fmt.Errorf("%w: %s", ErrUnsupportedProcess, c.Process)
	}
	if len(c.Tasks) == 0 {
		return ErrNoTasks
	}
	for i, t := range c.Tasks {
		if t == nil || t.Agent == nil {
			return fmt.Errorf("task %d has no agent", i)
		}
		if t.Agent.model == nil {
			return fmt.Errorf("agent %s has no chat model", t.Agent.Name)
		}
	}
	return nil
}

// Kickoff runs every task in order. Each task sees the outputs of the tasks before it.
func (c *Crew) Kickoff(ctx context.Context) (*CrewOutput, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Memory {
		log.Debug().Msg("crew memory is not persisted between runs")
	}

	runID := c.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	runnable, err := c.compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile crew graph: %w", err)
	}

	start := time.Now()
	log.Info().Str("run_id", runID).Int("tasks", len(c.Tasks)).Str("process", string(ProcessSequential)).Msg("crew kickoff")

	out, err := runnable.Invoke(ctx, runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("crew failed")
		return nil, err
	}
	out.RunID = runID

	log.Info().Str("run_id", runID).Dur("elapsed", time.Since(start)).Msg("crew finished")
	return out, nil
}

func (c *Crew) compile(ctx context.Context) (compose.Runnable[string, *CrewOutput], error) {
	g := compose.NewGraph[string, *CrewOutput](
		compose.WithGenLocalState(func(ctx context.Context) *kickoffState {
			return &kickoffState{}
		}))

	var errs []error
	prev := compose.START
	for i, task := range c.Tasks {
		loadKey := fmt.Sprintf(consts.TaskLoadNode, i)
		agentKey := fmt.Sprintf(consts.TaskAgentNode, i)
		collectKey := fmt.Sprintf(consts.TaskCollectNode, i)

		errs = append(errs,
			g.AddLambdaNode(loadKey, compose.InvokableLambda(c.loadTask(task)), compose.WithNodeName(task.Name+".load")),
			g.AddLambdaNode(agentKey, compose.InvokableLambda(c.runTask(task)), compose.WithNodeName(task.Name+".agent")),
			g.AddLambdaNode(collectKey, compose.InvokableLambda(c.collectTask(task)), compose.WithNodeName(task.Name+".collect")),
			g.AddEdge(prev, loadKey),
			g.AddEdge(loadKey, agentKey),
			g.AddEdge(agentKey, collectKey),
		)
		prev = collectKey
	}

	errs = append(errs,
		g.AddLambdaNode(consts.FinishNode, compose.InvokableLambda(finish)),
		g.AddEdge(prev, consts.FinishNode),
		g.AddEdge(consts.FinishNode, compose.END),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return g.Compile(ctx,
		compose.WithGraphName(consts.CrewGraph),
		compose.WithNodeTriggerMode(compose.AllPredecessor),
	)
}

func (c *Crew) loadTask(task *Task) func(ctx context.Context, _ string) ([]*schema.Message, error) {
	return func(ctx context.Context, _ string) ([]*schema.Message, error) {
		var previous []TaskOutput
		err := compose.ProcessState[*kickoffState](ctx, func(_ context.Context, state *kickoffState) error {
			previous = append(previous, state.Outputs...)
			state.Plan = ""
			return nil
		})
		if err != nil {
			return nil, err
		}

		log.Info().Str("task", task.Name).Str("agent", task.Agent.Role).Msg("task started")
		return []*schema.Message{
			schema.SystemMessage(task.Agent.systemPrompt()),
			schema.UserMessage(taskPrompt(task, previous)),
		}, nil
	}
}

func taskPrompt(task *Task, previous []TaskOutput) string {
	var sb strings.Builder
	sb.WriteString("Current Task: ")
	sb.WriteString(task.Description)
	sb.WriteString("\n\nThis is the expected criteria for your final answer: ")
	sb.WriteString(task.ExpectedOutput)
	sb.WriteString("\nyou MUST return the actual complete content as the final answer, not a summary.")

	if len(previous) > 0 {
		sb.WriteString("\n\nThis is the context you're working with:\n")
		for i, p := range previous {
			if i > 0 {
				sb.WriteString("\n\n----------\n\n")
			}
			sb.WriteString(p.Raw)
		}
	}

	sb.WriteString("\n\nBegin! This is VERY important to you, use the tools available and give your best Final Answer, your job depends on it!")
	return sb.String()
}

func (c *Crew) runTask(task *Task) func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	return func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
		a := task.Agent
		if a.Settings.Reasoning {
			plan, err := a.plan(ctx, task)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", task.Name, err)
			}
			if err := compose.ProcessState[*kickoffState](ctx, func(_ context.Context, state *kickoffState) error {
				state.Plan = plan
				return nil
			}); err != nil {
				return nil, err
			}
			if plan != "" {
				last := msgs[len(msgs)-1]
				msgs = append(msgs[:len(msgs)-1:len(msgs)-1], schema.UserMessage(last.Content+"\n\nReasoning Plan:\n"+plan))
			}
		}

		var handlers []callbacks.Handler
		if c.Verbose || a.Settings.Verbose {
			handlers = append(handlers, NewLogCallback(a.Name))
		}

		msg, err := a.run(ctx, msgs, handlers...)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.Name, err)
		}
		if msg == nil {
			return nil, fmt.Errorf("task %s: agent %s returned no answer", task.Name, a.Name)
		}
		return msg, nil
	}
}

func (c *Crew) collectTask(task *Task) func(ctx context.Context, msg *schema.Message) (string, error) {
	return func(ctx context.Context, msg *schema.Message) (string, error) {
		raw := strings.TrimSpace(msg.Content)
		err := compose.ProcessState[*kickoffState](ctx, func(_ context.Context, state *kickoffState) error {
			state.Outputs = append(state.Outputs, TaskOutput{
				Name:        task.Name,
				Description: task.Description,
				Agent:       task.Agent.Role,
				Raw:         raw,
				Plan:        state.Plan,
			})
			return nil
		})
		if err != nil {
			return "", err
		}
		log.Info().Str("task", task.Name).Int("chars", len(raw)).Msg("task completed")
		return raw, nil
	}
}

func finish(ctx context.Context, _ string) (*CrewOutput, error) {
	out := &CrewOutput{}
	err := compose.ProcessState[*kickoffState](ctx, func(_ context.Context, state *kickoffState) error {
		out.TasksOutput = append(out.TasksOutput, state.Outputs...)
		return nil
	})
	return out, err
}
