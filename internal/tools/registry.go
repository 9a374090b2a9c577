package tools

import (
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dyike/CortexVN/config"
	"github.com/dyike/CortexVN/internal/crewconfig"
)

// Registry maps configured tool names onto tool instances.
type Registry struct {
	brave *BraveClient
	code  *CodeInterpreter
}

type Option func(*Registry)

// WithCommandRunner replaces the process runner of the code interpreter.
func WithCommandRunner(run CommandRunner) Option {
	return func(r *Registry) {
		r.code.Run = run
	}
}

// WithBraveClient replaces the search client.
func WithBraveClient(bc *BraveClient) Option {
	return func(r *Registry) {
		r.brave = bc
	}
}

func NewRegistry(cfg *config.Config, opts ...Option) *Registry {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Registry{
		brave: NewBraveClient(cfg.BraveBaseURL, cfg.BraveAPIKey, cfg.BraveResults, timeout),
		code: &CodeInterpreter{
			Mode:    cfg.CodeInterpreterMode,
			Image:   cfg.CodeInterpreterImage,
			Timeout: cfg.CodeInterpreterTimeout,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build returns the tool registered under name.
func (r *Registry) Build(name crewconfig.ToolName) (tool.BaseTool, error) {
	switch name {
	case crewconfig.ToolCodeInterpreter:
		return NewCodeInterpreterTool(r.code), nil
	case crewconfig.ToolBraveSearch:
		return NewBraveSearchTool(r.brave), nil
	case crewconfig.ToolCompanyNews:
		return NewCompanyNewsTool(r.brave), nil
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

// ForAgent resolves the tools of an agent. allow_code_execution adds the code interpreter.
func (r *Registry) ForAgent(cfg crewconfig.AgentConfig) ([]tool.BaseTool, error) {
	names := append([]crewconfig.ToolName(nil), cfg.Tools...)
	if cfg.Settings.AllowCodeExecution && !containsTool(names, crewconfig.ToolCodeInterpreter) {
		names = append(names, crewconfig.ToolCodeInterpreter)
	}

	tools := make([]tool.BaseTool, 0, len(names))
	for _, name := range names {
		t, err := r.Build(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func containsTool(names []crewconfig.ToolName, want crewconfig.ToolName) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
