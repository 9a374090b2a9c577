// Package crewconfig loads the agent and task definitions of the analysis crew.
package crewconfig

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/agents.yaml defaults/tasks.yaml
var defaults embed.FS

// ToolName identifies a tool an agent may be given.
type ToolName string

const (
	ToolCodeInterpreter ToolName = "code_interpreter"
	ToolBraveSearch     ToolName = "brave_search"
	ToolCompanyNews     ToolName = "company_news"
)

var ErrUnknownAgent = errors.New("unknown agent")

type AgentSettings struct {
	Verbose              bool `yaml:"verbose"`
	MaxIter              int  `yaml:"max_iter" validate:"gte=0,lte=50"`
	Memory               bool `yaml:"memory"`
	Reasoning            bool `yaml:"reasoning"`
	MaxReasoningAttempts int  `yaml:"max_reasoning_attempts" validate:"gte=0,lte=10"`
	AllowCodeExecution   bool `yaml:"allow_code_execution"`
}

type AgentConfig struct {
	Role      string        `yaml:"role" validate:"required"`
	Goal      string        `yaml:"goal" validate:"required"`
	Backstory string        `yaml:"backstory" validate:"required"`
	Tools     []ToolName    `yaml:"tools" validate:"dive,oneof=code_interpreter brave_search company_news"`
	Settings  AgentSettings `yaml:"settings"`
}

type TaskConfig struct {
	Description    string `yaml:"description" validate:"required"`
	ExpectedOutput string `yaml:"expected_output" validate:"required"`
	Agent          string `yaml:"agent" validate:"required"`
}

type Config struct {
	Agents map[string]AgentConfig
	Tasks  map[string]TaskConfig
}

// Load reads the agent and task files. A missing file falls back to the embedded default.
func Load(agentsPath, tasksPath string) (*Config, error) {
	agentsData, err := readOrDefault(agentsPath, "defaults/agents.yaml")
	if err != nil {
		return nil, err
	}
	tasksData, err := readOrDefault(tasksPath, "defaults/tasks.yaml")
	if err != nil {
		return nil, err
	}
	return Parse(agentsData, tasksData)
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Load("", "")
}

func readOrDefault(path, fallback string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Debug().Str("path", path).Str("fallback", fallback).Msg("config file not found, using embedded default")
	}
	return defaults.ReadFile(fallback)
}

// Parse decodes and validates the agents and tasks documents.
func Parse(agentsYAML, tasksYAML []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(agentsYAML, &cfg.Agents); err != nil {
		return nil, fmt.Errorf("parse agents config: %w", err)
	}
	if err := yaml.Unmarshal(tasksYAML, &cfg.Tasks); err != nil {
		return nil, fmt.Errorf("parse tasks config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("agents config: no agents defined")
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("tasks config: no tasks defined")
	}

	v := validator.New()
	for _, name := range c.AgentNames() {
		a := c.Agents[name]
		if err := v.Struct(a); err != nil {
			return fmt.Errorf("agent %s: %w", name, err)
		}
	}
	for _, name := range c.TaskNames() {
		t := c.Tasks[name]
		if err := v.Struct(t); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
		if _, ok := c.Agents[t.Agent]; !ok {
			return fmt.Errorf("task %s: %w %q", name, ErrUnknownAgent, t.Agent)
		}
	}
	return nil
}

func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task returns the named task definition.
func (c *Config) Task(name string) (TaskConfig, bool) {
	t, ok := c.Tasks[name]
	return t, ok
}
