package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"
)

// Execution modes of the code interpreter.
const (
	ModeDocker   = "docker"
	ModeLocal    = "local"
	ModeDisabled = "disabled"
)

const maxOutputBytes = 16 * 1024

// CommandRunner runs name with args, feeding stdin, and returns its output.
type CommandRunner func(ctx context.Context, name string, args []string, stdin string) (stdout, stderr string, exitCode int, err error)

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, name string, args []string, stdin string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

// CodeInterpreter executes Python 3 code for the data analyst.
type CodeInterpreter struct {
	Mode    string
	Image   string
	Timeout time.Duration
	Run     CommandRunner
}

type CodeInput struct {
	Code          string   `json:"code"`
	LibrariesUsed []string `json:"libraries_used"`
}

type CodeOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// command returns the program and arguments for the configured mode.
func (ci *CodeInterpreter) command(libraries []string) (string, []string, error) {
	script := "python -"
	if len(libraries) > 0 {
		for _, lib := range libraries {
			if !validLibraryName(lib) {
				return "", nil, fmt.Errorf("invalid library name %q", lib)
			}
		}
		script = fmt.Sprintf("pip install --quiet %s >/dev/null 2>&1; python -", strings.Join(libraries, " "))
	}

	switch ci.Mode {
	case ModeDocker, "":
		image := ci.Image
		if image == "" {
			image = "python:3.12-slim"
		}
		return "docker", []string{"run", "--rm", "-i", image, "sh", "-c", script}, nil
	case ModeLocal:
		if len(libraries) > 0 {
			return "sh", []string{"-c", strings.Replace(script, "python -", "python3 -", 1)}, nil
		}
		return "python3", []string{"-"}, nil
	default:
		return "", nil, fmt.Errorf("code execution is disabled")
	}
}

func validLibraryName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '=' || r == '<' || r == '>':
		default:
			return false
		}
	}
	return true
}

// Execute runs the code and captures its output. Failures of the code itself are part of the output.
func (ci *CodeInterpreter) Execute(ctx context.Context, input CodeInput) *CodeOutput {
	if strings.TrimSpace(input.Code) == "" {
		return &CodeOutput{ExitCode: -1, Error: "no code provided"}
	}

	name, args, err := ci.command(input.LibrariesUsed)
	if err != nil {
		return &CodeOutput{ExitCode: -1, Error: err.Error()}
	}

	timeout := ci.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := ci.Run
	if run == nil {
		run = ExecRunner
	}

	start := time.Now()
	stdout, stderr, code, err := run(runCtx, name, args, input.Code)
	log.Debug().Str("mode", ci.Mode).Int("exit_code", code).Dur("elapsed", time.Since(start)).Msg("code executed")

	out := &CodeOutput{
		Stdout:   limitOutput(stdout),
		Stderr:   limitOutput(stderr),
		ExitCode: code,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.Error = fmt.Sprintf("execution timed out after %s", timeout)
	} else if err != nil {
		out.Error = err.Error()
	}
	return out
}

func limitOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n[output truncated]"
}

func NewCodeInterpreterTool(ci *CodeInterpreter) tool.BaseTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "code_interpreter",
			Desc: "Interprets Python3 code strings with a final print statement.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"code": {
					Type:     "string",
					Desc:     "Python3 code used to be interpreted in the Docker container. ALWAYS PRINT the final result and the output of the code",
					Required: true,
				},
				"libraries_used": {
					Type:     "array",
					Desc:     "List of libraries used in the code with proper installing names separated by commas. Example: numpy,pandas,beautifulsoup4",
					ElemInfo: &schema.ParameterInfo{Type: "string"},
					Required: false,
				},
			}),
		},
		func(ctx context.Context, input CodeInput) (*CodeOutput, error) {
			return ci.Execute(ctx, input), nil
		},
	)
}
