package crew

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"
)

const maxLoggedChars = 500

// LogCallback logs model turns and tool calls of one agent run.
type LogCallback struct {
	callbacks.HandlerBuilder

	Agent string
}

func NewLogCallback(agent string) *LogCallback {
	return &LogCallback{Agent: agent}
}

func (cb *LogCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if info == nil || info.Component != components.ComponentOfTool {
		return ctx
	}
	if in := tool.ConvCallbackInput(input); in != nil {
		log.Info().Str("agent", cb.Agent).Str("tool", info.Name).Str("args", clip(in.ArgumentsInJSON)).Msg("using tool")
	}
	return ctx
}

func (cb *LogCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if info == nil {
		return ctx
	}
	switch info.Component {
	case components.ComponentOfTool:
		if out := tool.ConvCallbackOutput(output); out != nil {
			log.Info().Str("agent", cb.Agent).Str("tool", info.Name).Str("output", clip(out.Response)).Msg("tool output")
		}
	case components.ComponentOfChatModel:
		if out := ecmodel.ConvCallbackOutput(output); out != nil {
			cb.logMessage(out.Message)
		}
	}
	return ctx
}

func (cb *LogCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	name := ""
	if info != nil {
		name = info.Name
	}
	log.Error().Str("agent", cb.Agent).Str("node", name).Err(err).Msg("agent step failed")
	return ctx
}

func (cb *LogCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("agent", cb.Agent).Interface("panic", r).Msg("stream callback panic")
			}
		}()
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				log.Warn().Str("agent", cb.Agent).Err(err).Msg("stream callback recv")
				return
			}
			switch v := frame.(type) {
			case *schema.Message:
				cb.logMessage(v)
			case *ecmodel.CallbackOutput:
				cb.logMessage(v.Message)
			}
		}
	}()
	return ctx
}

func (cb *LogCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (cb *LogCallback) logMessage(msg *schema.Message) {
	if msg == nil {
		return
	}
	if len(msg.ToolCalls) > 0 {
		for _, tc := range msg.ToolCalls {
			log.Info().Str("agent", cb.Agent).Str("tool", tc.Function.Name).Msg("tool call requested")
		}
		return
	}
	if msg.Content != "" {
		log.Info().Str("agent", cb.Agent).Str("content", clip(msg.Content)).Msg("agent answer")
	}
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedChars {
		return s
	}
	return string(r[:maxLoggedChars]) + "..."
}
