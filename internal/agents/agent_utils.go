package agents

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/phuslu/log"

	"github.com/dyike/CortexVN/config"
)

var ErrMissingAPIKey = errors.New("missing API key")

// NewChatModel creates the tool-calling chat model of the configured provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, cfg.APIKeyEnv())
	}

	maxTokens := cfg.MaxTokens
	switch cfg.LLMProvider {
	case config.ProviderDeepSeek:
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL:   cfg.BackendURL,
			APIKey:    cfg.DeepSeekAPIKey,
			Model:     cfg.Model,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		log.Info().Str("provider", cfg.LLMProvider).Str("model", cfg.Model).Msg("chat model ready")
		return chatModel, nil
	case config.ProviderOpenAI, "":
		modelCfg := &openai.ChatModelConfig{
			BaseURL: cfg.BackendURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
		}
		if maxTokens > 0 {
			modelCfg.MaxTokens = &maxTokens
		}
		chatModel, err := openai.NewChatModel(ctx, modelCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		log.Info().Str("provider", config.ProviderOpenAI).Str("model", cfg.Model).Msg("chat model ready")
		return chatModel, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

// ToolCallChecker reports whether a streamed answer contains tool calls.
func ToolCallChecker(ctx context.Context, sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()
	for {
		msg, err := sr.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
	}
}
