package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// AnthropicHandler implements llm.ApiHandler using the official Anthropic Go SDK
type AnthropicHandler struct {
	options llm.ApiHandlerOptions
	client  *anthropic.Client
}

// NewAnthropicHandler creates a new Anthropic handler
func NewAnthropicHandler(options llm.ApiHandlerOptions, opts ...option.RequestOption) *AnthropicHandler {
	opts = append([]option.RequestOption{
		option.WithAPIKey(options.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(opts...)

	return &AnthropicHandler{
		options: options,
		client:  &client,
	}
}

func (h *AnthropicHandler) GetModel() string {
	return h.options.ModelID
}

func (h *AnthropicHandler) CreateCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	turns := alternating(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, msg := range turns {
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(h.options.ModelID),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system := structuredSystemPrompt(req.SystemPrompt, req.ResponseSchema); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := h.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.CompletionResponse{
		Content: text.String(),
		Usage: &llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
