package providers

import (
	"context"
	"errors"
	"fmt"

	openrouter "github.com/revrost/go-openrouter"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// OpenRouterHandler implements llm.ApiHandler over OpenRouter
type OpenRouterHandler struct {
	options llm.ApiHandlerOptions
	client  *openrouter.Client
}

// NewOpenRouterHandler creates a new OpenRouter handler
func NewOpenRouterHandler(options llm.ApiHandlerOptions) *OpenRouterHandler {
	return &OpenRouterHandler{
		options: options,
		client:  openrouter.NewClient(options.APIKey),
	}
}

func (h *OpenRouterHandler) GetModel() string {
	return h.options.ModelID
}

func (h *OpenRouterHandler) CreateCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	messages := make([]openrouter.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system := structuredSystemPrompt(req.SystemPrompt, req.ResponseSchema); system != "" {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    openrouter.ChatMessageRoleSystem,
			Content: openrouter.Content{Text: system},
		})
	}
	for _, msg := range req.Messages {
		role := openrouter.ChatMessageRoleUser
		if msg.Role == llm.RoleAssistant {
			role = openrouter.ChatMessageRoleAssistant
		}
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    role,
			Content: openrouter.Content{Text: msg.Content},
		})
	}

	resp, err := h.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:     h.options.ModelID,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openrouter completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openrouter returned no choices")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content.Text,
	}, nil
}
