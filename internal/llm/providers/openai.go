package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// OpenAIHandler implements llm.ApiHandler using the official OpenAI Go SDK
type OpenAIHandler struct {
	options llm.ApiHandlerOptions
	client  *openai.Client
}

// NewOpenAIHandler creates a new OpenAI handler
func NewOpenAIHandler(options llm.ApiHandlerOptions, opts ...option.RequestOption) *OpenAIHandler {
	opts = append([]option.RequestOption{
		option.WithAPIKey(options.APIKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(opts...)

	return &OpenAIHandler{
		options: options,
		client:  &client,
	}
}

func (h *OpenAIHandler) GetModel() string {
	return h.options.ModelID
}

// CreateCompletion sends a chat completion, using the JSON schema response
// format when the request carries a schema
func (h *OpenAIHandler) CreateCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(h.options.ModelID),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if rs := req.ResponseSchema; rs != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        rs.Name,
					Description: openai.String(rs.Description),
					Schema:      rs.Schema,
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	resp, err := h.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: &llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}
