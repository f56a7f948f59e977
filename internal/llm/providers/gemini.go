package providers

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// GeminiHandler implements llm.ApiHandler using the Google GenAI SDK
type GeminiHandler struct {
	options llm.ApiHandlerOptions

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiHandler creates a new Gemini handler; the client is created on first use
func NewGeminiHandler(options llm.ApiHandlerOptions) *GeminiHandler {
	return &GeminiHandler{options: options}
}

func (h *GeminiHandler) GetModel() string {
	return h.options.ModelID
}

func (h *GeminiHandler) getClient(ctx context.Context) (*genai.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  h.options.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	h.client = client
	return client, nil
}

func (h *GeminiHandler) CreateCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := h.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range alternating(req.Messages) {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := structuredSystemPrompt(req.SystemPrompt, req.ResponseSchema); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := client.Models.GenerateContent(ctx, h.options.ModelID, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
