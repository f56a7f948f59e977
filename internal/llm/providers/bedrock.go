package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// BedrockHandler implements llm.ApiHandler for Anthropic models hosted on AWS Bedrock.
// Credentials come from the default AWS chain.
type BedrockHandler struct {
	options llm.ApiHandlerOptions

	mu     sync.Mutex
	client *bedrockruntime.Client
}

// NewBedrockHandler creates a new Bedrock handler; the client is created on first use
func NewBedrockHandler(options llm.ApiHandlerOptions) *BedrockHandler {
	if options.AWSRegion == "" {
		options.AWSRegion = "us-east-1"
	}
	return &BedrockHandler{options: options}
}

func (h *BedrockHandler) GetModel() string {
	return h.options.ModelID
}

func (h *BedrockHandler) getClient(ctx context.Context) (*bedrockruntime.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(h.options.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	h.client = bedrockruntime.NewFromConfig(cfg)
	return h.client, nil
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildBedrockBody encodes a request in the Anthropic-on-Bedrock message format
func buildBedrockBody(req llm.CompletionRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           structuredSystemPrompt(req.SystemPrompt, req.ResponseSchema),
	}
	for _, msg := range alternating(req.Messages) {
		body.Messages = append(body.Messages, bedrockMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return json.Marshal(body)
}

func (h *BedrockHandler) CreateCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := h.getClient(ctx)
	if err != nil {
		return nil, err
	}

	body, err := buildBedrockBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bedrock request: %w", err)
	}

	result, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(h.options.ModelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.CompletionResponse{
		Content: text.String(),
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
