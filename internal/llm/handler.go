package llm

import (
	"context"
)

// Role identifies the speaker of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one unit of model dialogue
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ResponseSchema constrains a completion to a JSON object
type ResponseSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// CompletionRequest is a single non-streaming completion
type CompletionRequest struct {
	SystemPrompt   string          `json:"system_prompt"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseSchema *ResponseSchema `json:"response_schema,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ApiHandler is implemented by every model provider
type ApiHandler interface {
	// CreateCompletion sends the request and returns the model's full text output
	CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// GetModel returns the configured model ID
	GetModel() string
}

// ApiHandlerOptions represents configuration options for API handlers
type ApiHandlerOptions struct {
	Provider  ProviderType `json:"provider"`
	APIKey    string       `json:"apiKey"`
	ModelID   string       `json:"modelId"`
	MaxTokens int          `json:"maxTokens,omitempty"`

	// AWS Bedrock-specific
	AWSRegion string `json:"awsRegion,omitempty"`
}

// ProviderType represents different LLM provider types
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGemini     ProviderType = "gemini"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderBedrock    ProviderType = "bedrock"
)
