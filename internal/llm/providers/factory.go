package providers

import (
	"fmt"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// BuildApiHandler creates the handler for the configured provider
func BuildApiHandler(options llm.ApiHandlerOptions) (llm.ApiHandler, error) {
	if options.ModelID == "" {
		return nil, fmt.Errorf("no model configured for provider %q", options.Provider)
	}

	switch options.Provider {
	case llm.ProviderOpenAI, "":
		return NewOpenAIHandler(options), nil
	case llm.ProviderAnthropic:
		return NewAnthropicHandler(options), nil
	case llm.ProviderGemini:
		return NewGeminiHandler(options), nil
	case llm.ProviderOpenRouter:
		return NewOpenRouterHandler(options), nil
	case llm.ProviderBedrock:
		return NewBedrockHandler(options), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", options.Provider)
	}
}
