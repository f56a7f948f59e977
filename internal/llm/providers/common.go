package providers

import (
	"encoding/json"
	"strings"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// structuredSystemPrompt appends the JSON contract for providers without a
// native schema-constrained output mode.
func structuredSystemPrompt(system string, rs *llm.ResponseSchema) string {
	if rs == nil {
		return system
	}
	schema, err := json.Marshal(rs.Schema)
	if err != nil {
		return system
	}
	var b strings.Builder
	b.WriteString(system)
	if system != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object and nothing else. It must match this JSON schema:\n")
	b.Write(schema)
	return b.String()
}

// alternating merges consecutive messages from the same role and drops
// leading assistant messages, as required by APIs that expect strict
// user/assistant turns starting with the user.
func alternating(messages []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if len(out) == 0 && m.Role != llm.RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
