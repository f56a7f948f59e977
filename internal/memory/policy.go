package memory

import "github.com/entrepeneur4lyf/paycopilot/internal/llm"

const (
	// TruncateThreshold is the history length above which TruncateRecent applies.
	TruncateThreshold = 8
	// SummarizeThreshold is the history length above which SummarizeMiddle applies.
	SummarizeThreshold = 12

	truncateKeepLast  = 7
	summarizeKeepLast = 4
)

// SummaryPlaceholder replaces the middle of a long conversation.
const SummaryPlaceholder = "[Previous conversation context: User has been asking about transaction data analysis, receiving SQL queries and insights about payment flows, transaction success rates, error patterns, and data trends.]"

// TruncateRecent keeps the first message and the last seven once the
// history exceeds eight messages. The input is never modified.
func TruncateRecent(msgs []llm.Message) []llm.Message {
	if len(msgs) <= TruncateThreshold {
		return msgs
	}
	out := make([]llm.Message, 0, 1+truncateKeepLast)
	out = append(out, msgs[0])
	return append(out, msgs[len(msgs)-truncateKeepLast:]...)
}

// SummarizeMiddle keeps the first message, one placeholder summary and the
// last four once the history exceeds twelve messages.
func SummarizeMiddle(msgs []llm.Message) []llm.Message {
	if len(msgs) <= SummarizeThreshold {
		return msgs
	}
	out := make([]llm.Message, 0, 2+summarizeKeepLast)
	out = append(out, msgs[0], llm.UserMessage(SummaryPlaceholder))
	return append(out, msgs[len(msgs)-summarizeKeepLast:]...)
}

// Compact applies SummarizeMiddle then TruncateRecent.
func Compact(msgs []llm.Message) []llm.Message {
	return TruncateRecent(SummarizeMiddle(msgs))
}
