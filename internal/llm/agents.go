package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm/prompt"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
)

// QueryType is the classifier's label
type QueryType string

const (
	QueryTypeSimple QueryType = "simple"
	QueryTypeSQL    QueryType = "sql"
)

// ErrInvalidOutput is returned when a model reply does not match the requested shape
var ErrInvalidOutput = errors.New("model output did not match the expected schema")

// SQLGeneration is the SQL writer's reply
type SQLGeneration struct {
	SQLQuery  string `json:"sql_query"`
	Reasoning string `json:"reasoning"`

	// Exchange is the dialogue that produced this reply
	Exchange []Message `json:"-"`
}

// DataSummary is the analyst's reply
type DataSummary struct {
	Summary           string   `json:"summary"`
	KeyInsights       []string `json:"key_insights"`
	TransactionStatus *string  `json:"transaction_status"`
	Recommendation    *string  `json:"recommendation"`
}

// ResponseMetadata tags a condensed answer with the identifiers it mentions
type ResponseMetadata struct {
	UserID        *string `json:"user_id"`
	TransactionID *string `json:"transaction_id"`
	ErrorCode     *string `json:"error_code"`
	Status        *string `json:"status"`
}

// UnmarshalJSON accepts the metadata either as an object or as a string
// holding one. Free text is ignored.
func (m *ResponseMetadata) UnmarshalJSON(data []byte) error {
	type plain ResponseMetadata
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var p plain
		if err := decodeObject(s, &p); err == nil {
			*m = ResponseMetadata(p)
		}
		return nil
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = ResponseMetadata(p)
	return nil
}

// String renders the metadata as compact JSON with explicit nulls
func (m ResponseMetadata) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// Condensation is the condenser's reply
type Condensation struct {
	Summary  string           `json:"summary"`
	Metadata ResponseMetadata `json:"metadata"`
}

// FailureAnalysis is the ops engineer's reply for an alerting transaction
type FailureAnalysis struct {
	Summary string `json:"summary"`
}

// Option configures Agents
type Option func(*Agents)

// WithHistoryProcessor sets the function applied to every message list before it is sent
func WithHistoryProcessor(p func([]Message) []Message) Option {
	return func(a *Agents) {
		a.history = p
	}
}

// WithMaxTokens caps each completion
func WithMaxTokens(n int) Option {
	return func(a *Agents) {
		a.maxTokens = n
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(a *Agents) {
		a.logger = l
	}
}

// Agents runs the structured model calls of the analytics pipeline over one provider
type Agents struct {
	handler   ApiHandler
	schema    *schema.Schema
	history   func([]Message) []Message
	maxTokens int
	logger    *log.Logger

	sqlSystemPrompt string
}

// NewAgents creates the agent set for a provider handler and column schema
func NewAgents(handler ApiHandler, s *schema.Schema, opts ...Option) *Agents {
	a := &Agents{
		handler:   handler,
		schema:    s,
		history:   func(m []Message) []Message { return m },
		maxTokens: 4096,
		logger:    log.Default().WithPrefix("llm"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sqlSystemPrompt = prompt.SQLGeneration(s)
	return a
}

// Model returns the model ID of the underlying provider
func (a *Agents) Model() string {
	return a.handler.GetModel()
}

// Classify labels a user utterance as simple or sql
func (a *Agents) Classify(ctx context.Context, query string, history []Message) (QueryType, error) {
	var out struct {
		QueryType QueryType `json:"query_type"`
	}
	if _, err := a.run(ctx, "query_type", prompt.QueryType, history, query, queryTypeSchema, &out); err != nil {
		return "", err
	}
	switch out.QueryType {
	case QueryTypeSimple, QueryTypeSQL:
		return out.QueryType, nil
	default:
		return "", fmt.Errorf("%w: unknown query_type %q", ErrInvalidOutput, out.QueryType)
	}
}

// GenerateSQL writes a query for an augmented prompt
func (a *Agents) GenerateSQL(ctx context.Context, augmented string, history []Message) (*SQLGeneration, error) {
	var out SQLGeneration
	exchange, err := a.run(ctx, "sql", a.sqlSystemPrompt, history, augmented, sqlSchema, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.SQLQuery) == "" {
		return nil, fmt.Errorf("%w: empty sql_query", ErrInvalidOutput)
	}
	out.Exchange = exchange
	return &out, nil
}

// Summarize explains results, or answers a simple question
func (a *Agents) Summarize(ctx context.Context, input string, history []Message) (*DataSummary, error) {
	var out DataSummary
	if _, err := a.run(ctx, "summary", prompt.DataSummary, history, input, summarySchema, &out); err != nil {
		return nil, err
	}
	if out.KeyInsights == nil {
		out.KeyInsights = []string{}
	}
	return &out, nil
}

// Condense produces the response-summary for a digest of a full answer
func (a *Agents) Condense(ctx context.Context, digest string) (*Condensation, error) {
	var out Condensation
	if _, err := a.run(ctx, "response_summary", prompt.ResponseSummary, nil, digest, condensationSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeFailure writes root causes and remediation steps from a transaction's event log
func (a *Agents) AnalyzeFailure(ctx context.Context, eventLog string) (*FailureAnalysis, error) {
	var out FailureAnalysis
	input := "Here is the JSON event log for the transaction:\n" + eventLog
	if _, err := a.run(ctx, "failure_analysis", prompt.FailureAnalysis, nil, input, failureSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// run sends one structured completion and decodes it into out. It returns the
// dialogue sent plus the model's reply.
func (a *Agents) run(ctx context.Context, agent, system string, history []Message, input string, rs *ResponseSchema, out any) ([]Message, error) {
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = a.history(append(msgs, UserMessage(input)))

	resp, err := a.handler.CreateCompletion(ctx, CompletionRequest{
		SystemPrompt:   system,
		Messages:       msgs,
		MaxTokens:      a.maxTokens,
		ResponseSchema: rs,
	})
	if err != nil {
		return nil, fmt.Errorf("%s agent failed: %w", agent, err)
	}
	if err := decodeObject(resp.Content, out); err != nil {
		a.logger.Warn("unparseable agent output", "agent", agent, "error", err)
		return nil, fmt.Errorf("%s agent: %w: %v", agent, ErrInvalidOutput, err)
	}

	a.logger.Debug("agent completed", "agent", agent, "messages", len(msgs))
	return append(msgs, AssistantMessage(resp.Content)), nil
}

// decodeObject parses the first JSON object in s, tolerating code fences and
// surrounding prose.
func decodeObject(s string, out any) error {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return errors.New("no JSON object in output")
	}
	return json.Unmarshal([]byte(s[start:end+1]), out)
}
