// Package pipeline turns a user message into a structured answer: classify,
// generate and repair SQL, execute, summarize and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm/prompt"
	"github.com/entrepeneur4lyf/paycopilot/internal/memory"
	"github.com/entrepeneur4lyf/paycopilot/internal/metrics"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

// Agents is the set of model calls the pipeline makes.
type Agents interface {
	Classify(ctx context.Context, query string, history []llm.Message) (llm.QueryType, error)
	GenerateSQL(ctx context.Context, augmented string, history []llm.Message) (*llm.SQLGeneration, error)
	Summarize(ctx context.Context, input string, history []llm.Message) (*llm.DataSummary, error)
	Condense(ctx context.Context, digest string) (*llm.Condensation, error)
}

// Executor runs SQL against the transaction store.
type Executor interface {
	Execute(ctx context.Context, query string, args ...any) ([]executor.Row, error)
}

// TurnLog is the best-effort durable side of a conversation.
type TurnLog interface {
	Save(ctx context.Context, turn *storage.Turn) bool
	Exists(ctx context.Context, chatID string) bool
}

// Orchestrator runs one turn per call.
type Orchestrator struct {
	agents         Agents
	exec           Executor
	memory         *memory.Memory
	turns          TurnLog
	schema         *schema.Schema
	events         events.Publisher[StageEvent]
	metrics        *metrics.Recorder
	llmTimeout     time.Duration
	requestTimeout time.Duration
	now            func() time.Time
	logger         *log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEvents publishes stage events to p.
func WithEvents(p events.Publisher[StageEvent]) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithLLMTimeout bounds each model call.
func WithLLMTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.llmTimeout = d }
}

// WithRequestTimeout bounds a whole turn.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.requestTimeout = d }
}

// WithSchema sets the column schema used in prompts.
func WithSchema(s *schema.Schema) Option {
	return func(o *Orchestrator) { o.schema = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator. mem and turns may be nil for stateless use.
func New(agents Agents, exec Executor, mem *memory.Memory, turns TurnLog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents:     agents,
		exec:       exec,
		memory:     mem,
		turns:      turns,
		schema:     schema.Default(),
		llmTimeout: 60 * time.Second,
		now:        time.Now,
		logger:     log.Default().WithPrefix("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.memory == nil {
		o.memory = memory.New(nil, nil)
	}
	return o
}

// turn carries the state of one request through the stages.
type turn struct {
	chatID  string
	query   string
	history []llm.Message
	start   time.Time
	branch  llm.QueryType
	resp    *Response
}

func (o *Orchestrator) elapsedMS(t *turn) float64 {
	return float64(o.now().Sub(t.start).Microseconds()) / 1000
}

func (o *Orchestrator) stage(t *turn, s Stage, detail string) {
	o.logger.Debug("stage", "chat_id", t.chatID, "stage", s, "detail", detail)
	if o.events == nil {
		return
	}
	ev := StageEvent{
		ChatID:    t.chatID,
		Stage:     s,
		Detail:    detail,
		ElapsedMS: o.now().Sub(t.start).Milliseconds(),
	}
	typ := events.PipelineStage
	switch s {
	case StageCompleted:
		typ = events.PipelineCompleted
	case StageFailed:
		typ = events.PipelineFailed
	}
	o.events.Publish(typ, ev, events.WithChatID(t.chatID))
}

// Handle answers one user message. It never returns nil.
func (o *Orchestrator) Handle(ctx context.Context, req Request) *Response {
	t := &turn{query: strings.TrimSpace(req.Query), start: o.now(), chatID: req.ChatID}

	if o.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.requestTimeout)
		defer cancel()
	}

	unlock, err := o.resolve(ctx, req, t)
	if err != nil {
		return o.fail(ctx, t, err)
	}
	defer unlock()

	t.branch = o.classify(ctx, t)
	if t.branch == llm.QueryTypeSimple {
		err = o.answerSimple(ctx, t)
	} else {
		err = o.answerSQL(ctx, t)
	}
	if err != nil {
		return o.fail(ctx, t, err)
	}

	o.condense(ctx, t)
	o.persist(ctx, t)

	o.metrics.Request(ctx, string(t.branch), "success")
	o.stage(t, StageCompleted, fmt.Sprintf("%d records", t.resp.RecordCount))
	return t.resp
}

// HandleSimple answers a one-off question in a fresh conversation.
func (o *Orchestrator) HandleSimple(ctx context.Context, query string) *Response {
	return o.Handle(ctx, Request{Query: query, ChatType: ChatNew})
}

// resolve validates the request, loads history and locks the conversation.
func (o *Orchestrator) resolve(ctx context.Context, req Request, t *turn) (func(), error) {
	if t.query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}

	chatType := req.ChatType
	if chatType == "" {
		chatType = ChatExisting
	}

	switch chatType {
	case ChatNew:
		t.chatID = uuid.New().String()
		unlock := o.memory.Lock(t.chatID)
		if err := o.memory.Create(ctx, t.chatID); err != nil {
			o.logger.Warn("failed to register conversation", "chat_id", t.chatID, "error", err)
		}
		return unlock, nil

	case ChatExisting:
		if req.ChatID == "" {
			return nil, fmt.Errorf("%w: chat_id is required when chat_type is 'existing'", ErrValidation)
		}
		t.chatID = req.ChatID
		// Existence is checked while holding the lock deletes also take.
		unlock := o.memory.Lock(t.chatID)
		if !o.chatExists(ctx, t.chatID) {
			unlock()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, t.chatID)
		}
		history, err := o.memory.Context(ctx, t.chatID)
		if err != nil {
			o.logger.Warn("conversation context unavailable", "chat_id", t.chatID, "error", err)
		}
		t.history = history
		return unlock, nil

	default:
		return nil, fmt.Errorf("%w: unknown chat_type %q", ErrValidation, chatType)
	}
}

func (o *Orchestrator) chatExists(ctx context.Context, chatID string) bool {
	if ok, err := o.memory.Exists(ctx, chatID); err == nil && ok {
		return true
	}
	return o.turns != nil && o.turns.Exists(ctx, chatID)
}

// classify labels the message. Any failure falls back to sql.
func (o *Orchestrator) classify(ctx context.Context, t *turn) llm.QueryType {
	o.stage(t, StageClassifying, "")
	qt, err := deadline.Run(ctx, o.llmTimeout, "query classification", func(ctx context.Context) (llm.QueryType, error) {
		return o.agents.Classify(ctx, t.query, t.history)
	})
	if err != nil {
		o.logger.Warn("classification failed, defaulting to sql", "chat_id", t.chatID, "error", err)
		o.metrics.ClassificationFallback(ctx)
		o.timedOut(ctx, err, "classification")
		return llm.QueryTypeSQL
	}
	return qt
}

func (o *Orchestrator) answerSimple(ctx context.Context, t *turn) error {
	o.stage(t, StageSimpleResponse, "")
	ds, err := o.summarize(ctx, prompt.SimpleQuestion(t.query), t.history)
	if err != nil {
		if !errors.Is(err, deadline.ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		o.timedOut(ctx, err, "simple_response")
		ds = simpleFallback()
	}
	t.resp = o.success(t, "", []executor.Row{}, ds)
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, input string, history []llm.Message) (*llm.DataSummary, error) {
	return deadline.Run(ctx, o.llmTimeout, "summary", func(ctx context.Context) (*llm.DataSummary, error) {
		return o.agents.Summarize(ctx, input, history)
	})
}

func (o *Orchestrator) success(t *turn, sql string, rows []executor.Row, ds *llm.DataSummary) *Response {
	insights := ds.KeyInsights
	if insights == nil {
		insights = []string{}
	}
	return &Response{
		Success:         true,
		ChatID:          t.chatID,
		Query:           t.query,
		SQLQuery:        sql,
		Data:            rows,
		Summary:         ds.Summary,
		Insights:        insights,
		Recommendation:  ds.Recommendation,
		ExecutionTimeMS: o.elapsedMS(t),
		RecordCount:     len(rows),
	}
}

// fail builds the failure response for err.
func (o *Orchestrator) fail(ctx context.Context, t *turn, err error) *Response {
	code := errorCode(err)
	o.logger.Error("turn failed", "chat_id", t.chatID, "code", code, "error", err)
	branch := string(t.branch)
	if branch == "" {
		branch = "unresolved"
	}
	o.metrics.Request(ctx, branch, code)
	o.stage(t, StageFailed, code)

	return &Response{
		Success:         false,
		ChatID:          t.chatID,
		Query:           t.query,
		Data:            []executor.Row{},
		Summary:         failureSummary(err),
		Insights:        []string{},
		ExecutionTimeMS: o.elapsedMS(t),
		ErrorCode:       code,
	}
}

func (o *Orchestrator) timedOut(ctx context.Context, err error, stage string) {
	if errors.Is(err, deadline.ErrTimeout) {
		o.metrics.StageTimeout(ctx, stage)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, errRetryFailed):
		return CodeExecution
	case errors.Is(err, deadline.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrGeneration):
		return CodeGeneration
	default:
		return CodeExecution
	}
}

func failureSummary(err error) string {
	var te *deadline.TimeoutError
	if errors.As(err, &te) && te.Hint != "" && !errors.Is(err, errRetryFailed) {
		return te.Hint
	}
	return "Error: " + err.Error()
}
