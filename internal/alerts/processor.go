// Package alerts turns alert webhooks into failure analyses and notifications.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/notifications"
)

// StateAlerting is the only webhook state that triggers analysis
const StateAlerting = "alerting"

// TimeoutSummary replaces the analysis when the model does not answer in time
const TimeoutSummary = "I'm here to help with your payment and transaction questions. Could you please rephrase your question?"

var (
	ErrMissingTransaction = errors.New("transaction_id not found in alert message")
	ErrAnalysis           = errors.New("failure analysis failed")
)

// Webhook is the inbound alert payload. Message carries the transaction id.
type Webhook struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

// Status values of a Result
const (
	StatusIgnored   = "ignored"
	StatusProcessed = "processed"
)

// Result describes what a webhook did
type Result struct {
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
	AlertID       int64   `json:"alert_id,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	EventCount    int     `json:"event_count"`
	Notified      bool    `json:"notified"`
	NotifyError   *string `json:"notify_error,omitempty"`
}

// Event is published when an alert is stored or delivered
type Event struct {
	AlertID       int64    `json:"alert_id"`
	TransactionID string   `json:"transaction_id"`
	Summary       string   `json:"summary"`
	Channels      []string `json:"channels,omitempty"`
}

// EventSource returns the event log of one transaction
type EventSource interface {
	TransactionEvents(ctx context.Context, transactionID string) ([]executor.Row, error)
}

// Analyzer writes a failure analysis from an event log
type Analyzer interface {
	AnalyzeFailure(ctx context.Context, eventLog string) (*llm.FailureAnalysis, error)
}

// AlertWriter stores an alert
type AlertWriter interface {
	Insert(ctx context.Context, transactionID, summary string) (int64, error)
}

// Sender delivers a notification to the configured channels
type Sender interface {
	Send(ctx context.Context, title, message string, opts ...notifications.NotificationOption) (*notifications.Notification, error)
}

// Processor handles alert webhooks
type Processor struct {
	source     EventSource
	analyzer   Analyzer
	alerts     AlertWriter
	sender     Sender
	events     events.Publisher[Event]
	llmTimeout time.Duration
	logger     *log.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithEvents publishes alert events to p
func WithEvents(p events.Publisher[Event]) Option {
	return func(pr *Processor) { pr.events = p }
}

// WithLLMTimeout bounds the failure analysis
func WithLLMTimeout(d time.Duration) Option {
	return func(pr *Processor) { pr.llmTimeout = d }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// NewProcessor creates a webhook processor. sender may be nil when no
// notification channel is configured.
func NewProcessor(source EventSource, analyzer Analyzer, alerts AlertWriter, sender Sender, opts ...Option) *Processor {
	p := &Processor{
		source:     source,
		analyzer:   analyzer,
		alerts:     alerts,
		sender:     sender,
		llmTimeout: 60 * time.Second,
		logger:     log.Default().WithPrefix("alerts"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleWebhook processes one alert. Only the alerting state does any work.
// Event lookup, persistence and notification are best effort; only a missing
// transaction id or a failed analysis is returned as an error.
func (p *Processor) HandleWebhook(ctx context.Context, w Webhook) (*Result, error) {
	if w.State != StateAlerting {
		p.logger.Debug("ignoring webhook", "state", w.State)
		return &Result{Status: StatusIgnored, Reason: fmt.Sprintf("State was '%s'", w.State)}, nil
	}

	txID := strings.TrimSpace(w.Message)
	if txID == "" {
		return nil, ErrMissingTransaction
	}
	p.logger.Info("analyzing alert", "transaction_id", txID)

	res := &Result{Status: StatusProcessed, TransactionID: txID}

	rows, err := p.source.TransactionEvents(ctx, txID)
	if err != nil {
		p.logger.Warn("failed to load transaction events", "transaction_id", txID, "error", err)
		rows = nil
	}
	res.EventCount = len(rows)

	summary, err := p.analyze(ctx, rows)
	if err != nil {
		return nil, err
	}
	res.Summary = summary

	if id, err := p.alerts.Insert(context.WithoutCancel(ctx), txID, summary); err != nil {
		p.logger.Error("failed to store alert", "transaction_id", txID, "error", err)
	} else {
		res.AlertID = id
		p.publish(events.AlertCreated, Event{AlertID: id, TransactionID: txID, Summary: summary})
	}

	p.notify(ctx, res)
	return res, nil
}

func (p *Processor) analyze(ctx context.Context, rows []executor.Row) (string, error) {
	if rows == nil {
		rows = []executor.Row{}
	}
	eventLog, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode event log: %w", err)
	}

	analysis, err := deadline.Run(ctx, p.llmTimeout, "failure analysis", func(ctx context.Context) (*llm.FailureAnalysis, error) {
		return p.analyzer.AnalyzeFailure(ctx, string(eventLog))
	})
	switch {
	case errors.Is(err, deadline.ErrTimeout):
		p.logger.Warn("failure analysis timed out", "timeout", p.llmTimeout)
		return TimeoutSummary, nil
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return analysis.Summary, nil
}

func (p *Processor) notify(ctx context.Context, res *Result) {
	if p.sender == nil {
		return
	}

	n, err := p.sender.Send(context.WithoutCancel(ctx),
		notifications.AlertSubject(res.TransactionID),
		notifications.AlertMessage(res.TransactionID, res.Summary),
		notifications.WithTransactionID(res.TransactionID),
		notifications.WithLevel(notifications.LevelError),
	)
	if err != nil {
		msg := err.Error()
		res.NotifyError = &msg
		p.logger.Warn("alert notification failed", "transaction_id", res.TransactionID, "error", err)
	}
	if n != nil && len(n.Channels) > 0 {
		res.Notified = true
		p.publish(events.AlertNotified, Event{
			AlertID:       res.AlertID,
			TransactionID: res.TransactionID,
			Summary:       res.Summary,
			Channels:      n.Channels,
		})
	}
}

func (p *Processor) publish(t events.EventType, ev Event) {
	if p.events != nil {
		p.events.Publish(t, ev)
	}
}
