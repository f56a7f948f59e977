package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NotificationLevel represents the severity of a notification
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// NotificationStatus represents the delivery state of a notification
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
	StatusSkipped NotificationStatus = "skipped"
)

// Notification is one message fanned out to every configured channel
type Notification struct {
	ID            string             `json:"id"`
	TransactionID string             `json:"transaction_id,omitempty"`
	Title         string             `json:"title"`
	Message       string             `json:"message"`
	Level         NotificationLevel  `json:"level"`
	Status        NotificationStatus `json:"status"`
	Channels      []string           `json:"channels,omitempty"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
}

// Notifier delivers a notification over one channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n *Notification) error
}

// ErrNoChannels is returned when no channel is configured
var ErrNoChannels = errors.New("no notification channels configured")

// NotificationOptions contains optional notification parameters
type NotificationOptions struct {
	TransactionID string
	Level         NotificationLevel
}

// NotificationOption configures a notification
type NotificationOption func(*NotificationOptions)

// WithTransactionID ties a notification to a transaction
func WithTransactionID(id string) NotificationOption {
	return func(o *NotificationOptions) {
		o.TransactionID = id
	}
}

// WithLevel sets the notification level
func WithLevel(level NotificationLevel) NotificationOption {
	return func(o *NotificationOptions) {
		o.Level = level
	}
}

// Manager fans notifications out to its channels and keeps a bounded record
// of recent deliveries
type Manager struct {
	channels         []Notifier
	timeout          time.Duration
	recent           []*Notification
	maxNotifications int
	mu               sync.RWMutex
	logger           *log.Logger
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithTimeout bounds each delivery attempt
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithMaxNotifications bounds the delivery record
func WithMaxNotifications(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxNotifications = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a notification manager over the given channels. Nil
// channels are skipped.
func NewManager(channels []Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		timeout:          10 * time.Second,
		maxNotifications: 100,
		logger:           log.Default().WithPrefix("notify"),
	}
	for _, c := range channels {
		if c != nil {
			m.channels = append(m.channels, c)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Channels returns the names of the configured channels
func (m *Manager) Channels() []string {
	names := make([]string, len(m.channels))
	for i, c := range m.channels {
		names[i] = c.Name()
	}
	return names
}

// Send delivers a notification to every channel. Every channel is attempted;
// failures are joined into the returned error.
func (m *Manager) Send(ctx context.Context, title, message string, opts ...NotificationOption) (*Notification, error) {
	options := &NotificationOptions{Level: LevelInfo}
	for _, opt := range opts {
		opt(options)
	}

	n := &Notification{
		ID:            uuid.New().String(),
		TransactionID: options.TransactionID,
		Title:         title,
		Message:       message,
		Level:         options.Level,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}

	if len(m.channels) == 0 {
		n.Status = StatusSkipped
		m.record(n)
		return n, ErrNoChannels
	}

	var errs []error
	for _, c := range m.channels {
		if err := m.deliver(ctx, c, n); err != nil {
			m.logger.Warn("notification delivery failed", "channel", c.Name(), "id", n.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		n.Channels = append(n.Channels, c.Name())
	}

	err := errors.Join(errs...)
	switch {
	case err == nil:
		n.Status = StatusSent
	case len(n.Channels) > 0:
		n.Status = StatusSent
		n.Error = err.Error()
	default:
		n.Status = StatusFailed
		n.Error = err.Error()
	}
	if n.Status == StatusSent {
		now := time.Now()
		n.SentAt = &now
	}

	m.record(n)
	return n, err
}

func (m *Manager) deliver(ctx context.Context, c Notifier, n *Notification) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return c.Notify(ctx, n)
}

func (m *Manager) record(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = append(m.recent, n)
	if over := len(m.recent) - m.maxNotifications; over > 0 {
		m.recent = append(m.recent[:0:0], m.recent[over:]...)
	}
}

// Recent returns the delivery record, newest first
func (m *Manager) Recent() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Notification, len(m.recent))
	for i, n := range m.recent {
		out[len(m.recent)-1-i] = n
	}
	return out
}

// NotificationStats contains notification statistics
type NotificationStats struct {
	Total    int                        `json:"total"`
	Channels int                        `json:"channels"`
	ByStatus map[NotificationStatus]int `json:"by_status"`
}

// GetStats returns delivery statistics over the recent record
func (m *Manager) GetStats() NotificationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := NotificationStats{
		Total:    len(m.recent),
		Channels: len(m.channels),
		ByStatus: make(map[NotificationStatus]int),
	}
	for _, n := range m.recent {
		stats.ByStatus[n.Status]++
	}
	return stats
}

// AlertMessage renders the text sent for a new transaction alert
func AlertMessage(transactionID, summary string) string {
	return fmt.Sprintf("There is a new alert for transaction %s. The summary is: %s", transactionID, summary)
}

// AlertSubject renders the email subject for a transaction alert
func AlertSubject(transactionID string) string {
	return "Transaction Alert: " + transactionID
}
