package notifications

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SendMailFunc matches smtp.SendMail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends notifications over SMTP
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     SendMailFunc
}

// EmailOption configures an EmailNotifier
type EmailOption func(*EmailNotifier)

// WithSendMail replaces the SMTP transport
func WithSendMail(f SendMailFunc) EmailOption {
	return func(e *EmailNotifier) {
		e.send = f
	}
}

// NewEmailNotifier creates an SMTP notifier. Authentication is skipped when
// username is empty.
func NewEmailNotifier(host string, port int, username, password, from string, to []string, opts ...EmailOption) (*EmailNotifier, error) {
	if host == "" {
		return nil, errors.New("smtp host is required")
	}
	if from == "" || len(to) == 0 {
		return nil, errors.New("email sender and recipients are required")
	}
	e := &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Name implements Notifier
func (e *EmailNotifier) Name() string { return "email" }

// Notify implements Notifier. smtp.SendMail takes no context, so cancellation
// is observed only before the send starts and while waiting for it.
func (e *EmailNotifier) Notify(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))
	msg := e.message(n)

	done := make(chan error, 1)
	go func() {
		done <- e.send(addr, auth, e.from, e.to, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailNotifier) message(n *Notification) []byte {
	subject := n.Title
	if n.TransactionID != "" {
		subject = AlertSubject(n.TransactionID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Message)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
