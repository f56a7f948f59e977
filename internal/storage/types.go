package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// TitlePrefix marks turn rows that only record a conversation title.
const TitlePrefix = "[TITLE_UPDATE]: "

// Turn is one persisted request/response exchange
type Turn struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response,omitempty"`
	Summary   *string   `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSummary is the list view of one conversation
type ChatSummary struct {
	ID           int64     `json:"id"`
	ChatID       string    `json:"chat_id"`
	Title        string    `json:"title"`
	Query        string    `json:"query"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Alert is a failure analysis recorded for one transaction
type Alert struct {
	ID            int64     `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Summary       string    `json:"summary"`
	IsSeen        bool      `json:"is_seen"`
	Timestamp     time.Time `json:"timestamp"`
}

// dbTime scans timestamps from drivers that return either time.Time or text.
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t dbTime) Value() (driver.Value, error) {
	return t.Time, nil
}

// chatTitle derives a list title from the latest and first queries of a chat.
func chatTitle(latest, first string) string {
	if len(latest) > len(TitlePrefix) && latest[:len(TitlePrefix)] == TitlePrefix {
		return latest[len(TitlePrefix):]
	}
	r := []rune(first)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return first
}
