package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/entrepeneur4lyf/paycopilot/internal/alerts"
	"github.com/entrepeneur4lyf/paycopilot/internal/events"
)

const sseKeepAlive = 15 * time.Second

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data"`
}

// handleAlertStream pushes alert events as Server-Sent Events until the
// client disconnects
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.AlertEvents == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Alert stream disabled", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	ctx := r.Context()
	sub := s.deps.AlertEvents.Subscribe(ctx, events.ByType[alerts.Event](events.AlertCreated, events.AlertNotified))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := s.writeSSEEvent(w, SSEEvent{Event: "connected", Data: map[string]int64{"timestamp": time.Now().Unix()}}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := s.writeSSEEvent(w, SSEEvent{ID: ev.ID, Event: string(ev.Type), Data: ev.Payload}); err != nil {
				s.logger.Warn("failed to write alert event", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an SSE event to the response writer
func (s *Server) writeSSEEvent(w http.ResponseWriter, event SSEEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if event.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event.Event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
