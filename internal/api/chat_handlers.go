package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

// QueryRequest is the body of the stateless query endpoints
type QueryRequest struct {
	Query string `json:"query"`
}

// TitleRequest is the optional body of the title endpoint
type TitleRequest struct {
	Title string `json:"title"`
}

// ChatHistory is the history view of one conversation
type ChatHistory struct {
	ChatID    string         `json:"chat_id"`
	Messages  []storage.Turn `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var errChatNotFound = errors.New("chat not found")

// statusForCode maps a pipeline error code to an HTTP status
func statusForCode(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case pipeline.CodeValidation:
		return http.StatusBadRequest
	case pipeline.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeQueryResponse(w http.ResponseWriter, resp *pipeline.Response) {
	code := http.StatusOK
	if !resp.Success {
		code = statusForCode(resp.ErrorCode)
		if code == http.StatusOK {
			code = http.StatusInternalServerError
		}
	}
	s.writeJSON(w, code, resp)
}

// handleQuery answers a message within a conversation
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query request", err)
		return
	}
	s.writeQueryResponse(w, s.deps.Assistant.Handle(r.Context(), req))
}

// handleQuerySimple answers a message in a fresh conversation
func (s *Server) handleQuerySimple(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query request", err)
		return
	}
	s.writeQueryResponse(w, s.deps.Assistant.HandleSimple(r.Context(), req.Query))
}

// handleSQLOnly generates and repairs SQL without running it
func (s *Server) handleSQLOnly(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query request", err)
		return
	}

	resp := s.deps.Assistant.GenerateSQL(r.Context(), req.Query)
	if !resp.Success {
		s.writeJSON(w, statusForCode(resp.ErrorCode), APIResponse{
			Success: false,
			Message: "Failed to generate SQL",
			Data:    resp,
			Error:   resp.Error,
		})
		return
	}
	s.writeOK(w, "SQL query generated successfully", resp)
}

// handleListChats lists conversations, most recently active first
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit must be a non-negative integer, got %q", raw))
			return
		}
		limit = n
	}

	chats := s.deps.Chats.List(r.Context(), limit)
	s.writeOK(w, fmt.Sprintf("Retrieved %d chat records", len(chats)), map[string]any{
		"chats": chats,
		"count": len(chats),
	})
}

// handleChatHistory returns every turn of a conversation
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chat_id"]

	turns := s.deps.Chats.History(r.Context(), chatID)
	if len(turns) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Chat %s not found", chatID), errChatNotFound)
		return
	}

	s.writeOK(w, fmt.Sprintf("Retrieved history for chat %s", chatID), ChatHistory{
		ChatID:    chatID,
		Messages:  turns,
		CreatedAt: turns[0].Timestamp,
		UpdatedAt: turns[len(turns)-1].Timestamp,
	})
}

// handleDeleteChat removes a conversation from the cache and the store
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := mux.Vars(r)["chat_id"]

	if s.deps.Cache != nil {
		unlock := s.deps.Cache.Lock(chatID)
		defer unlock()
	}

	stored := s.deps.Chats.Exists(ctx, chatID)
	cached := false
	if s.deps.Cache != nil {
		ok, err := s.deps.Cache.Exists(ctx, chatID)
		if err != nil {
			s.logger.Warn("cache lookup failed", "chat_id", chatID, "error", err)
		}
		cached = ok
	}
	if !stored && !cached {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Chat %s not found", chatID), errChatNotFound)
		return
	}

	if stored && !s.deps.Chats.Delete(ctx, chatID) {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete chat %s", chatID),
			errors.New("database deletion failed"))
		return
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Delete(ctx, chatID); err != nil {
			s.logger.Warn("failed to evict chat from cache", "chat_id", chatID, "error", err)
		}
	}

	s.writeOK(w, fmt.Sprintf("Chat %s deleted successfully", chatID), map[string]string{"deleted_chat_id": chatID})
}

// handleUpdateTitle records a title row for a conversation. The title comes
// from the title query parameter or a JSON body.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID := mux.Vars(r)["chat_id"]

	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" && r.ContentLength != 0 {
		var body TitleRequest
		if err := decodeBody(w, r, &body); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid title request", err)
			return
		}
		title = strings.TrimSpace(body.Title)
	}
	if title == "" {
		s.writeError(w, http.StatusBadRequest, "Title is required", errors.New("title must not be empty"))
		return
	}

	if !s.deps.Chats.Exists(ctx, chatID) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Chat %s not found", chatID), errChatNotFound)
		return
	}
	if !s.deps.Chats.SetTitle(ctx, chatID, title) {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update chat title for %s", chatID), nil)
		return
	}

	s.writeOK(w, "Chat title updated successfully", map[string]any{
		"chat_id":    chatID,
		"new_title":  title,
		"updated_at": time.Now().UTC(),
	})
}
