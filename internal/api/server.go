package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/entrepeneur4lyf/paycopilot/internal/alerts"
	"github.com/entrepeneur4lyf/paycopilot/internal/config"
	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
	"github.com/entrepeneur4lyf/paycopilot/internal/transactions"
)

// Assistant answers natural-language questions
type Assistant interface {
	Handle(ctx context.Context, req pipeline.Request) *pipeline.Response
	HandleSimple(ctx context.Context, query string) *pipeline.Response
	GenerateSQL(ctx context.Context, query string) *pipeline.SQLOnlyResponse
}

// ChatStore is the best-effort durable conversation log
type ChatStore interface {
	List(ctx context.Context, limit int) []storage.ChatSummary
	History(ctx context.Context, chatID string) []storage.Turn
	Exists(ctx context.Context, chatID string) bool
	Delete(ctx context.Context, chatID string) bool
	SetTitle(ctx context.Context, chatID, title string) bool
	Ping(ctx context.Context) error
}

// ChatCache is the in-process conversation memory. Lock is the same
// per-conversation lock the pipeline holds for a turn.
type ChatCache interface {
	Exists(ctx context.Context, chatID string) (bool, error)
	Delete(ctx context.Context, chatID string) error
	Lock(chatID string) func()
}

// Reports runs the fixed transaction reports
type Reports interface {
	Summary(ctx context.Context) (*transactions.Summary, error)
	UserTransactions(ctx context.Context, userID string, limit int) ([]executor.Row, error)
}

// AlertStore lists and updates stored alerts
type AlertStore interface {
	List(ctx context.Context) ([]storage.Alert, error)
	MarkSeen(ctx context.Context, id string) (bool, error)
}

// WebhookProcessor handles inbound alert webhooks
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, w alerts.Webhook) (*alerts.Result, error)
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the HTTP layer dispatches to
type Dependencies struct {
	Assistant   Assistant
	Chats       ChatStore
	Cache       ChatCache
	Reports     Reports
	Alerts      AlertStore
	Webhooks    WebhookProcessor
	Database    Pinger
	StageEvents *events.Broker[pipeline.StageEvent]
	AlertEvents *events.Broker[alerts.Event]
	Metrics     http.Handler
}

// APIResponse is the envelope of every non-query endpoint
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server represents the API server
type Server struct {
	config      *config.Config
	deps        Dependencies
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	httpServer  *http.Server
	logger      *log.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		config:      cfg,
		deps:        deps,
		connections: NewConnectionManager(),
		logger:      log.Default().WithPrefix("api"),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.allowedOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// allowedOrigin reports whether a browser origin may call the API. Requests
// without an origin (curl, server-to-server) are allowed.
func (s *Server) allowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	if s.config == nil {
		return false
	}
	return slices.Contains(s.config.Server.CORSOrigins, "*") || slices.Contains(s.config.Server.CORSOrigins, origin)
}

// Start starts the API server and blocks until it stops
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("starting API server", "addr", addr)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.connections.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Queries
	api.HandleFunc("/query", s.handleQuery).Methods("POST", "OPTIONS")
	api.HandleFunc("/query-simple", s.handleQuerySimple).Methods("POST", "OPTIONS")
	api.HandleFunc("/sql-only", s.handleSQLOnly).Methods("POST", "OPTIONS")

	// Conversations
	api.HandleFunc("/chats", s.handleListChats).Methods("GET")
	api.HandleFunc("/chats/{chat_id}/history", s.handleChatHistory).Methods("GET")
	api.HandleFunc("/chats/{chat_id}", s.handleDeleteChat).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/chats/{chat_id}/title", s.handleUpdateTitle).Methods("PUT", "OPTIONS")

	// Transactions and alerts
	tx := api.PathPrefix("/transactions").Subrouter()
	tx.HandleFunc("/summary", s.handleTransactionSummary).Methods("GET")
	tx.HandleFunc("/users/{user_id}/transactions", s.handleUserTransactions).Methods("GET")
	tx.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	tx.HandleFunc("/alerts/stream", s.handleAlertStream).Methods("GET")
	tx.HandleFunc("/alerts/{alert_id}", s.handleMarkAlertSeen).Methods("POST", "OPTIONS")
	tx.HandleFunc("/webhook", s.handleWebhook).Methods("POST", "OPTIONS")

	// Stage events
	router.HandleFunc("/ws/events", s.handleEventsWebSocket)
	api.HandleFunc("/websocket/stats", s.handleWebSocketStats).Methods("GET")

	// Prometheus scrape endpoint
	if s.deps.Metrics != nil {
		router.Handle("/metrics", s.deps.Metrics).Methods("GET")
	}

	return router
}

// corsMiddleware adds CORS headers for configured origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Response helpers
func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeOK(w http.ResponseWriter, message string, data any) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string, err error) {
	resp := APIResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, code, resp)
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{"api": "healthy"}
	healthy := true
	check := func(name string, p Pinger) {
		if p == nil {
			services[name] = "disabled"
			return
		}
		if err := p.Ping(ctx); err != nil {
			services[name] = "unhealthy: " + err.Error()
			healthy = false
			return
		}
		services[name] = "healthy"
	}
	check("database", s.deps.Database)
	check("chats", s.deps.Chats)

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"services":  services,
	})
}
