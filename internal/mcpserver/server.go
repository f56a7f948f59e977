// Package mcpserver exposes the analytics assistant as MCP tools so agent
// clients can query transactions over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
	"github.com/entrepeneur4lyf/paycopilot/internal/transactions"
)

const schemaURI = "paycopilot://schema"

// Assistant answers natural-language questions
type Assistant interface {
	Handle(ctx context.Context, req pipeline.Request) *pipeline.Response
	GenerateSQL(ctx context.Context, query string) *pipeline.SQLOnlyResponse
}

// Reports serves the fixed reporting queries
type Reports interface {
	Summary(ctx context.Context) (*transactions.Summary, error)
	UserTransactions(ctx context.Context, userID string, limit int) ([]executor.Row, error)
}

// Server wraps an MCP server with the transaction tools registered
type Server struct {
	server    *server.MCPServer
	assistant Assistant
	reports   Reports
	schema    *schema.Schema
	logger    *log.Logger
}

// Option configures a Server
type Option func(*Server)

// WithSchema sets the schema served as a resource
func WithSchema(s *schema.Schema) Option {
	return func(srv *Server) { srv.schema = s }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// New creates the MCP server and registers its tools
func New(version string, assistant Assistant, reports Reports, opts ...Option) *Server {
	s := &Server{
		assistant: assistant,
		reports:   reports,
		schema:    schema.Default(),
		logger:    log.Default().WithPrefix("mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = server.NewMCPServer(
		"paycopilot",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.registerTools()
	s.registerResources()
	return s
}

func (s *Server) registerTools() {
	askTool := mcp.NewTool("ask_transactions",
		mcp.WithDescription("Answer a natural-language question about payment transactions"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("chat_id",
			mcp.Description("Continue an existing conversation (default: start a new one)"),
		),
	)
	s.server.AddTool(askTool, s.handleAsk)

	sqlTool := mcp.NewTool("generate_sql",
		mcp.WithDescription("Generate and repair SQL for a question without running it"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to translate"),
		),
	)
	s.server.AddTool(sqlTool, s.handleGenerateSQL)

	summaryTool := mcp.NewTool("transaction_summary",
		mcp.WithDescription("Count transactions by final status"),
	)
	s.server.AddTool(summaryTool, s.handleSummary)

	userTool := mcp.NewTool("user_transactions",
		mcp.WithDescription("List the most recent transaction events of a user"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("The user id"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum events to return, 1 to %d (default: %d)",
				transactions.MaxUserLimit, transactions.DefaultUserLimit)),
		),
	)
	s.server.AddTool(userTool, s.handleUserTransactions)
}

func (s *Server) registerResources() {
	res := mcp.NewResource(
		schemaURI,
		"Transaction Schema",
		mcp.WithResourceDescription("Columns of the transactions table"),
		mcp.WithMIMEType("application/json"),
	)
	s.server.AddResource(res, s.handleSchema)
}

// ServeStdio serves the MCP protocol over stdin and stdout until EOF
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.server)
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.server
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	req := pipeline.Request{Query: query, ChatType: pipeline.ChatNew}
	if chatID := request.GetString("chat_id", ""); chatID != "" {
		req.ChatType = pipeline.ChatExisting
		req.ChatID = chatID
	}

	resp := s.assistant.Handle(ctx, req)
	if !resp.Success {
		s.logger.Warn("question failed", "chat_id", resp.ChatID, "code", resp.ErrorCode)
		data, _ := json.MarshalIndent(resp, "", "  ")
		return mcp.NewToolResultError(string(data)), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleGenerateSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	resp := s.assistant.GenerateSQL(ctx, query)
	if !resp.Success {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate SQL: %s", resp.Error)), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.reports.Summary(ctx)
	if errors.Is(err, transactions.ErrNoData) {
		return mcp.NewToolResultText("No transaction data found."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get transaction summary: %v", err)), nil
	}
	return jsonResult(summary)
}

func (s *Server) handleUserTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id parameter is required"), nil
	}
	limit := int(request.GetFloat("limit", transactions.DefaultUserLimit))
	if limit < 1 || limit > transactions.MaxUserLimit {
		return mcp.NewToolResultError(transactions.ErrInvalidLimit.Error()), nil
	}

	rows, err := s.reports.UserTransactions(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get transactions for user %s: %v", userID, err)), nil
	}
	return jsonResult(map[string]any{
		"user_id":      userID,
		"transactions": rows,
		"count":        len(rows),
	})
}

func (s *Server) handleSchema(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     s.schema.PromptBlock(),
		},
	}, nil
}
