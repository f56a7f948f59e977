package pipeline

import (
	"errors"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
)

// ChatType selects whether a request starts or continues a conversation.
type ChatType string

const (
	ChatNew      ChatType = "new"
	ChatExisting ChatType = "existing"
)

// Request is one user message.
type Request struct {
	Query    string   `json:"query"`
	ChatType ChatType `json:"chat_type,omitempty"`
	ChatID   string   `json:"chat_id,omitempty"`
}

// Response is the structured answer to a Request. It is always well formed,
// including on failure.
type Response struct {
	Success         bool           `json:"success"`
	ChatID          string         `json:"chat_id"`
	Query           string         `json:"query"`
	SQLQuery        string         `json:"sql_query"`
	Data            []executor.Row `json:"data"`
	Summary         string         `json:"summary"`
	Insights        []string       `json:"insights"`
	Recommendation  *string        `json:"recommendation"`
	ResponseSummary *string        `json:"response_summary"`
	ExecutionTimeMS float64        `json:"execution_time_ms"`
	RecordCount     int            `json:"record_count"`
	ErrorCode       string         `json:"error_code,omitempty"`
}

// SQLOnlyResponse is the result of GenerateSQL.
type SQLOnlyResponse struct {
	Success      bool     `json:"success"`
	Query        string   `json:"query"`
	SQLQuery     string   `json:"sql_query"`
	GeneratedSQL string   `json:"generated_sql,omitempty"`
	Repairs      []string `json:"repairs"`
	Reasoning    string   `json:"reasoning,omitempty"`
	Error        string   `json:"error,omitempty"`
	ErrorCode    string   `json:"error_code,omitempty"`
}

// Error codes carried by failed responses.
const (
	CodeValidation = "validation_failed"
	CodeNotFound   = "not_found"
	CodeTimeout    = "timeout"
	CodeExecution  = "execution_failed"
	CodeGeneration = "generation_failed"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("chat not found")
	ErrGeneration = errors.New("query generation failed")
	ErrExecution  = errors.New("query execution failed")

	// errRetryFailed marks a failure after the computed-column regeneration.
	errRetryFailed = errors.New("regenerated query failed")
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageClassifying         Stage = "classifying"
	StageSimpleResponse      Stage = "simple_response"
	StageGenerating          Stage = "generating"
	StageRepairing           Stage = "repairing"
	StageExecuting           Stage = "executing"
	StageRetrying            Stage = "retrying"
	StageSummarizing         Stage = "summarizing"
	StageResponseSummarizing Stage = "response_summarizing"
	StagePersisting          Stage = "persisting"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// StageEvent is published as a turn progresses.
type StageEvent struct {
	ChatID    string `json:"chat_id"`
	Stage     Stage  `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}
