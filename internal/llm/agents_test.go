package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
)

type scriptedHandler struct {
	replies  []string
	err      error
	requests []CompletionRequest
}

func (h *scriptedHandler) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	h.requests = append(h.requests, req)
	if h.err != nil {
		return nil, h.err
	}
	reply := h.replies[0]
	h.replies = h.replies[1:]
	return &CompletionResponse{Content: reply}, nil
}

func (h *scriptedHandler) GetModel() string { return "scripted" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    QueryType
		wantErr bool
	}{
		{name: "simple", reply: `{"query_type": "simple"}`, want: QueryTypeSimple},
		{name: "sql in code fence", reply: "```json\n{\"query_type\": \"sql\"}\n```", want: QueryTypeSQL},
		{name: "unknown label", reply: `{"query_type": "maybe"}`, wantErr: true},
		{name: "not json", reply: `I think this needs SQL`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &scriptedHandler{replies: []string{tt.reply}}
			got, err := NewAgents(h, schema.Default()).Classify(context.Background(), "How to resolve this issue?", nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOutput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "query_type", h.requests[0].ResponseSchema.Name)
		})
	}
}

func TestHistoryProcessorSeesFullMessageList(t *testing.T) {
	h := &scriptedHandler{replies: []string{`{"query_type": "sql"}`}}
	var seen int
	agents := NewAgents(h, schema.Default(), WithHistoryProcessor(func(m []Message) []Message {
		seen = len(m)
		return m[len(m)-1:]
	}))

	history := []Message{UserMessage("a"), AssistantMessage("b"), UserMessage("c")}
	_, err := agents.Classify(context.Background(), "how many?", history)
	require.NoError(t, err)

	assert.Equal(t, 4, seen)
	require.Len(t, h.requests[0].Messages, 1)
	assert.Equal(t, "how many?", h.requests[0].Messages[0].Content)
	assert.Len(t, history, 3, "caller history must not be modified")
}

func TestGenerateSQLKeepsExchange(t *testing.T) {
	reply := `{"sql_query": "SELECT COUNT(*) FROM transactions", "reasoning": "count rows"}`
	h := &scriptedHandler{replies: []string{reply}}
	agents := NewAgents(h, schema.Default())

	gen, err := agents.GenerateSQL(context.Background(), "User query: count", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM transactions", gen.SQLQuery)
	require.Len(t, gen.Exchange, 2)
	assert.Equal(t, RoleUser, gen.Exchange[0].Role)
	assert.Equal(t, RoleAssistant, gen.Exchange[1].Role)
	assert.Contains(t, h.requests[0].SystemPrompt, "transaction_id")
}

func TestGenerateSQLRejectsEmptyQuery(t *testing.T) {
	h := &scriptedHandler{replies: []string{`{"sql_query": " ", "reasoning": ""}`}}
	_, err := NewAgents(h, schema.Default()).GenerateSQL(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestSummarizeDefaultsInsights(t *testing.T) {
	h := &scriptedHandler{replies: []string{`{"summary": "all good", "transaction_status": null, "recommendation": "none"}`}}
	out, err := NewAgents(h, schema.Default()).Summarize(context.Background(), "data", nil)
	require.NoError(t, err)
	assert.Equal(t, "all good", out.Summary)
	assert.NotNil(t, out.KeyInsights)
	assert.Nil(t, out.TransactionStatus)
	require.NotNil(t, out.Recommendation)
	assert.Equal(t, "none", *out.Recommendation)
}

func TestCondenseAcceptsMetadataAsString(t *testing.T) {
	reply := `{"summary": "tx_123 failed", "metadata": "{\"user_id\": null, \"transaction_id\": \"tx_123\", \"error_code\": \"INSUFFICIENT_GAS\", \"status\": \"FAILED\"}"}`
	h := &scriptedHandler{replies: []string{reply}}

	out, err := NewAgents(h, schema.Default()).Condense(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, out.Metadata.TransactionID)
	assert.Equal(t, "tx_123", *out.Metadata.TransactionID)
	assert.Nil(t, out.Metadata.UserID)
	assert.Equal(t, `{"user_id":null,"transaction_id":"tx_123","error_code":"INSUFFICIENT_GAS","status":"FAILED"}`, out.Metadata.String())
}

func TestCondenseAcceptsMetadataObject(t *testing.T) {
	reply := `{"summary": "s", "metadata": {"user_id": "usr_1", "transaction_id": null, "error_code": null, "status": null}}`
	h := &scriptedHandler{replies: []string{reply}}

	out, err := NewAgents(h, schema.Default()).Condense(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, out.Metadata.UserID)
	assert.Equal(t, "usr_1", *out.Metadata.UserID)
}

func TestProviderErrorsAreWrapped(t *testing.T) {
	boom := errors.New("rate limited")
	h := &scriptedHandler{err: boom}
	_, err := NewAgents(h, schema.Default()).AnalyzeFailure(context.Background(), "[]")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failure_analysis")
}
