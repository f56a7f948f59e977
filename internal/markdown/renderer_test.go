package markdown

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestTable(t *testing.T) {
	rows := []executor.Row{
		{"provider": "stripe", "failures": int64(3)},
		{"provider": "adyen|eu", "failures": int64(1), "note": "line one\nline two"},
	}

	got := Table(rows, 0)
	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| failures | note | provider |", lines[0])
	assert.Equal(t, "| --- | --- | --- |", lines[1])
	assert.Equal(t, "| 3 |  | stripe |", lines[2])
	assert.Equal(t, `| 1 | line one line two | adyen\|eu |`, lines[3])

	assert.Empty(t, Table(nil, 5))
}

func TestTable_Truncates(t *testing.T) {
	var rows []executor.Row
	for i := 0; i < 5; i++ {
		rows = append(rows, executor.Row{"n": i})
	}
	got := Table(rows, 2)
	assert.Contains(t, got, "| 0 |")
	assert.Contains(t, got, "| 1 |")
	assert.NotContains(t, got, "| 2 |")
	assert.Contains(t, got, "3 more rows not shown")
}

func TestResponseDocument(t *testing.T) {
	resp := &pipeline.Response{
		Success:        true,
		Summary:        "Three transfers failed.",
		Insights:       []string{"All on stripe", "All after 22:00"},
		Recommendation: strPtr("Check the stripe webhook."),
		Data:           []executor.Row{{"transaction_id": "t1"}},
		RecordCount:    1,
	}

	doc := ResponseDocument(resp, DefaultTableRows)
	assert.Contains(t, doc, "## Summary\n\nThree transfers failed.")
	assert.Contains(t, doc, "- All on stripe\n- All after 22:00\n")
	assert.Contains(t, doc, "### Recommendation\n\nCheck the stripe webhook.")
	assert.Contains(t, doc, "### Data (1 records)")
	assert.Contains(t, doc, "| t1 |")

	bare := ResponseDocument(&pipeline.Response{Success: true, Summary: "Hello"}, DefaultTableRows)
	assert.NotContains(t, bare, "Insights")
	assert.NotContains(t, bare, "Recommendation")
	assert.NotContains(t, bare, "Data")
}

func TestHistoryDocument(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	turns := []storage.Turn{
		{ChatID: "c1", Query: "failed today?", Summary: strPtr("Two failures."), Timestamp: ts},
		{ChatID: "c1", Query: storage.TitlePrefix + "Daily failures", Timestamp: ts},
		{ChatID: "c1", Query: "and yesterday?", Timestamp: ts},
	}

	doc := HistoryDocument("c1", turns)
	assert.Contains(t, doc, "# Chat c1")
	assert.Contains(t, doc, "## 1. failed today?")
	assert.Contains(t, doc, "Two failures.")
	assert.Contains(t, doc, `_Renamed to "Daily failures"_`)
	assert.Contains(t, doc, "## 2. and yesterday?")
}

func TestChatsDocument(t *testing.T) {
	assert.Contains(t, ChatsDocument(nil), "No conversations yet")

	doc := ChatsDocument([]storage.ChatSummary{
		{ChatID: "c1", Title: "Failures | May", MessageCount: 3, UpdatedAt: time.Now()},
	})
	assert.Contains(t, doc, `| c1 | Failures \| May | 3 |`)
}

func TestRenderer_PlainOutput(t *testing.T) {
	r, err := NewRenderer(PlainConfig())
	require.NoError(t, err)

	t.Run("answer", func(t *testing.T) {
		out, err := r.Response(&pipeline.Response{
			Success:         true,
			ChatID:          "c1",
			SQLQuery:        "SELECT COUNT(*) FROM transactions",
			Summary:         "Forty two transactions.",
			ResponseSummary: strPtr("Counted all transactions."),
			ExecutionTimeMS: 12,
		})
		require.NoError(t, err)
		assert.Contains(t, out, "SELECT COUNT(*) FROM transactions")
		assert.Contains(t, out, "Forty two transactions.")
		assert.Contains(t, out, "Counted all transactions.")
		assert.Contains(t, out, "chat c1")
		assert.NotContains(t, out, "\x1b[")
	})

	t.Run("failure", func(t *testing.T) {
		out, err := r.Response(&pipeline.Response{Success: false, Summary: "Chat not found", ErrorCode: pipeline.CodeNotFound})
		require.NoError(t, err)
		assert.Contains(t, out, "Error: Chat not found")
		assert.Contains(t, out, "code: not_found")
	})

	t.Run("sql only", func(t *testing.T) {
		out := r.SQLOnly(&pipeline.SQLOnlyResponse{
			Success:      true,
			SQLQuery:     "SELECT amount::numeric FROM transactions",
			GeneratedSQL: "SELECT amount FROM transactions",
			Repairs:      []string{"cast amount to numeric"},
		})
		assert.Contains(t, out, "SELECT amount::numeric FROM transactions")
		assert.Contains(t, out, "Generated")
		assert.Contains(t, out, "  - cast amount to numeric")

		out = r.SQLOnly(&pipeline.SQLOnlyResponse{Success: false, Error: "model unavailable"})
		assert.Equal(t, "Error: model unavailable\n", out)
	})
}

func TestRenderer_HighlightSQL(t *testing.T) {
	r, err := NewRenderer(&RendererConfig{Width: 80, Style: "notty", SQLStyle: "monokai", Color: true})
	require.NoError(t, err)

	out := r.HighlightSQL("SELECT 1")
	assert.Contains(t, out, "SELECT")
	assert.Contains(t, out, "\x1b[")

	plain, err := NewRenderer(PlainConfig())
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", plain.HighlightSQL("SELECT 1"))
}
