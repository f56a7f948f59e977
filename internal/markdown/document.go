package markdown

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

// DefaultTableRows bounds the rows shown in a rendered data table
const DefaultTableRows = 20

// ResponseDocument builds the markdown body of an answer. The SQL is left
// out; it is highlighted separately.
func ResponseDocument(resp *pipeline.Response, maxRows int) string {
	var b strings.Builder

	b.WriteString("## Summary\n\n")
	b.WriteString(resp.Summary)
	b.WriteString("\n")

	if len(resp.Insights) > 0 {
		b.WriteString("\n### Insights\n\n")
		for _, insight := range resp.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	if resp.Recommendation != nil && *resp.Recommendation != "" {
		b.WriteString("\n### Recommendation\n\n")
		b.WriteString(*resp.Recommendation)
		b.WriteString("\n")
	}

	if len(resp.Data) > 0 {
		fmt.Fprintf(&b, "\n### Data (%d records)\n\n", resp.RecordCount)
		b.WriteString(Table(resp.Data, maxRows))
	}

	return b.String()
}

// Table renders rows as a markdown table with columns in name order. At most
// maxRows rows are shown; maxRows <= 0 shows all of them.
func Table(rows []executor.Row, maxRows int) string {
	if len(rows) == 0 {
		return ""
	}

	columnSet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			columnSet[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for k := range columnSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")

	shown := rows
	if maxRows > 0 && len(rows) > maxRows {
		shown = rows[:maxRows]
	}
	for _, row := range shown {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cell(row[col])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(shown) < len(rows) {
		fmt.Fprintf(&b, "\n_%d more rows not shown_\n", len(rows)-len(shown))
	}
	return b.String()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		v = string(t)
	}
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}

// ChatsDocument lists conversations as a markdown table
func ChatsDocument(chats []storage.ChatSummary) string {
	if len(chats) == 0 {
		return "_No conversations yet._\n"
	}

	var b strings.Builder
	b.WriteString("| Chat | Title | Messages | Updated |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, c := range chats {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n",
			c.ChatID, cell(c.Title), c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}

// HistoryDocument renders every turn of a conversation in order
func HistoryDocument(chatID string, turns []storage.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Chat %s\n", chatID)
	n := 0
	for _, t := range turns {
		if strings.HasPrefix(t.Query, storage.TitlePrefix) {
			fmt.Fprintf(&b, "\n_Renamed to %q_\n", strings.TrimSpace(strings.TrimPrefix(t.Query, storage.TitlePrefix)))
			continue
		}
		n++
		fmt.Fprintf(&b, "\n## %d. %s\n\n", n, t.Query)
		fmt.Fprintf(&b, "_%s_\n", t.Timestamp.Local().Format("2006-01-02 15:04:05"))
		if t.Summary != nil && *t.Summary != "" {
			fmt.Fprintf(&b, "\n%s\n", *t.Summary)
		}
	}
	return b.String()
}
