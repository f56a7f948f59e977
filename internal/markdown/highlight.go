package markdown

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#0E121B", Dark: "#F2F4F8"})

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#5C6370", Dark: "#8B95A7"})

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"})

	sqlBoxStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#5C6370", Dark: "#3E4451"})
)

// HighlightSQL colours a SQL statement for the terminal. Highlighting
// failures return the statement unchanged.
func (r *Renderer) HighlightSQL(sql string) string {
	if !r.config.Color {
		return sql
	}

	lexer := lexers.Get("postgresql")
	if lexer == nil {
		lexer = lexers.Get("sql")
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(r.config.SQLStyle)
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, sql)
	if err != nil {
		return sql
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return sql
	}
	return buf.String()
}

// SQLBlock renders a titled, highlighted SQL statement
func (r *Renderer) SQLBlock(title, sql string) string {
	body := r.HighlightSQL(strings.TrimSpace(sql))
	if r.config.Color {
		body = sqlBoxStyle.Render(body)
	}
	return r.title(title) + "\n" + body + "\n"
}

func (r *Renderer) title(s string) string {
	if !r.config.Color {
		return s
	}
	return titleStyle.Render(s)
}

func (r *Renderer) muted(s string) string {
	if !r.config.Color {
		return s
	}
	return mutedStyle.Render(s)
}

// Error renders a failure line
func (r *Renderer) Error(msg string) string {
	if !r.config.Color {
		return "Error: " + msg
	}
	return errorStyle.Render("Error: " + msg)
}

// Response renders a full answer: the SQL that ran, then the markdown body,
// then the chat id and timing footer.
func (r *Renderer) Response(resp *pipeline.Response) (string, error) {
	var b strings.Builder

	if !resp.Success {
		b.WriteString(r.Error(resp.Summary))
		b.WriteString("\n")
		if resp.ErrorCode != "" {
			b.WriteString(r.muted("code: " + resp.ErrorCode))
			b.WriteString("\n")
		}
		return b.String(), nil
	}

	if resp.SQLQuery != "" {
		b.WriteString(r.SQLBlock("SQL", resp.SQLQuery))
		b.WriteString("\n")
	}

	body, err := r.Render(ResponseDocument(resp, DefaultTableRows))
	if err != nil {
		return "", err
	}
	b.WriteString(body)

	if resp.ResponseSummary != nil && *resp.ResponseSummary != "" {
		b.WriteString(r.muted(*resp.ResponseSummary))
		b.WriteString("\n")
	}
	b.WriteString(r.muted(fmt.Sprintf("chat %s · %.0f ms", resp.ChatID, resp.ExecutionTimeMS)))
	b.WriteString("\n")
	return b.String(), nil
}

// SQLOnly renders generated SQL with the repairs applied to it
func (r *Renderer) SQLOnly(resp *pipeline.SQLOnlyResponse) string {
	if !resp.Success {
		return r.Error(resp.Error) + "\n"
	}

	var b strings.Builder
	b.WriteString(r.SQLBlock("SQL", resp.SQLQuery))
	if resp.GeneratedSQL != "" && resp.GeneratedSQL != resp.SQLQuery {
		b.WriteString("\n")
		b.WriteString(r.SQLBlock("Generated", resp.GeneratedSQL))
	}
	if len(resp.Repairs) > 0 {
		b.WriteString("\n" + r.title("Repairs") + "\n")
		for _, repair := range resp.Repairs {
			b.WriteString("  - " + repair + "\n")
		}
	}
	if resp.Reasoning != "" {
		b.WriteString("\n" + r.muted(resp.Reasoning) + "\n")
	}
	return b.String()
}
