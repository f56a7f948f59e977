package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

// digest renders a finished answer for the condenser.
func digest(t *turn) string {
	r := t.resp
	recommendation := "None"
	if r.Recommendation != nil && *r.Recommendation != "" {
		recommendation = *r.Recommendation
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User Query: %s\n", r.Query)
	if r.SQLQuery == "" {
		b.WriteString("Query Type: Simple conversational query (no SQL needed)\n")
		fmt.Fprintf(&b, "Response Summary: %s\n", r.Summary)
	} else {
		fmt.Fprintf(&b, "SQL Query: %s\n", r.SQLQuery)
		fmt.Fprintf(&b, "Data Summary: %s\n", r.Summary)
	}
	fmt.Fprintf(&b, "Key Insights: %s\n", strings.Join(r.Insights, ", "))
	fmt.Fprintf(&b, "Recommendation: %s\n", recommendation)
	if r.SQLQuery != "" {
		fmt.Fprintf(&b, "Records Found: %d\n", r.RecordCount)
	}
	fmt.Fprintf(&b, "Execution Time: %.0fms\n", r.ExecutionTimeMS)
	fmt.Fprintf(&b, "Success: %t", r.Success)
	return b.String()
}

// condense fills the response summary. It never fails the turn.
func (o *Orchestrator) condense(ctx context.Context, t *turn) {
	o.stage(t, StageResponseSummarizing, "")

	input := digest(t)
	c, err := deadline.Run(ctx, o.llmTimeout, "response summary", func(ctx context.Context) (*llm.Condensation, error) {
		return o.agents.Condense(ctx, input)
	})

	var summary string
	switch {
	case err == nil:
		summary = c.Summary + " " + c.Metadata.String()
	case errorCode(err) == CodeTimeout:
		o.timedOut(ctx, err, "response_summary")
		summary = responseSummaryTimeout(t.resp.Summary)
	default:
		o.logger.Warn("response summary failed", "chat_id", t.chatID, "error", err)
		summary = responseSummaryFailed(err)
	}
	t.resp.ResponseSummary = &summary
}

// persist records the turn in memory and the durable log. Failures are
// logged and ignored.
func (o *Orchestrator) persist(ctx context.Context, t *turn) {
	o.stage(t, StagePersisting, "")
	ctx = context.WithoutCancel(ctx)

	assistant := *t.resp.ResponseSummary
	if t.resp.SQLQuery != "" {
		assistant = "SQL: " + t.resp.SQLQuery + "\n" + assistant
	}
	if err := o.memory.Append(ctx, t.chatID, llm.UserMessage(t.query), llm.AssistantMessage(assistant)); err != nil {
		o.logger.Warn("failed to update conversation cache", "chat_id", t.chatID, "error", err)
	}

	if o.turns == nil {
		return
	}
	payload, err := json.Marshal(t.resp)
	if err != nil {
		o.logger.Warn("failed to encode response for storage", "chat_id", t.chatID, "error", err)
		return
	}
	o.turns.Save(ctx, &storage.Turn{
		ChatID:   t.chatID,
		Query:    t.query,
		Response: string(payload),
		Summary:  t.resp.ResponseSummary,
	})
}
