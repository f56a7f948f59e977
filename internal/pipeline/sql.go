package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/entrepeneur4lyf/paycopilot/internal/deadline"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm/prompt"
	"github.com/entrepeneur4lyf/paycopilot/internal/sqlrepair"
)

// answerSQL generates, repairs and runs a query, then summarizes the rows.
// A computed-column failure triggers exactly one regeneration without history.
func (o *Orchestrator) answerSQL(ctx context.Context, t *turn) error {
	augmented := prompt.AugmentedQuery(t.query, o.schema)

	o.stage(t, StageGenerating, "")
	gen, err := o.generate(ctx, augmented, t.history)
	if err != nil {
		return err
	}
	sql := o.repair(t, gen.SQLQuery)

	o.stage(t, StageExecuting, "")
	rows, err := o.exec.Execute(ctx, sql)
	if errors.Is(err, executor.ErrComputedColumn) {
		o.logger.Info("computed column referenced, regenerating without history", "chat_id", t.chatID, "error", err)
		o.metrics.ComputedColumnRetry(ctx)
		o.stage(t, StageRetrying, err.Error())

		gen, err = o.generate(ctx, augmented, nil)
		if err != nil {
			return fmt.Errorf("%w: %w: %w", ErrExecution, errRetryFailed, err)
		}
		sql = o.repair(t, gen.SQLQuery)

		o.stage(t, StageExecuting, "retry")
		rows, err = o.exec.Execute(ctx, sql)
		if err != nil {
			return executionFailure(fmt.Errorf("%w: %w", errRetryFailed, err))
		}
	}
	if err != nil {
		o.timedOut(ctx, err, "execution")
		return executionFailure(err)
	}

	o.stage(t, StageSummarizing, fmt.Sprintf("%d records", len(rows)))
	ds := o.summarizeRows(ctx, t, sql, rows, gen.Exchange)
	t.resp = o.success(t, sql, rows, ds)
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, augmented string, history []llm.Message) (*llm.SQLGeneration, error) {
	gen, err := deadline.Run(ctx, o.llmTimeout, "SQL generation", func(ctx context.Context) (*llm.SQLGeneration, error) {
		return o.agents.GenerateSQL(ctx, augmented, history)
	})
	if err != nil {
		o.timedOut(ctx, err, "generation")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, deadline.WithHint(err, GenerationTimeoutHint))
	}
	return gen, nil
}

// repair applies the rewrite rules and logs what changed.
func (o *Orchestrator) repair(t *turn, generated string) string {
	o.stage(t, StageRepairing, "")
	repaired, applied := sqlrepair.RepairTrace(generated)
	if len(applied) > 0 {
		o.logger.Debug("sql repaired",
			"chat_id", t.chatID,
			"rules", strings.Join(applied, ","),
			"diff", udiff.Unified("generated.sql", "repaired.sql", generated, repaired))
	}
	return repaired
}

// summarizeRows explains the result set. Empty results skip the model and
// failures degrade to a templated summary.
func (o *Orchestrator) summarizeRows(ctx context.Context, t *turn, sql string, rows []executor.Row, exchange []llm.Message) *llm.DataSummary {
	if len(rows) == 0 {
		return noDataResult()
	}

	shown := rows
	if len(shown) > summaryRowLimit {
		shown = shown[:summaryRowLimit]
	}
	data, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		o.logger.Warn("failed to encode rows for summary", "error", err)
		return summaryFallback(len(rows))
	}

	input := prompt.DataContext(t.query, sql, string(data), len(rows), len(shown))
	ds, err := o.summarize(ctx, input, exchange)
	if err != nil {
		o.logger.Warn("summary failed, using fallback", "chat_id", t.chatID, "error", err)
		o.timedOut(ctx, err, "summary")
		return summaryFallback(len(rows))
	}
	return ds
}

// GenerateSQL writes and repairs a query without running it.
func (o *Orchestrator) GenerateSQL(ctx context.Context, query string) *SQLOnlyResponse {
	query = strings.TrimSpace(query)
	resp := &SQLOnlyResponse{Query: query, Repairs: []string{}}
	if query == "" {
		resp.Error = "query must not be empty"
		resp.ErrorCode = CodeValidation
		return resp
	}

	gen, err := o.generate(ctx, prompt.AugmentedQuery(query, o.schema), nil)
	if err != nil {
		resp.Error = failureSummary(err)
		resp.ErrorCode = errorCode(err)
		return resp
	}

	repaired, applied := sqlrepair.RepairTrace(gen.SQLQuery)
	resp.Success = true
	resp.SQLQuery = repaired
	resp.Reasoning = gen.Reasoning
	resp.Repairs = append(resp.Repairs, applied...)
	if repaired != gen.SQLQuery {
		resp.GeneratedSQL = gen.SQLQuery
	}
	return resp
}

// execError marks err as ErrExecution without repeating its message.
type execError struct {
	err error
}

func (e *execError) Error() string { return e.err.Error() }

func (e *execError) Unwrap() []error { return []error{ErrExecution, e.err} }

// executionFailure wraps a store failure as ErrExecution. Executor errors
// already carry the "query execution failed" prefix.
func executionFailure(err error) error {
	var ee *executor.ExecutionError
	if errors.As(err, &ee) {
		return &execError{err: err}
	}
	return fmt.Errorf("%w: %w", ErrExecution, err)
}
