package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/metrics"
)

func meteredHarness(t *testing.T, agents *fakeAgents, exec *fakeExecutor, opts ...Option) (*harness, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	p, err := metrics.NewProvider(metrics.ExporterNone, metrics.WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return newHarness(t, agents, exec, append(opts, WithMetrics(p.Recorder()))...), reader
}

// counters sums every int64 counter by name and attribute set.
func counters(t *testing.T, reader *sdkmetric.ManualReader) map[string]map[attribute.Distinct]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]map[attribute.Distinct]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			out[m.Name] = map[attribute.Distinct]int64{}
			for _, dp := range sum.DataPoints {
				out[m.Name][dp.Attributes.Equivalent()] += dp.Value
			}
		}
	}
	return out
}

func total(series map[attribute.Distinct]int64) int64 {
	var n int64
	for _, v := range series {
		n += v
	}
	return n
}

func attrs(kv ...attribute.KeyValue) attribute.Distinct {
	set := attribute.NewSet(kv...)
	return set.Equivalent()
}

func TestMetricsClassificationFallback(t *testing.T) {
	agents := &fakeAgents{
		classify: func(string, []llm.Message) (llm.QueryType, error) {
			return "", errors.New("provider unavailable")
		},
		generate: sqlReply("SELECT 1 LIMIT 1"),
	}
	h, reader := meteredHarness(t, agents, &fakeExecutor{})

	resp := h.orch.Handle(context.Background(), Request{Query: "How many?", ChatType: ChatNew})
	require.True(t, resp.Success, resp.Summary)

	got := counters(t, reader)
	assert.Equal(t, int64(1), total(got["pipeline.classification_fallbacks"]))
	assert.Zero(t, total(got["pipeline.stage_timeouts"]))
	assert.Equal(t, int64(1), got["pipeline.requests"][attrs(
		attribute.String("path", "sql"), attribute.String("outcome", "success"))])
}

func TestMetricsComputedColumnRetry(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT success_rate FROM transactions")}
	exec := &fakeExecutor{results: []execResult{
		{err: &executor.ComputedColumnError{Column: "success_rate", Message: `column "success_rate" does not exist`}},
		{rows: []executor.Row{{"total": int64(4)}}},
	}}
	h, reader := meteredHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "rate?", ChatType: ChatNew})
	require.True(t, resp.Success, resp.Summary)

	got := counters(t, reader)
	assert.Equal(t, int64(1), total(got["pipeline.computed_column_retries"]))
	assert.Zero(t, total(got["pipeline.classification_fallbacks"]))
}

func TestMetricsStageTimeout(t *testing.T) {
	agents := &fakeAgents{}
	agents.generate = func(int, []llm.Message) (*llm.SQLGeneration, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, errors.New("late")
	}
	h, reader := meteredHarness(t, agents, &fakeExecutor{}, WithLLMTimeout(20*time.Millisecond))

	resp := h.orch.Handle(context.Background(), Request{Query: "slow", ChatType: ChatNew})
	require.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)

	got := counters(t, reader)
	assert.Equal(t, int64(1), got["pipeline.stage_timeouts"][attrs(attribute.String("stage", "generation"))])
	assert.Equal(t, int64(1), got["pipeline.requests"][attrs(
		attribute.String("path", "sql"), attribute.String("outcome", CodeTimeout))])
}
