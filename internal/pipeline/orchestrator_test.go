package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/memory"
	"github.com/entrepeneur4lyf/paycopilot/internal/sqlrepair"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
)

type fakeAgents struct {
	mu sync.Mutex

	classify  func(query string, history []llm.Message) (llm.QueryType, error)
	generate  func(call int, history []llm.Message) (*llm.SQLGeneration, error)
	summarize func(input string, history []llm.Message) (*llm.DataSummary, error)
	condense  func(digest string) (*llm.Condensation, error)

	classifyHistories [][]llm.Message
	generateHistories [][]llm.Message
	summarizeInputs   []string
	summarizeHistory  [][]llm.Message
	digests           []string
}

func (f *fakeAgents) Classify(_ context.Context, query string, history []llm.Message) (llm.QueryType, error) {
	f.mu.Lock()
	f.classifyHistories = append(f.classifyHistories, history)
	f.mu.Unlock()
	if f.classify == nil {
		return llm.QueryTypeSQL, nil
	}
	return f.classify(query, history)
}

func (f *fakeAgents) GenerateSQL(_ context.Context, augmented string, history []llm.Message) (*llm.SQLGeneration, error) {
	f.mu.Lock()
	f.generateHistories = append(f.generateHistories, history)
	call := len(f.generateHistories)
	f.mu.Unlock()
	return f.generate(call, history)
}

func (f *fakeAgents) Summarize(_ context.Context, input string, history []llm.Message) (*llm.DataSummary, error) {
	f.mu.Lock()
	f.summarizeInputs = append(f.summarizeInputs, input)
	f.summarizeHistory = append(f.summarizeHistory, history)
	f.mu.Unlock()
	if f.summarize == nil {
		return &llm.DataSummary{Summary: "summary", KeyInsights: []string{"insight"}}, nil
	}
	return f.summarize(input, history)
}

func (f *fakeAgents) Condense(_ context.Context, digest string) (*llm.Condensation, error) {
	f.mu.Lock()
	f.digests = append(f.digests, digest)
	f.mu.Unlock()
	if f.condense == nil {
		return &llm.Condensation{Summary: "condensed"}, nil
	}
	return f.condense(digest)
}

func sqlReply(sql string) func(int, []llm.Message) (*llm.SQLGeneration, error) {
	return func(int, []llm.Message) (*llm.SQLGeneration, error) {
		return &llm.SQLGeneration{
			SQLQuery: sql,
			Exchange: []llm.Message{llm.UserMessage("augmented"), llm.AssistantMessage(`{"sql_query":"..."}`)},
		}, nil
	}
}

type fakeExecutor struct {
	mu      sync.Mutex
	queries []string
	results []execResult
}

type execResult struct {
	rows []executor.Row
	err  error
}

func (f *fakeExecutor) Execute(_ context.Context, query string, _ ...any) ([]executor.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if len(f.results) == 0 {
		return []executor.Row{}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.rows, r.err
}

type fakeTurns struct {
	mu     sync.Mutex
	saved  []storage.Turn
	exists map[string]bool
}

func (f *fakeTurns) Save(_ context.Context, turn *storage.Turn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *turn)
	return true
}

func (f *fakeTurns) Exists(_ context.Context, chatID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[chatID]
}

type harness struct {
	agents *fakeAgents
	exec   *fakeExecutor
	turns  *fakeTurns
	mem    *memory.Memory
	broker *events.Broker[StageEvent]
	orch   *Orchestrator
}

func newHarness(t *testing.T, agents *fakeAgents, exec *fakeExecutor, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		agents: agents,
		exec:   exec,
		turns:  &fakeTurns{exists: map[string]bool{}},
		mem:    memory.New(memory.NewMapDriver(), nil),
		broker: events.NewBroker[StageEvent](),
	}
	t.Cleanup(h.broker.Shutdown)
	opts = append([]Option{WithEvents(h.broker), WithLLMTimeout(time.Second)}, opts...)
	h.orch = New(agents, exec, h.mem, h.turns, opts...)
	return h
}

func (h *harness) stages() []Stage {
	var out []Stage
	for _, e := range h.broker.History() {
		out = append(out, e.Payload.Stage)
	}
	return out
}

func TestSimplePath(t *testing.T) {
	agents := &fakeAgents{
		classify: func(string, []llm.Message) (llm.QueryType, error) { return llm.QueryTypeSimple, nil },
		summarize: func(input string, _ []llm.Message) (*llm.DataSummary, error) {
			return &llm.DataSummary{Summary: "A chargeback is a reversal.", KeyInsights: []string{"definition"}}, nil
		},
		condense: func(string) (*llm.Condensation, error) {
			return &llm.Condensation{Summary: "Explained chargebacks."}, nil
		},
	}
	exec := &fakeExecutor{}
	h := newHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "What is a chargeback?", ChatType: ChatNew})

	require.True(t, resp.Success, resp.Summary)
	assert.NotEmpty(t, resp.ChatID)
	assert.Equal(t, "", resp.SQLQuery)
	assert.Equal(t, 0, resp.RecordCount)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
	assert.Equal(t, "A chargeback is a reversal.", resp.Summary)
	require.NotNil(t, resp.ResponseSummary)
	assert.Equal(t, `Explained chargebacks. {"user_id":null,"transaction_id":null,"error_code":null,"status":null}`, *resp.ResponseSummary)
	assert.Empty(t, exec.queries)
	assert.Contains(t, agents.digests[0], "Query Type: Simple conversational query (no SQL needed)")

	msgs, ok, err := h.mem.Get(context.Background(), resp.ChatID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.UserMessage("What is a chargeback?"), msgs[0])
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)

	require.Len(t, h.turns.saved, 1)
	assert.Equal(t, resp.ChatID, h.turns.saved[0].ChatID)

	assert.Equal(t, []Stage{StageClassifying, StageSimpleResponse, StageResponseSummarizing, StagePersisting, StageCompleted}, h.stages())
}

func TestSQLPathRepairsAndSummarizes(t *testing.T) {
	generated := "SELECT transaction_id, final_status FROM transactions WHERE final_status = 'FAILED'"
	agents := &fakeAgents{generate: sqlReply(generated)}
	exec := &fakeExecutor{results: []execResult{{rows: []executor.Row{
		{"transaction_id": "tx-1", "final_status": "FAILED"},
		{"transaction_id": "tx-2", "final_status": "FAILED"},
	}}}}
	h := newHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "Show failed transactions", ChatType: ChatNew})

	require.True(t, resp.Success, resp.Summary)
	want := sqlrepair.Repair(generated)
	assert.NotEqual(t, generated, want)
	assert.Equal(t, want, resp.SQLQuery)
	assert.Equal(t, []string{want}, exec.queries)
	assert.Equal(t, 2, resp.RecordCount)
	assert.Equal(t, "summary", resp.Summary)
	assert.Equal(t, []string{"insight"}, resp.Insights)

	require.Len(t, agents.summarizeHistory, 1)
	assert.Len(t, agents.summarizeHistory[0], 2, "summary sees the generation exchange")
	assert.Contains(t, agents.summarizeInputs[0], "Total records found: 2")

	require.Len(t, h.turns.saved, 1)
	var stored Response
	require.NoError(t, json.Unmarshal([]byte(h.turns.saved[0].Response), &stored))
	assert.Equal(t, want, stored.SQLQuery)
	assert.Equal(t, 2, stored.RecordCount)

	msgs, _, err := h.mem.Get(context.Background(), resp.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "SQL: "+want)
}

func TestSummaryLimitedToFiftyRows(t *testing.T) {
	rows := make([]executor.Row, 120)
	for i := range rows {
		rows[i] = executor.Row{"n": i}
	}
	agents := &fakeAgents{generate: sqlReply("SELECT n FROM transactions LIMIT 120")}
	h := newHarness(t, agents, &fakeExecutor{results: []execResult{{rows: rows}}})

	resp := h.orch.Handle(context.Background(), Request{Query: "numbers", ChatType: ChatNew})
	require.True(t, resp.Success)
	assert.Equal(t, 120, resp.RecordCount)
	assert.Len(t, resp.Data, 120)
	assert.Contains(t, agents.summarizeInputs[0], "Records shown: 50")
	assert.NotContains(t, agents.summarizeInputs[0], `"n": 50`)
}

func TestNoRowsSkipsSummaryModel(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT * FROM transactions WHERE 1 = 0")}
	h := newHarness(t, agents, &fakeExecutor{})

	resp := h.orch.Handle(context.Background(), Request{Query: "anything?", ChatType: ChatNew})
	require.True(t, resp.Success)
	assert.Equal(t, "No data found matching the query criteria.", resp.Summary)
	assert.Empty(t, agents.summarizeInputs)
}

func TestComputedColumnRetriesOnceWithoutHistory(t *testing.T) {
	agents := &fakeAgents{
		generate: func(call int, history []llm.Message) (*llm.SQLGeneration, error) {
			if call == 1 {
				return &llm.SQLGeneration{SQLQuery: "SELECT success_rate FROM transactions"}, nil
			}
			return &llm.SQLGeneration{SQLQuery: "SELECT COUNT(*) AS total FROM transactions"}, nil
		},
	}
	exec := &fakeExecutor{results: []execResult{
		{err: &executor.ComputedColumnError{Column: "success_rate", Message: `column "success_rate" does not exist`}},
		{rows: []executor.Row{{"total": int64(10)}}},
	}}
	h := newHarness(t, agents, exec)

	ctx := context.Background()
	chatID := "chat-1"
	require.NoError(t, h.mem.Append(ctx, chatID, llm.UserMessage("earlier"), llm.AssistantMessage("answer")))

	resp := h.orch.Handle(ctx, Request{Query: "How many?", ChatType: ChatExisting, ChatID: chatID})

	require.True(t, resp.Success, resp.Summary)
	require.Len(t, agents.generateHistories, 2)
	assert.Len(t, agents.generateHistories[0], 2)
	assert.Empty(t, agents.generateHistories[1])
	assert.Len(t, exec.queries, 2)
	assert.Equal(t, "SELECT COUNT(*) AS total FROM transactions", resp.SQLQuery)
	assert.Contains(t, h.stages(), StageRetrying)
}

func TestComputedColumnSecondFailureIsExecutionFailure(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT count FROM transactions")}
	computed := &executor.ComputedColumnError{Column: "count", Message: `column "count" does not exist`}
	exec := &fakeExecutor{results: []execResult{{err: computed}, {err: computed}}}
	h := newHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "count", ChatType: ChatNew})

	assert.False(t, resp.Success)
	assert.Equal(t, CodeExecution, resp.ErrorCode)
	assert.Len(t, exec.queries, 2)
	assert.Len(t, agents.generateHistories, 2)
	assert.Empty(t, h.turns.saved)
	assert.Equal(t, StageFailed, h.stages()[len(h.stages())-1])
}

func TestExecutionErrorFails(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT * FORM transactions")}
	exec := &fakeExecutor{results: []execResult{{err: &executor.ExecutionError{Message: "syntax error"}}}}
	h := newHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "broken", ChatType: ChatNew})
	assert.False(t, resp.Success)
	assert.Equal(t, CodeExecution, resp.ErrorCode)
	assert.Equal(t, "Error: query execution failed: syntax error", resp.Summary)
	assert.NotNil(t, resp.Data)
	assert.NotNil(t, resp.Insights)
	assert.Len(t, exec.queries, 1)
}

func TestFailedFirstTurnCanBeContinued(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT transaction_id FROM transactions LIMIT 5")}
	exec := &fakeExecutor{results: []execResult{
		{err: &executor.ExecutionError{Message: "boom"}},
		{rows: []executor.Row{{"transaction_id": "txn_1"}}},
	}}
	h := newHarness(t, agents, exec)
	ctx := context.Background()

	first := h.orch.Handle(ctx, Request{Query: "latest", ChatType: ChatNew})
	require.False(t, first.Success)
	assert.Equal(t, CodeExecution, first.ErrorCode)
	require.NotEmpty(t, first.ChatID)
	assert.Empty(t, h.turns.saved)

	ok, err := h.mem.Exists(ctx, first.ChatID)
	require.NoError(t, err)
	assert.True(t, ok)

	second := h.orch.Handle(ctx, Request{Query: "try again", ChatType: ChatExisting, ChatID: first.ChatID})
	require.True(t, second.Success, second.Summary)
	assert.NotEqual(t, CodeNotFound, second.ErrorCode)
	assert.Equal(t, first.ChatID, second.ChatID)
	require.Len(t, h.turns.saved, 1)
}

func TestDeletedChatIsNotRecreated(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT 1 LIMIT 1")}
	h := newHarness(t, agents, &fakeExecutor{})
	ctx := context.Background()

	first := h.orch.Handle(ctx, Request{Query: "one", ChatType: ChatNew})
	require.True(t, first.Success)

	unlock := h.mem.Lock(first.ChatID)
	done := make(chan *Response, 1)
	go func() {
		done <- h.orch.Handle(ctx, Request{Query: "two", ChatType: ChatExisting, ChatID: first.ChatID})
	}()
	require.NoError(t, h.mem.Delete(ctx, first.ChatID))
	unlock()

	resp := <-done
	assert.False(t, resp.Success)
	assert.Equal(t, CodeNotFound, resp.ErrorCode)
	ok, err := h.mem.Exists(ctx, first.ChatID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutionFailureWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"executor error", &executor.ExecutionError{Message: "boom"}, "query execution failed: boom"},
		{"after retry", fmt.Errorf("%w: %w", errRetryFailed, &executor.ExecutionError{Message: "boom"}),
			"regenerated query failed: query execution failed: boom"},
		{"other error", errors.New("connection reset"), "query execution failed: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executionFailure(tt.err)
			assert.Equal(t, tt.want, err.Error())
			assert.ErrorIs(t, err, ErrExecution)
			assert.Equal(t, CodeExecution, errorCode(err))
		})
	}
}

func TestClassifierFailureFallsBackToSQL(t *testing.T) {
	agents := &fakeAgents{
		classify: func(string, []llm.Message) (llm.QueryType, error) {
			return "", errors.New("provider unavailable")
		},
		generate: sqlReply("SELECT COUNT(*) FROM transactions"),
	}
	exec := &fakeExecutor{results: []execResult{{rows: []executor.Row{{"count": int64(3)}}}}}
	h := newHarness(t, agents, exec)

	resp := h.orch.Handle(context.Background(), Request{Query: "How many?", ChatType: ChatNew})
	require.True(t, resp.Success)
	assert.Equal(t, "SELECT COUNT(*) FROM transactions", resp.SQLQuery)
	assert.Len(t, exec.queries, 1)
}

func TestGenerationTimeout(t *testing.T) {
	agents := &fakeAgents{}
	agents.generate = func(int, []llm.Message) (*llm.SQLGeneration, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, errors.New("late")
	}
	h := newHarness(t, agents, &fakeExecutor{}, WithLLMTimeout(20*time.Millisecond))

	resp := h.orch.Handle(context.Background(), Request{Query: "slow", ChatType: ChatNew})
	assert.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)
	assert.Equal(t, GenerationTimeoutHint, resp.Summary)
}

func TestSummaryFailureDegrades(t *testing.T) {
	agents := &fakeAgents{
		generate: sqlReply("SELECT transaction_id FROM transactions LIMIT 3"),
		summarize: func(string, []llm.Message) (*llm.DataSummary, error) {
			return nil, errors.New("model overloaded")
		},
	}
	rows := []executor.Row{{"transaction_id": "a"}, {"transaction_id": "b"}, {"transaction_id": "c"}}
	h := newHarness(t, agents, &fakeExecutor{results: []execResult{{rows: rows}}})

	resp := h.orch.Handle(context.Background(), Request{Query: "list", ChatType: ChatNew})
	require.True(t, resp.Success)
	assert.Equal(t, "Query executed successfully. Retrieved 3 records.", resp.Summary)
	assert.Equal(t, []string{"Found 3 matching records"}, resp.Insights)
	require.NotNil(t, resp.Recommendation)
	assert.Equal(t, "Data retrieved successfully. Summary generation timed out.", *resp.Recommendation)
}

func TestResponseSummaryFallbacks(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}

	t.Run("timeout", func(t *testing.T) {
		agents := &fakeAgents{
			classify: func(string, []llm.Message) (llm.QueryType, error) { return llm.QueryTypeSimple, nil },
			summarize: func(string, []llm.Message) (*llm.DataSummary, error) {
				return &llm.DataSummary{Summary: long}, nil
			},
		}
		agents.condense = func(string) (*llm.Condensation, error) {
			time.Sleep(200 * time.Millisecond)
			return &llm.Condensation{}, nil
		}
		h := newHarness(t, agents, &fakeExecutor{}, WithLLMTimeout(50*time.Millisecond))

		resp := h.orch.Handle(context.Background(), Request{Query: "hi", ChatType: ChatNew})
		require.True(t, resp.Success)
		require.NotNil(t, resp.ResponseSummary)
		assert.Equal(t, "Summary: "+long[:100]+"... (Summary generation timed out)", *resp.ResponseSummary)
	})

	t.Run("error", func(t *testing.T) {
		agents := &fakeAgents{
			classify: func(string, []llm.Message) (llm.QueryType, error) { return llm.QueryTypeSimple, nil },
			condense: func(string) (*llm.Condensation, error) { return nil, errors.New("bad json") },
		}
		h := newHarness(t, agents, &fakeExecutor{})

		resp := h.orch.Handle(context.Background(), Request{Query: "hi", ChatType: ChatNew})
		require.True(t, resp.Success)
		assert.Equal(t, "Summary generation failed: bad json", *resp.ResponseSummary)
	})
}

func TestSimpleTimeoutUsesHelpfulAnswer(t *testing.T) {
	agents := &fakeAgents{
		classify: func(string, []llm.Message) (llm.QueryType, error) { return llm.QueryTypeSimple, nil },
		summarize: func(string, []llm.Message) (*llm.DataSummary, error) {
			time.Sleep(200 * time.Millisecond)
			return nil, errors.New("late")
		},
	}
	h := newHarness(t, agents, &fakeExecutor{}, WithLLMTimeout(20*time.Millisecond))

	resp := h.orch.Handle(context.Background(), Request{Query: "hello", ChatType: ChatNew})
	require.True(t, resp.Success)
	assert.Equal(t, simpleTimeoutAnswer, resp.Summary)
}

func TestResolveFailures(t *testing.T) {
	h := newHarness(t, &fakeAgents{}, &fakeExecutor{})

	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"empty query", Request{Query: "  ", ChatType: ChatNew}, CodeValidation},
		{"existing without id", Request{Query: "q", ChatType: ChatExisting}, CodeValidation},
		{"default type needs id", Request{Query: "q"}, CodeValidation},
		{"unknown type", Request{Query: "q", ChatType: "forked"}, CodeValidation},
		{"unknown chat", Request{Query: "q", ChatType: ChatExisting, ChatID: "nope"}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.orch.Handle(context.Background(), tt.req)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.NotEmpty(t, resp.Summary)
		})
	}
	assert.Empty(t, h.agents.classifyHistories)
}

func TestExistingChatFoundInDurableStore(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT 1 LIMIT 1")}
	h := newHarness(t, agents, &fakeExecutor{})
	h.turns.exists["durable-chat"] = true

	resp := h.orch.Handle(context.Background(), Request{Query: "q", ChatType: ChatExisting, ChatID: "durable-chat"})
	require.True(t, resp.Success, resp.Summary)
	assert.Equal(t, "durable-chat", resp.ChatID)
}

func TestLongConversationHistoryStaysBounded(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT 1 LIMIT 1")}
	h := newHarness(t, agents, &fakeExecutor{})

	first := h.orch.Handle(context.Background(), Request{Query: "start", ChatType: ChatNew})
	require.True(t, first.Success)

	for i := 0; i < 20; i++ {
		resp := h.orch.Handle(context.Background(), Request{
			Query:    fmt.Sprintf("follow-up %d", i),
			ChatType: ChatExisting,
			ChatID:   first.ChatID,
		})
		require.True(t, resp.Success, resp.Summary)
	}

	require.Len(t, agents.classifyHistories, 21)
	for _, hist := range agents.classifyHistories {
		assert.LessOrEqual(t, len(hist), memory.TruncateThreshold)
	}
	last := agents.classifyHistories[len(agents.classifyHistories)-1]
	assert.Equal(t, "start", last[0].Content)
}

func TestConcurrentTurnsOnOneChatKeepEveryMessage(t *testing.T) {
	agents := &fakeAgents{
		classify: func(string, []llm.Message) (llm.QueryType, error) { return llm.QueryTypeSimple, nil },
	}
	h := newHarness(t, agents, &fakeExecutor{})
	first := h.orch.Handle(context.Background(), Request{Query: "start", ChatType: ChatNew})
	require.True(t, first.Success)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.orch.Handle(context.Background(), Request{Query: fmt.Sprintf("q%d", i), ChatType: ChatExisting, ChatID: first.ChatID})
		}(i)
	}
	wg.Wait()

	msgs, _, err := h.mem.Get(context.Background(), first.ChatID)
	require.NoError(t, err)
	assert.Len(t, msgs, 8)
	assert.Len(t, h.turns.saved, 4)
}

func TestRequestTimeoutBoundsTurn(t *testing.T) {
	agents := &fakeAgents{}
	agents.classify = func(string, []llm.Message) (llm.QueryType, error) {
		return llm.QueryTypeSQL, nil
	}
	agents.generate = func(int, []llm.Message) (*llm.SQLGeneration, error) {
		time.Sleep(300 * time.Millisecond)
		return nil, errors.New("late")
	}
	h := newHarness(t, agents, &fakeExecutor{}, WithRequestTimeout(30*time.Millisecond))

	start := time.Now()
	resp := h.orch.Handle(context.Background(), Request{Query: "q", ChatType: ChatNew})
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)
}

func TestGenerateSQLOnly(t *testing.T) {
	agents := &fakeAgents{generate: func(int, []llm.Message) (*llm.SQLGeneration, error) {
		return &llm.SQLGeneration{SQLQuery: "SELECT * FROM transactions ORDER BY timestamp DESC", Reasoning: "latest first"}, nil
	}}
	exec := &fakeExecutor{}
	h := newHarness(t, agents, exec)

	resp := h.orch.GenerateSQL(context.Background(), "latest transactions")
	require.True(t, resp.Success)
	assert.Equal(t, "SELECT * FROM transactions ORDER BY timestamp::timestamptz DESC", resp.SQLQuery)
	assert.Equal(t, "SELECT * FROM transactions ORDER BY timestamp DESC", resp.GeneratedSQL)
	assert.Equal(t, []string{"timestamp_cast"}, resp.Repairs)
	assert.Equal(t, "latest first", resp.Reasoning)
	assert.Empty(t, exec.queries)
	assert.Empty(t, agents.generateHistories[0])

	empty := h.orch.GenerateSQL(context.Background(), "")
	assert.False(t, empty.Success)
	assert.Equal(t, CodeValidation, empty.ErrorCode)
}

func TestHandleSimpleStartsNewChat(t *testing.T) {
	agents := &fakeAgents{generate: sqlReply("SELECT 1 LIMIT 1")}
	h := newHarness(t, agents, &fakeExecutor{})

	a := h.orch.HandleSimple(context.Background(), "one")
	b := h.orch.HandleSimple(context.Background(), "two")
	require.True(t, a.Success)
	require.True(t, b.Success)
	assert.NotEqual(t, a.ChatID, b.ChatID)
}
