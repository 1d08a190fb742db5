package copilot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/store"
)

type stubClient struct {
	responses []llm.CompletionResponse
	calls     int
}

func (s *stubClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp := s.responses[s.calls]
	if s.calls < len(s.responses)-1 {
		s.calls++
	}
	return resp, nil
}
func (s *stubClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (s *stubClient) GetDefaultConfig() config.Model { return config.Model{} }
func (s *stubClient) GetModelName() string           { return "stub" }

type stubFactory struct{ client llm.LLMClient }

func (f stubFactory) CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error) {
	return f.client, nil
}

func newTestLoop(t *testing.T, client llm.LLMClient) (*Loop, *store.Documents) {
	t.Helper()
	require.NoError(t, store.Reset())
	require.NoError(t, store.Initialize(t.TempDir()+"/test.db"))
	t.Cleanup(func() { _ = store.Close() })

	docs := store.Store()
	led := ledger.New(docs, config.DefaultCreditConfig())
	require.NoError(t, docs.Save("users", "user1", &struct {
		UserID  string  `json:"userId"`
		Balance float64 `json:"balance"`
	}{UserID: "user1", Balance: 1000}))

	return New(docs, led, stubFactory{client: client}), docs
}

func TestLoop_FinalReplyWithNoToolCallsTerminates(t *testing.T) {
	client := &stubClient{responses: []llm.CompletionResponse{{Content: "Sure, tell me more."}}}
	loop, docs := newTestLoop(t, client)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	turn, err := loop.Run(context.Background(), "job1", "hello", orchestrator.Caller{UserID: "user1"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, tell me more.", turn.Reply)
	assert.Empty(t, turn.Actions)
}

func TestLoop_ToolCallAppliesActionAndSynthesizesReply(t *testing.T) {
	client := &stubClient{responses: []llm.CompletionResponse{{
		ToolCalls: []llm.ToolCall{{ID: "call1", Name: "propose_suggestion", Parameters: map[string]any{"field": "roleTitle", "value": "Staff Engineer"}}},
	}}}
	loop, docs := newTestLoop(t, client)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	turn, err := loop.Run(context.Background(), "job1", "set role title", orchestrator.Caller{UserID: "user1"})
	require.NoError(t, err)
	require.Len(t, turn.Actions, 1)
	assert.Equal(t, "field_update", turn.Actions[0].Type)
	assert.Contains(t, turn.Reply, "roleTitle")

	var updated domain.Job
	require.NoError(t, docs.Get("jobs", "job1", &updated))
	assert.Equal(t, "Staff Engineer", updated.RoleTitle)
}

func TestLoop_RejectsNonOwner(t *testing.T) {
	client := &stubClient{responses: []llm.CompletionResponse{{Content: "hi"}}}
	loop, docs := newTestLoop(t, client)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	_, err := loop.Run(context.Background(), "job1", "hello", orchestrator.Caller{UserID: "intruder"})
	require.Error(t, err)
}
