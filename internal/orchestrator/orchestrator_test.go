package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/promptregistry"
	"orchestrator/internal/store"
)

type stubClient struct {
	resp llm.CompletionResponse
	err  error
}

func (s stubClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	return s.resp, s.err
}
func (s stubClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (s stubClient) GetDefaultConfig() config.Model { return config.Model{} }
func (s stubClient) GetModelName() string           { return "stub" }

type stubFactory struct {
	client llm.LLMClient
	err    error
}

func (f stubFactory) CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error) {
	return f.client, f.err
}

type stubHandler struct {
	enrichResult EnrichResult
	enrichErr    error
	postPayload  any
	postErr      error
	family       string
	persisted    any
	failures     int
}

func (h *stubHandler) TaskFamily() string { return h.family }
func (h *stubHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	return h.enrichResult, h.enrichErr
}
func (h *stubHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	return h.postPayload, h.postErr
}
func (h *stubHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	h.persisted = payload
	return payload, nil
}
func (h *stubHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	h.failures++
	return nil
}

func newTestOrchestrator(t *testing.T, client llm.LLMClient) (*Orchestrator, *store.Documents) {
	t.Helper()
	require.NoError(t, store.Reset())
	dbPath := t.TempDir() + "/test.db"
	require.NoError(t, store.Initialize(dbPath))
	t.Cleanup(func() { _ = store.Close() })

	docs := store.Store()
	led := ledger.New(docs, config.DefaultCreditConfig())
	prompts := promptregistry.New()
	factory := stubFactory{client: client}
	return New(docs, prompts, led, factory), docs
}

func TestRunTask_UnknownTaskType(t *testing.T) {
	orch, _ := newTestOrchestrator(t, stubClient{})
	_, err := orch.RunTask(context.Background(), "not_a_task", TaskContext{JobID: "j1"}, Caller{UserID: "u1"})
	require.Error(t, err)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, KindInvalidContext, taskErr.Kind)
}

func TestRunTask_MissingCallerRejected(t *testing.T) {
	orch, _ := newTestOrchestrator(t, stubClient{})
	orch.RegisterHandler("suggest", &stubHandler{family: config.TaskFamilySuggestions})
	_, err := orch.RunTask(context.Background(), "suggest", TaskContext{JobID: "j1"}, Caller{})
	require.Error(t, err)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, KindUnauthorized, taskErr.Kind)
}

func TestRunTask_SkipLLMShortCircuits(t *testing.T) {
	orch, _ := newTestOrchestrator(t, stubClient{})
	handler := &stubHandler{
		family:       config.TaskFamilySuggestions,
		enrichResult: EnrichResult{skip: &skipLLM{reason: "intake_incomplete", payload: "cached"}},
	}
	orch.RegisterHandler("suggest", handler)

	result, err := orch.RunTask(context.Background(), "suggest", TaskContext{JobID: "j1"}, Caller{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, result.Refreshed)
	assert.Equal(t, "cached", result.Payload)
}

func TestRunTask_SuccessCommitsCreditsAndPersists(t *testing.T) {
	client := stubClient{resp: llm.CompletionResponse{Content: "ok", PromptTokens: 100, CompletionTokens: 50}}
	orch, docs := newTestOrchestrator(t, client)
	require.NoError(t, docs.Save("users", "u1", &struct {
		UserID  string  `json:"userId"`
		Balance float64 `json:"balance"`
	}{UserID: "u1", Balance: 1000}))

	handler := &stubHandler{
		family:       config.TaskFamilySuggestions,
		enrichResult: EnrichResult{SystemPrompt: "sys", UserPrompt: "user"},
		postPayload:  "suggestion-payload",
	}
	orch.RegisterHandler("suggest", handler)

	result, err := orch.RunTask(context.Background(), "suggest", TaskContext{JobID: "j1"}, Caller{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, result.Refreshed)
	assert.Equal(t, "suggestion-payload", result.Payload)
	assert.Equal(t, "suggestion-payload", handler.persisted)
	assert.Equal(t, 0, handler.failures)
}

func TestRunTask_ProviderErrorRefundsAndRecordsFailure(t *testing.T) {
	client := stubClient{err: assertError("boom")}
	orch, docs := newTestOrchestrator(t, client)
	require.NoError(t, docs.Save("users", "u1", &struct {
		UserID  string  `json:"userId"`
		Balance float64 `json:"balance"`
	}{UserID: "u1", Balance: 1000}))

	handler := &stubHandler{
		family:       config.TaskFamilySuggestions,
		enrichResult: EnrichResult{SystemPrompt: "sys", UserPrompt: "user"},
	}
	orch.RegisterHandler("suggest", handler)

	result, err := orch.RunTask(context.Background(), "suggest", TaskContext{JobID: "j1"}, Caller{UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, "provider_error", result.Failure.Reason)
	assert.Equal(t, 1, handler.failures)
}

type assertError string

func (e assertError) Error() string { return string(e) }
