package companyintel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

const companyJSON = `{"profile": "A mid-size logistics company.", "discoveredJobs": [{"title": "Warehouse Lead", "source": "indeed", "digest": "..."}]}`

type stubClient struct {
	content string
	calls   int
}

func (s *stubClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.calls++
	return llm.CompletionResponse{Content: s.content, PromptTokens: 5, CompletionTokens: 5}, nil
}
func (s *stubClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (s *stubClient) GetDefaultConfig() config.Model { return config.Model{} }
func (s *stubClient) GetModelName() string           { return "stub" }

type erroringClient struct{}

func (erroringClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{}, errors.New("provider unavailable")
}
func (erroringClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return nil, nil
}
func (erroringClient) GetDefaultConfig() config.Model { return config.Model{} }
func (erroringClient) GetModelName() string           { return "stub" }

type stubFactory struct{ client llm.LLMClient }

func (f stubFactory) CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error) {
	return f.client, nil
}

func newTestLoader(t *testing.T, client llm.LLMClient) (*Loader, *store.Documents) {
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

func TestLoader_BuildsAndCachesFreshContext(t *testing.T) {
	client := &stubClient{content: companyJSON}
	loader, docs := newTestLoader(t, client)

	ctx, err := loader.Load(context.Background(), "Acme Corp", "user1", false)
	require.NoError(t, err)
	assert.Equal(t, "A mid-size logistics company.", ctx.Profile)
	assert.Equal(t, 1, client.calls)

	var saved domain.CompanyContext
	require.NoError(t, docs.Get(companiesCollection, "Acme Corp", &saved))
	assert.Equal(t, "Acme Corp", saved.CompanyName)
}

func TestLoader_ServesFreshCacheWithoutCallingProvider(t *testing.T) {
	client := &stubClient{content: companyJSON}
	loader, _ := newTestLoader(t, client)

	_, err := loader.Load(context.Background(), "Acme Corp", "user1", false)
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), "Acme Corp", "user1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestLoader_ForceRefreshBypassesCache(t *testing.T) {
	client := &stubClient{content: companyJSON}
	loader, _ := newTestLoader(t, client)

	_, err := loader.Load(context.Background(), "Acme Corp", "user1", false)
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), "Acme Corp", "user1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestLoader_RefreshFailureServesStaleCache(t *testing.T) {
	docs := func() *store.Documents {
		require.NoError(t, store.Reset())
		require.NoError(t, store.Initialize(t.TempDir()+"/test.db"))
		t.Cleanup(func() { _ = store.Close() })
		return store.Store()
	}()
	led := ledger.New(docs, config.DefaultCreditConfig())
	require.NoError(t, docs.Save("users", "user1", &struct {
		UserID  string  `json:"userId"`
		Balance float64 `json:"balance"`
	}{UserID: "user1", Balance: 1000}))
	require.NoError(t, docs.Save(companiesCollection, "Acme Corp", &domain.CompanyContext{
		CompanyName: "Acme Corp", Profile: "stale profile", UpdatedAt: time.Now().UTC().Add(-2 * DefaultTTL),
	}))

	loader := New(docs, led, stubFactory{client: erroringClient{}})
	ctx, err := loader.Load(context.Background(), "Acme Corp", "user1", false)
	require.NoError(t, err)
	assert.Equal(t, "stale profile", ctx.Profile)
}
