package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/companyintel"
	"orchestrator/internal/config"
	"orchestrator/internal/copilot"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/promptregistry"
	"orchestrator/internal/store"
	"orchestrator/internal/video/manifest"
	"orchestrator/internal/video/render"
)

const manifestJSON = `{"storyboard": [` +
	`{"phase": "hook", "visual": "open on office", "onScreenText": "We're hiring", "voiceOver": "Hook", "durationSeconds": 4},` +
	`{"phase": "cta", "visual": "logo card", "onScreenText": "Apply now", "voiceOver": "CTA", "durationSeconds": 3}` +
	`], "compliance": {"flags": [], "checklist": ["no protected-class claims"]}, "caption": {"text": "Join our team", "hashtags": ["#hiring"]}}`

type stubClient struct{ content string }

func (s *stubClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: s.content, PromptTokens: 5, CompletionTokens: 5}, nil
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

type stubProvider struct{}

func (stubProvider) SubmitSegment(ctx context.Context, req render.SegmentRequest) (string, error) {
	return "job-" + string(rune('a'+req.Index)), nil
}
func (stubProvider) Poll(ctx context.Context, providerJobID string) (render.SegmentStatus, error) {
	return render.SegmentStatus{Status: domain.SegmentStatusReady, VideoURL: "https://cdn/" + providerJobID + ".mp4"}, nil
}
func (stubProvider) Stitch(ctx context.Context, segmentURLs []string) (string, error) {
	return segmentURLs[len(segmentURLs)-1], nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Documents) {
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

	client := &stubClient{content: manifestJSON}
	factory := stubFactory{client: client}

	orch := orchestrator.New(docs, promptregistry.New(), led, factory)
	loop := copilot.New(docs, led, factory)
	builder := manifest.New(docs, led, factory)
	controller := render.New(docs, led, stubProvider{})
	loader := companyintel.New(docs, led, factory)

	srv := New(docs, orch, loop, builder, controller, loader, led, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, docs
}

func authGet(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer user1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func authPost(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(buf))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer user1")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequireAuth_RejectsMissingBearerToken(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/videos")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVideosBulk_CreatesAndTriggersRenderForEachChannel(t *testing.T) {
	ts, docs := newTestServer(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	resp := authPost(t, ts, "/videos/bulk", bulkVideoRequest{JobID: "job1", ChannelIDs: []string{"tiktok", "instagram"}})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result []domain.VideoItem `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Result, 2)
	for _, item := range body.Result {
		assert.Equal(t, "job1", item.JobID)
		assert.NotEqual(t, domain.VideoStatePlanned, item.Status)
	}
}

func TestVideoLifecycle_GetPollsThenApproveAndPublish(t *testing.T) {
	ts, docs := newTestServer(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	createResp := authPost(t, ts, "/videos/bulk", bulkVideoRequest{JobID: "job1", ChannelIDs: []string{"tiktok"}})
	defer createResp.Body.Close()
	var createBody struct {
		Result []domain.VideoItem `json:"result"`
	}
	require.NoError(t, json.NewDecoder(createResp.Body).Decode(&createBody))
	require.Len(t, createBody.Result, 1)
	videoID := createBody.Result[0].VideoID

	// GET polls the in-flight render to completion (single-segment manifest).
	getResp := authGet(t, ts, "/videos/"+videoID)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var getBody struct {
		Result domain.VideoItem `json:"result"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&getBody))
	assert.Equal(t, domain.VideoStateReady, getBody.Result.Status)

	approveResp := authPost(t, ts, "/videos/"+videoID+"/approve", nil)
	defer approveResp.Body.Close()
	require.Equal(t, http.StatusOK, approveResp.StatusCode)

	publishResp := authPost(t, ts, "/videos/"+videoID+"/publish", nil)
	defer publishResp.Body.Close()
	require.Equal(t, http.StatusOK, publishResp.StatusCode)
	var publishBody struct {
		Result domain.VideoItem `json:"result"`
	}
	require.NoError(t, json.NewDecoder(publishResp.Body).Decode(&publishBody))
	assert.Equal(t, domain.VideoStatePublished, publishBody.Result.Status)
}

func TestHandleLLM_CopilotAgentDispatchesToLoop(t *testing.T) {
	ts, docs := newTestServer(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	resp := authPost(t, ts, "/api/llm", llmRequest{
		TaskType: orchestrator.TaskCopilotAgent,
		Context:  map[string]any{"jobId": "job1", "message": "hello"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleLLM_CopilotAgentForbiddenForOtherUsersJob(t *testing.T) {
	ts, docs := newTestServer(t)
	job := domain.NewJob("job1", "someone-else", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	resp := authPost(t, ts, "/api/llm", llmRequest{
		TaskType: orchestrator.TaskCopilotAgent,
		Context:  map[string]any{"jobId": "job1", "message": "hello"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleLLM_CompanyIntelDispatchesToLoader(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := authPost(t, ts, "/api/llm", llmRequest{
		TaskType: orchestrator.TaskCompanyIntel,
		Context:  map[string]any{"companyName": "Acme Corp"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Result domain.CompanyContext `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Acme Corp", body.Result.CompanyName)
}

func TestHandleAdminUsage_FallsBackToStoreAggregate(t *testing.T) {
	ts, docs := newTestServer(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save("jobs", job.JobID, job))

	resp := authPost(t, ts, "/api/llm", llmRequest{
		TaskType: orchestrator.TaskCopilotAgent,
		Context:  map[string]any{"jobId": "job1", "message": "hello"},
	})
	resp.Body.Close()

	usageResp := authGet(t, ts, "/admin/usage?userId=user1")
	defer usageResp.Body.Close()
	require.Equal(t, http.StatusOK, usageResp.StatusCode)

	var body struct {
		Result struct {
			UserID       string `json:"userId"`
			TotalTokens  int64  `json:"totalTokens"`
			TotalCredits float64 `json:"totalCredits"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(usageResp.Body).Decode(&body))
	assert.Equal(t, "user1", body.Result.UserID)
}
