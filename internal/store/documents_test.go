package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func newTestDocuments(t *testing.T) *Documents {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "gateway.db")
	require.NoError(t, Initialize(dbPath))
	t.Cleanup(func() {
		require.NoError(t, Reset())
	})
	return Store()
}

func TestDocuments_SaveAndGet(t *testing.T) {
	docs := newTestDocuments(t)

	job := testJob{ID: "job-1", Status: "planned"}
	require.NoError(t, docs.Save("jobs", job.ID, &job))

	var loaded testJob
	require.NoError(t, docs.Get("jobs", "job-1", &loaded))
	assert.Equal(t, job, loaded)
}

func TestDocuments_GetMissingReturnsNotFound(t *testing.T) {
	docs := newTestDocuments(t)

	var loaded testJob
	err := docs.Get("jobs", "missing", &loaded)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocuments_SaveOverwrites(t *testing.T) {
	docs := newTestDocuments(t)

	require.NoError(t, docs.Save("jobs", "job-1", &testJob{ID: "job-1", Status: "planned"}))
	require.NoError(t, docs.Save("jobs", "job-1", &testJob{ID: "job-1", Status: "ready"}))

	var loaded testJob
	require.NoError(t, docs.Get("jobs", "job-1", &loaded))
	assert.Equal(t, "ready", loaded.Status)
}

func TestDocuments_List(t *testing.T) {
	docs := newTestDocuments(t)

	require.NoError(t, docs.Save("jobs", "job-1", &testJob{ID: "job-1", Status: "planned"}))
	require.NoError(t, docs.Save("jobs", "job-2", &testJob{ID: "job-2", Status: "ready"}))
	require.NoError(t, docs.Save("other", "x", &testJob{ID: "x", Status: "n/a"}))

	var jobs []testJob
	require.NoError(t, docs.List("jobs", &jobs))
	assert.Len(t, jobs, 2)
}

func TestDocuments_Delete(t *testing.T) {
	docs := newTestDocuments(t)

	require.NoError(t, docs.Save("jobs", "job-1", &testJob{ID: "job-1", Status: "planned"}))
	require.NoError(t, docs.Delete("jobs", "job-1"))

	exists, err := docs.Exists("jobs", "job-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDocuments_Exists(t *testing.T) {
	docs := newTestDocuments(t)

	exists, err := docs.Exists("jobs", "job-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, docs.Save("jobs", "job-1", &testJob{ID: "job-1", Status: "planned"}))

	exists, err = docs.Exists("jobs", "job-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAppendUsageAndQuery(t *testing.T) {
	docs := newTestDocuments(t)

	require.NoError(t, docs.AppendUsage(UsageRecord{
		ID: "u1", UserID: "user-1", TaskType: "suggestions", Model: "claude-sonnet-4-20250514",
		PromptTokens: 100, CompletionTokens: 50, CreditsCharged: 0.225, Kind: UsageKindCommit,
	}))
	require.NoError(t, docs.AppendUsage(UsageRecord{
		ID: "u2", UserID: "user-2", TaskType: "refinement", Model: "claude-sonnet-4-20250514",
		PromptTokens: 200, CompletionTokens: 80, CreditsCharged: 0.42, Kind: UsageKindCommit,
	}))

	records, err := docs.UsageByUser("user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "suggestions", records[0].TaskType)
}
