package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/domain"
	"orchestrator/internal/store"
)

func newTestDocs(t *testing.T) *store.Documents {
	t.Helper()
	require.NoError(t, store.Reset())
	require.NoError(t, store.Initialize(t.TempDir()+"/test.db"))
	t.Cleanup(func() { _ = store.Close() })
	return store.Store()
}

func TestSuggestHandler_EnrichSkipsWhenIntakeIncomplete(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	job.RoleTitle = "Engineer"
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &SuggestHandler{Docs: docs}
	result, err := h.Enrich(context.Background(), TaskContext{JobID: "job1"}, Caller{UserID: "user1"})
	require.NoError(t, err)
	require.NotNil(t, result.skip)
	assert.Equal(t, "intake_incomplete", result.skip.reason)
}

func TestSuggestHandler_EnrichRejectsNonOwner(t *testing.T) {
	docs := newTestDocs(t)
	job := domain.NewJob("job1", "user1", time.Now().UTC())
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))

	h := &SuggestHandler{Docs: docs}
	_, err := h.Enrich(context.Background(), TaskContext{JobID: "job1"}, Caller{UserID: "someone-else"})
	require.Error(t, err)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, KindForbidden, taskErr.Kind)
}

func TestSuggestHandler_EnrichUsesCacheWhenFresh(t *testing.T) {
	docs := newTestDocs(t)
	job := completeRequiredJob("job1", "user1")
	require.NoError(t, docs.Save(CollectionJobs, job.JobID, job))
	prior := domain.SuggestionDocument{JobID: "job1", Candidates: map[string]domain.Candidate{"location": {Proposal: "Remote"}}}
	require.NoError(t, docs.Save(CollectionJobSuggestions, "job1", &prior))

	h := &SuggestHandler{Docs: docs}
	result, err := h.Enrich(context.Background(), TaskContext{JobID: "job1"}, Caller{UserID: "user1"})
	require.NoError(t, err)
	require.NotNil(t, result.skip)
	assert.Equal(t, "cache_hit", result.skip.reason)
}

func TestSuggestHandler_PostProcessParsesCandidates(t *testing.T) {
	h := &SuggestHandler{}
	payload, err := h.PostProcess(context.Background(), fakeResponse(`{"location":{"proposal":"Remote","rationale":"matches role","confidence":0.8}}`), TaskContext{})
	require.NoError(t, err)
	candidates := payload.(map[string]domain.Candidate)
	assert.Equal(t, "Remote", candidates["location"].Proposal)
}

func completeRequiredJob(jobID, userID string) *domain.Job {
	job := domain.NewJob(jobID, userID, time.Now().UTC())
	job.RoleTitle = "Engineer"
	job.CompanyName = "Acme"
	job.Location = "Remote"
	job.SeniorityLevel = "Senior"
	job.EmploymentType = "Full-time"
	job.WorkModel = "Remote"
	_ = job.RefreshStatus(time.Now().UTC())
	return job
}
