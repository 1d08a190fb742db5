package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_RefreshStatus_DraftToRequiredInProgress(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)

	job.RoleTitle = "Backend Engineer"
	require.NoError(t, job.RefreshStatus(now.Add(time.Minute)))

	assert.Equal(t, JobStateRequiredInProgress, job.Status)
	assert.False(t, job.RequiredComplete)
}

func TestJob_RefreshStatus_RequiredComplete(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)
	fillRequired(job)

	require.NoError(t, job.RefreshStatus(now.Add(time.Minute)))

	assert.True(t, job.RequiredComplete)
	assert.Equal(t, JobStateRequiredComplete, job.Status)
}

func TestJob_RefreshStatus_OptionalComplete(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)
	fillRequired(job)
	job.JobDescription = "We build things."
	job.CoreDuties = []string{"ship features"}
	job.MustHaves = []string{"Go experience"}

	require.NoError(t, job.RefreshStatus(now.Add(time.Minute)))

	assert.True(t, job.OptionalComplete)
	assert.Equal(t, JobStateOptionalComplete, job.Status)
}

func TestJob_RefreshStatus_BlankingRequiredFieldMovesBack(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)
	fillRequired(job)
	require.NoError(t, job.RefreshStatus(now))

	job.RoleTitle = ""
	require.NoError(t, job.RefreshStatus(now.Add(time.Minute)))

	assert.Equal(t, JobStateRequiredInProgress, job.Status)
	assert.False(t, job.RequiredComplete)
}

func TestJob_RequiredFieldsComplete_WhitespaceOnlyTreatedAsEmpty(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)
	fillRequired(job)
	job.WorkModel = "   "

	require.NoError(t, job.RefreshStatus(now.Add(time.Minute)))

	assert.False(t, job.RequiredComplete)
	assert.Equal(t, JobStateRequiredInProgress, job.Status)
}

func TestJob_RefreshStatus_UpdatedAtMonotonic(t *testing.T) {
	now := time.Now().UTC()
	job := NewJob("job-1", "user-1", now)
	original := job.UpdatedAt

	require.NoError(t, job.RefreshStatus(now.Add(-time.Hour)))

	assert.Equal(t, original, job.UpdatedAt)
}

func fillRequired(job *Job) {
	job.RoleTitle = "Backend Engineer"
	job.CompanyName = "Acme Corp"
	job.Location = "Remote"
	job.SeniorityLevel = "Senior"
	job.EmploymentType = "Full-time"
	job.WorkModel = "Remote"
}
