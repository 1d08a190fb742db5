package domain

import (
	"strings"
	"time"
)

// Job lifecycle states: currentState is one of DRAFT, REQUIRED_IN_PROGRESS,
// REQUIRED_COMPLETE, OPTIONAL_IN_PROGRESS, OPTIONAL_COMPLETE.
const (
	JobStateDraft              = "DRAFT"
	JobStateRequiredInProgress = "REQUIRED_IN_PROGRESS"
	JobStateRequiredComplete   = "REQUIRED_COMPLETE"
	JobStateOptionalInProgress = "OPTIONAL_IN_PROGRESS"
	JobStateOptionalComplete   = "OPTIONAL_COMPLETE"
)

// JobTransitions is the allowed-transition table for a Job's state machine.
// Progress is mostly linear (intake fields fill in over time) but a later
// edit that blanks a required field moves backward, so the table permits
// movement in both directions between adjacent states.
//
//nolint:gochecknoglobals // transition table, read-only after init
var JobTransitions = TransitionTable{
	JobStateDraft:              {JobStateRequiredInProgress},
	JobStateRequiredInProgress: {JobStateDraft, JobStateRequiredComplete},
	JobStateRequiredComplete:   {JobStateRequiredInProgress, JobStateOptionalInProgress, JobStateOptionalComplete},
	JobStateOptionalInProgress: {JobStateRequiredComplete, JobStateOptionalComplete},
	JobStateOptionalComplete:   {JobStateRequiredComplete, JobStateOptionalInProgress},
}

// SalaryRange holds the optional intake salary fields.
type SalaryRange struct {
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Currency string `json:"currency,omitempty"`
	Period   string `json:"period,omitempty"` // "year", "hour", etc.
}

// Job is the recruiting job posting under construction. Only the
// orchestrator mutates a Job, either through copilot tool execution or
// direct field merges from the intake wizard; UpdatedAt is monotonically
// non-decreasing across every write.
type Job struct {
	JobID   string `json:"jobId"`
	UserID  string `json:"userId"`
	Archived bool  `json:"archived"`

	// Editable intake fields.
	RoleTitle       string   `json:"roleTitle"`
	CompanyName     string   `json:"companyName"`
	Location        string   `json:"location"`
	SeniorityLevel  string   `json:"seniorityLevel"`
	EmploymentType  string   `json:"employmentType"`
	WorkModel       string   `json:"workModel"`
	JobDescription  string   `json:"jobDescription"`
	CoreDuties      []string `json:"coreDuties,omitempty"`
	MustHaves       []string `json:"mustHaves,omitempty"`
	Benefits        []string `json:"benefits,omitempty"`
	Salary          SalaryRange `json:"salary,omitempty"`

	StateMachine StateMachine `json:"stateMachine"`

	// RequiredComplete and OptionalComplete mirror the state machine's
	// position; Status is a pure projection of StateMachine.CurrentState,
	// recomputed by RefreshStatus rather than set directly.
	RequiredComplete bool   `json:"requiredComplete"`
	OptionalComplete bool   `json:"optionalComplete"`
	Status           string `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewJob returns a Job in DRAFT with a freshly initialized state machine.
func NewJob(jobID, userID string, now time.Time) *Job {
	return &Job{
		JobID:        jobID,
		UserID:       userID,
		StateMachine: NewStateMachine(JobStateDraft),
		Status:       JobStateDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// valueProvided reports whether s is non-empty once surrounding whitespace
// is trimmed; a whitespace-only value is treated as not provided.
func valueProvided(s string) bool {
	return strings.TrimSpace(s) != ""
}

// RequiredFieldsComplete reports whether all six required intake fields are
// non-empty. This is the sole source of truth for RequiredComplete; callers
// must not set that field independent of this check.
func (j *Job) RequiredFieldsComplete() bool {
	return valueProvided(j.RoleTitle) &&
		valueProvided(j.CompanyName) &&
		valueProvided(j.Location) &&
		valueProvided(j.SeniorityLevel) &&
		valueProvided(j.EmploymentType) &&
		valueProvided(j.WorkModel)
}

// OptionalFieldsComplete reports whether the optional intake fields
// (description, duties, must-haves) have been populated.
func (j *Job) OptionalFieldsComplete() bool {
	return valueProvided(j.JobDescription) &&
		len(j.CoreDuties) > 0 &&
		len(j.MustHaves) > 0
}

// RefreshStatus recomputes RequiredComplete, OptionalComplete, and drives the
// state machine toward the state matching the current field completeness,
// then sets Status as a pure projection of StateMachine.CurrentState. Callers
// invoke this after any field mutation, before persisting.
func (j *Job) RefreshStatus(now time.Time) error {
	j.RequiredComplete = j.RequiredFieldsComplete()
	j.OptionalComplete = j.RequiredComplete && j.OptionalFieldsComplete()

	target := targetJobState(j.RequiredComplete, j.OptionalComplete, j.anyRequiredFieldSet(), j.anyOptionalFieldSet())
	// Step through adjacent states so every move is one JobTransitions allows.
	order := []string{JobStateDraft, JobStateRequiredInProgress, JobStateRequiredComplete, JobStateOptionalInProgress, JobStateOptionalComplete}
	rank := map[string]int{}
	for i, s := range order {
		rank[s] = i
	}
	for target != j.StateMachine.CurrentState {
		step := target
		if cur, ok := rank[j.StateMachine.CurrentState]; ok && rank[target] > cur+1 {
			step = order[cur+1]
		} else if ok && rank[target] < cur-1 {
			step = order[cur-1]
		}
		if err := j.StateMachine.TransitionTo(JobTransitions, step, nil); err != nil {
			return err
		}
	}
	j.Status = j.StateMachine.CurrentState
	if now.After(j.UpdatedAt) {
		j.UpdatedAt = now
	}
	return nil
}

// anyRequiredFieldSet reports whether intake has started (any of the six
// required fields has been typed), distinguishing DRAFT from
// REQUIRED_IN_PROGRESS.
func (j *Job) anyRequiredFieldSet() bool {
	return valueProvided(j.RoleTitle) || valueProvided(j.CompanyName) || valueProvided(j.Location) ||
		valueProvided(j.SeniorityLevel) || valueProvided(j.EmploymentType) || valueProvided(j.WorkModel)
}

// anyOptionalFieldSet reports whether any optional intake field has been
// typed, distinguishing REQUIRED_COMPLETE from OPTIONAL_IN_PROGRESS.
func (j *Job) anyOptionalFieldSet() bool {
	return valueProvided(j.JobDescription) || len(j.CoreDuties) > 0 || len(j.MustHaves) > 0 || len(j.Benefits) > 0
}

func targetJobState(requiredComplete, optionalComplete, anyRequiredSet, anyOptionalSet bool) string {
	switch {
	case optionalComplete:
		return JobStateOptionalComplete
	case requiredComplete:
		if anyOptionalSet {
			return JobStateOptionalInProgress
		}
		return JobStateRequiredComplete
	case anyRequiredSet:
		return JobStateRequiredInProgress
	default:
		return JobStateDraft
	}
}
