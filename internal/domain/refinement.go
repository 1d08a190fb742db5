package domain

import "time"

// RefinedJob is a snapshot of the intake-shaped fields with polished values,
// produced by the refine task once the job's required fields are complete.
type RefinedJob struct {
	RoleTitle      string   `json:"roleTitle"`
	CompanyName    string   `json:"companyName"`
	Location       string   `json:"location"`
	SeniorityLevel string   `json:"seniorityLevel"`
	EmploymentType string   `json:"employmentType"`
	WorkModel      string   `json:"workModel"`
	JobDescription string   `json:"jobDescription"`
	CoreDuties     []string `json:"coreDuties,omitempty"`
	MustHaves      []string `json:"mustHaves,omitempty"`
	Benefits       []string `json:"benefits,omitempty"`
}

// RefinementDocument holds the polished rewrite of a job, gated by
// job.StateMachine's RequiredComplete invariant: it cannot be produced until
// the job's six required fields are filled in.
type RefinementDocument struct {
	JobID       string      `json:"jobId"`
	RefinedJob  RefinedJob  `json:"refinedJob"`
	Summary     string      `json:"summary"`
	Provider    string      `json:"provider"`
	Model       string      `json:"model"`
	LastFailure *Failure    `json:"lastFailure,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
