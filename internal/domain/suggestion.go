package domain

import "time"

// Candidate is one suggested value for an intake field: the Task
// Orchestrator's proposal plus its stated rationale and confidence.
type Candidate struct {
	Proposal   string  `json:"proposal"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// Failure records the most recent failed attempt to refresh a document,
// preserved alongside whatever candidates/snapshot survived from the last
// success.
type Failure struct {
	Reason     string    `json:"reason"`
	RawPreview string    `json:"rawPreview,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SuggestionDocument holds the field-suggestion candidates for one job.
// Candidates only exist for fields the prompt recognized; a document with no
// LastFailure satisfies the cache-hit rule for any subset of its FieldIDs.
type SuggestionDocument struct {
	JobID       string               `json:"jobId"`
	Candidates  map[string]Candidate `json:"candidates"`
	Provider    string               `json:"provider"`
	Model       string               `json:"model"`
	LastFailure *Failure             `json:"lastFailure,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// VisibleFieldIDs returns the set of fields this document carries a
// candidate for.
func (s *SuggestionDocument) VisibleFieldIDs() []string {
	ids := make([]string, 0, len(s.Candidates))
	for id := range s.Candidates {
		ids = append(ids, id)
	}
	return ids
}
