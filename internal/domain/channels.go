package domain

import "time"

// ChannelRecommendation is one suggested distribution channel for a job
// posting, with an estimated cost-per-applicant. Selected records whether
// the recruiter has chosen this channel for distribution.
type ChannelRecommendation struct {
	Channel     string  `json:"channel"`
	Reason      string  `json:"reason"`
	ExpectedCPA float64 `json:"expectedCpa"`
	Selected    bool    `json:"selected,omitempty"`
}

// ChannelRecommendations is the one-per-job document of recommended
// distribution channels.
type ChannelRecommendations struct {
	JobID           string                   `json:"jobId"`
	Recommendations []ChannelRecommendation  `json:"recommendations"`
	Provider        string                   `json:"provider"`
	Model           string                   `json:"model"`
	LastFailure     *Failure                 `json:"lastFailure,omitempty"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}
