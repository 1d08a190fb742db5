package domain

import "time"

// DiscoveredJob is a posting found while researching a company, used as
// grounding context for prompts (salary bands, common phrasing, etc.).
type DiscoveredJob struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Digest string `json:"digest"`
}

// CompanyContext is a cached, optional profile of the hiring company plus a
// list of jobs discovered about it, used to ground suggestion/refinement
// prompts in company-specific detail.
type CompanyContext struct {
	CompanyName    string          `json:"companyName"`
	Profile        string          `json:"profile"`
	DiscoveredJobs []DiscoveredJob `json:"discoveredJobs,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
