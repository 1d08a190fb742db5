package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

// SuggestHandler implements the suggest task (§4.1.1): propose field
// candidates for a job's remaining intake fields, grounded in company
// context once required fields are complete.
type SuggestHandler struct {
	Docs *store.Documents
}

func (h *SuggestHandler) TaskFamily() string { return config.TaskFamilySuggestions }

// Enrich merges incoming deltas into the job, computes requiredComplete,
// and short-circuits with _skipLlm if intake is still incomplete or the
// cached suggestion document remains valid.
func (h *SuggestHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	var job domain.Job
	if err := h.Docs.Get(CollectionJobs, tc.JobID, &job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EnrichResult{}, NewTaskError(KindNotFound, "job %s not found", tc.JobID)
		}
		return EnrichResult{}, fmt.Errorf("load job: %w", err)
	}
	if job.UserID != caller.UserID {
		return EnrichResult{}, NewTaskError(KindForbidden, "caller does not own job %s", tc.JobID)
	}

	applyJobDeltas(&job, tc.Raw)
	if err := job.RefreshStatus(time.Now().UTC()); err != nil {
		return EnrichResult{}, fmt.Errorf("refresh job status: %w", err)
	}
	if err := h.Docs.Save(CollectionJobs, job.JobID, &job); err != nil {
		return EnrichResult{}, fmt.Errorf("save job: %w", err)
	}

	if !job.RequiredComplete {
		return EnrichResult{skip: &skipLLM{
			reason: "intake_incomplete",
			payload: map[string]any{"fieldIds": []string{}, "skipped": "intake_incomplete"},
		}}, nil
	}

	var prior domain.SuggestionDocument
	err := h.Docs.Get(CollectionJobSuggestions, tc.JobID, &prior)
	hasPrior := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load suggestion doc: %w", err)
	}

	if hasPrior && !tc.ForceRefresh && prior.LastFailure == nil {
		return EnrichResult{skip: &skipLLM{reason: "cache_hit", payload: &prior}}, nil
	}

	var company domain.CompanyContext
	if err := h.Docs.Get(CollectionCompanies, job.CompanyName, &company); err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load company context: %w", err)
	}

	snapshot, _ := json.Marshal(job)
	companyJSON, _ := json.Marshal(company)

	return EnrichResult{
		SystemPrompt: "You propose concrete, concise values for missing recruiting job-posting fields. Respond with JSON candidates keyed by field id, each carrying proposal, rationale, and confidence.",
		UserPrompt: fmt.Sprintf("Job snapshot: %s\n\nCompany context: %s",
			string(snapshot), string(companyJSON)),
	}, nil
}

func (h *SuggestHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	candidates := make(map[string]domain.Candidate)
	if err := json.Unmarshal([]byte(raw.Content), &candidates); err != nil {
		return nil, fmt.Errorf("parse suggestion candidates: %w", err)
	}
	for field, c := range candidates {
		c.Proposal = strings.TrimSpace(c.Proposal)
		candidates[field] = c
	}
	return candidates, nil
}

func (h *SuggestHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	candidates, ok := payload.(map[string]domain.Candidate)
	if !ok {
		return nil, fmt.Errorf("unexpected suggest payload type %T", payload)
	}
	doc := domain.SuggestionDocument{
		JobID:      tc.JobID,
		Candidates: candidates,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobSuggestions, tc.JobID, &doc); err != nil {
		return nil, fmt.Errorf("save suggestion doc: %w", err)
	}
	return &doc, nil
}

func (h *SuggestHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	var doc domain.SuggestionDocument
	err := docs.Get(CollectionJobSuggestions, tc.JobID, &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load suggestion doc for failure: %w", err)
	}
	doc.JobID = tc.JobID
	doc.LastFailure = &domain.Failure{
		Reason:     detail.Reason,
		RawPreview: detail.RawPreview,
		Error:      detail.Error,
		OccurredAt: time.Now().UTC(),
	}
	return docs.Save(CollectionJobSuggestions, tc.JobID, &doc)
}

// applyJobDeltas merges raw intake field deltas onto job. Keys match the
// Job struct's JSON tags; unrecognized keys are ignored.
func applyJobDeltas(job *domain.Job, raw map[string]any) {
	if v, ok := raw["roleTitle"].(string); ok {
		job.RoleTitle = v
	}
	if v, ok := raw["companyName"].(string); ok {
		job.CompanyName = v
	}
	if v, ok := raw["location"].(string); ok {
		job.Location = v
	}
	if v, ok := raw["seniorityLevel"].(string); ok {
		job.SeniorityLevel = v
	}
	if v, ok := raw["employmentType"].(string); ok {
		job.EmploymentType = v
	}
	if v, ok := raw["workModel"].(string); ok {
		job.WorkModel = v
	}
	if v, ok := raw["jobDescription"].(string); ok {
		job.JobDescription = v
	}
	if v, ok := raw["coreDuties"].([]any); ok {
		job.CoreDuties = toStringSlice(v)
	}
	if v, ok := raw["mustHaves"].([]any); ok {
		job.MustHaves = toStringSlice(v)
	}
	if v, ok := raw["benefits"].([]any); ok {
		job.Benefits = toStringSlice(v)
	}
}

func toStringSlice(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
