package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/llm"
	"orchestrator/internal/store"
)

// RefineHandler implements the refine task (§4.1.1): produce a polished
// rewrite of a job's intake fields, gated on requiredComplete.
type RefineHandler struct {
	Docs *store.Documents
}

func (h *RefineHandler) TaskFamily() string { return config.TaskFamilyRefinement }

func (h *RefineHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
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
	if !job.RequiredComplete {
		return EnrichResult{}, NewTaskError(KindRequirementsIncomplete, "job %s has incomplete required fields", tc.JobID)
	}

	var prior domain.RefinementDocument
	err := h.Docs.Get(CollectionJobRefinements, tc.JobID, &prior)
	hasPrior := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load refinement doc: %w", err)
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
		SystemPrompt: "You rewrite a recruiting job posting's fields into polished, publication-ready copy. Respond with JSON: {refinedJob: {...same fields...}, summary: string}.",
		UserPrompt:   fmt.Sprintf("Job snapshot: %s\n\nCompany context: %s", string(snapshot), string(companyJSON)),
	}, nil
}

// refinePayload is the parsed shape of a refine task's provider response.
type refinePayload struct {
	RefinedJob domain.RefinedJob `json:"refinedJob"`
	Summary    string            `json:"summary"`
}

func (h *RefineHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed refinePayload
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse refinement response: %w", err)
	}
	return parsed, nil
}

func (h *RefineHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	parsed, ok := payload.(refinePayload)
	if !ok {
		return nil, fmt.Errorf("unexpected refine payload type %T", payload)
	}
	doc := domain.RefinementDocument{
		JobID:      tc.JobID,
		RefinedJob: parsed.RefinedJob,
		Summary:    parsed.Summary,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobRefinements, tc.JobID, &doc); err != nil {
		return nil, fmt.Errorf("save refinement doc: %w", err)
	}
	return &doc, nil
}

func (h *RefineHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	var doc domain.RefinementDocument
	err := docs.Get(CollectionJobRefinements, tc.JobID, &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load refinement doc for failure: %w", err)
	}
	doc.JobID = tc.JobID
	doc.LastFailure = &domain.Failure{
		Reason:     detail.Reason,
		RawPreview: detail.RawPreview,
		Error:      detail.Error,
		OccurredAt: time.Now().UTC(),
	}
	return docs.Save(CollectionJobRefinements, tc.JobID, &doc)
}

// SyncRefinedFields mirrors an intake field_update/field_batch_update action
// applied in the refine stage into the Refinement Document, keeping the
// polished draft consistent without a full re-refine.
func SyncRefinedFields(docs *store.Documents, jobID string, deltas map[string]any) error {
	var doc domain.RefinementDocument
	err := docs.Get(CollectionJobRefinements, jobID, &doc)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load refinement doc for sync: %w", err)
	}

	data, _ := json.Marshal(doc.RefinedJob)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	for k, v := range deltas {
		m[k] = v
	}
	merged, _ := json.Marshal(m)
	if err := json.Unmarshal(merged, &doc.RefinedJob); err != nil {
		return fmt.Errorf("merge refined field deltas: %w", err)
	}
	doc.UpdatedAt = time.Now().UTC()
	return docs.Save(CollectionJobRefinements, jobID, &doc)
}
