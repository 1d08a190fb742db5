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

// ChannelsHandler implements the channels task (§4.1.1): recommend
// distribution channels for a job, grounded in its refinement and company
// context when available.
type ChannelsHandler struct {
	Docs *store.Documents
}

func (h *ChannelsHandler) TaskFamily() string { return config.TaskFamilyChannels }

func (h *ChannelsHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
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

	var prior domain.ChannelRecommendations
	err := h.Docs.Get(CollectionJobChannelRecommendations, tc.JobID, &prior)
	hasPrior := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load channel recommendations: %w", err)
	}
	if hasPrior && !tc.ForceRefresh && prior.LastFailure == nil {
		return EnrichResult{skip: &skipLLM{reason: "cache_hit", payload: &prior}}, nil
	}

	var refinement domain.RefinementDocument
	if err := h.Docs.Get(CollectionJobRefinements, tc.JobID, &refinement); err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load refinement: %w", err)
	}
	var company domain.CompanyContext
	if err := h.Docs.Get(CollectionCompanies, job.CompanyName, &company); err != nil && !errors.Is(err, store.ErrNotFound) {
		return EnrichResult{}, fmt.Errorf("load company context: %w", err)
	}

	jobJSON, _ := json.Marshal(job)
	refinementJSON, _ := json.Marshal(refinement)
	companyJSON, _ := json.Marshal(company)

	return EnrichResult{
		SystemPrompt: "You recommend job-posting distribution channels with an estimated cost-per-applicant. Respond with JSON: {recommendations: [{channel, reason, expectedCpa}]}.",
		UserPrompt: fmt.Sprintf("Job: %s\n\nRefinement: %s\n\nCompany context: %s",
			string(jobJSON), string(refinementJSON), string(companyJSON)),
	}, nil
}

func (h *ChannelsHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Recommendations []domain.ChannelRecommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse channel recommendations: %w", err)
	}
	return parsed.Recommendations, nil
}

func (h *ChannelsHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	recs, ok := payload.([]domain.ChannelRecommendation)
	if !ok {
		return nil, fmt.Errorf("unexpected channels payload type %T", payload)
	}
	doc := domain.ChannelRecommendations{
		JobID:           tc.JobID,
		Recommendations: recs,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobChannelRecommendations, tc.JobID, &doc); err != nil {
		return nil, fmt.Errorf("save channel recommendations: %w", err)
	}
	return &doc, nil
}

func (h *ChannelsHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	var doc domain.ChannelRecommendations
	err := docs.Get(CollectionJobChannelRecommendations, tc.JobID, &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load channel recommendations for failure: %w", err)
	}
	doc.JobID = tc.JobID
	doc.LastFailure = &domain.Failure{
		Reason:     detail.Reason,
		RawPreview: detail.RawPreview,
		Error:      detail.Error,
		OccurredAt: time.Now().UTC(),
	}
	return docs.Save(CollectionJobChannelRecommendations, tc.JobID, &doc)
}
