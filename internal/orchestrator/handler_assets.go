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

// loadAssetContext loads the Job, its Refinement (if present), and Company
// Context — the enrichment shared by the asset-copy handlers and the image
// handlers (including hero_image).
func loadAssetContext(docs *store.Documents, jobID, callerUserID string) (domain.Job, domain.RefinementDocument, domain.CompanyContext, error) {
	var job domain.Job
	if err := docs.Get(CollectionJobs, jobID, &job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return job, domain.RefinementDocument{}, domain.CompanyContext{}, NewTaskError(KindNotFound, "job %s not found", jobID)
		}
		return job, domain.RefinementDocument{}, domain.CompanyContext{}, fmt.Errorf("load job: %w", err)
	}
	if job.UserID != callerUserID {
		return job, domain.RefinementDocument{}, domain.CompanyContext{}, NewTaskError(KindForbidden, "caller does not own job %s", jobID)
	}

	var refinement domain.RefinementDocument
	if err := docs.Get(CollectionJobRefinements, jobID, &refinement); err != nil && !errors.Is(err, store.ErrNotFound) {
		return job, refinement, domain.CompanyContext{}, fmt.Errorf("load refinement: %w", err)
	}
	var company domain.CompanyContext
	if err := docs.Get(CollectionCompanies, job.CompanyName, &company); err != nil && !errors.Is(err, store.ErrNotFound) {
		return job, refinement, company, fmt.Errorf("load company context: %w", err)
	}
	return job, refinement, company, nil
}

func stringFromRaw(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	s, _ := raw[key].(string)
	return s
}

func stringSliceFromRaw(raw map[string]any, key string) []string {
	if raw == nil {
		return nil
	}
	items, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AssetMasterHandler generates the master (channel-agnostic) copy for one
// ad format of a job.
type AssetMasterHandler struct {
	Docs *store.Documents
}

func (h *AssetMasterHandler) TaskFamily() string { return config.TaskFamilyAssetCopy }

func (h *AssetMasterHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, refinement, company, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	if formatID == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "asset_master requires formatId")
	}

	jobJSON, _ := json.Marshal(job)
	refinementJSON, _ := json.Marshal(refinement)
	companyJSON, _ := json.Marshal(company)

	return EnrichResult{
		SystemPrompt: "You write master ad copy for a recruiting post, channel-agnostic, in a single voice the asset_adapt task will later tailor per channel. Respond with JSON: {text}.",
		UserPrompt: fmt.Sprintf("Format: %s\n\nJob: %s\n\nRefinement: %s\n\nCompany context: %s",
			formatID, string(jobJSON), string(refinementJSON), string(companyJSON)),
	}, nil
}

func (h *AssetMasterHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse asset master copy: %w", err)
	}
	return parsed.Text, nil
}

func (h *AssetMasterHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	text, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected asset master payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	record := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, formatID, ""),
		JobID:        tc.JobID,
		FormatID:     formatID,
		ArtifactType: domain.ArtifactTypeText,
		Status:       "ready",
		Content:      domain.AssetContent{Text: text},
		UpdatedAt:    time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobAssets, record.AssetID, &record); err != nil {
		return nil, fmt.Errorf("save master asset: %w", err)
	}
	return &record, nil
}

func (h *AssetMasterHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, stringFromRaw(tc.Raw, "formatId"), ""), tc.JobID, stringFromRaw(tc.Raw, "formatId"), "", detail)
}

// AssetChannelBatchHandler adapts a format's master copy across several
// channels in a single call, persisting one AssetRecord per channel.
type AssetChannelBatchHandler struct {
	Docs *store.Documents
}

func (h *AssetChannelBatchHandler) TaskFamily() string { return config.TaskFamilyAssetCopy }

func (h *AssetChannelBatchHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, refinement, company, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	channelIDs := stringSliceFromRaw(tc.Raw, "channelIds")
	if formatID == "" || len(channelIDs) == 0 {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "asset_channel_batch requires formatId and channelIds")
	}

	var master domain.AssetRecord
	_ = h.Docs.Get(CollectionJobAssets, domain.AssetKey(tc.JobID, formatID, ""), &master)

	jobJSON, _ := json.Marshal(job)
	refinementJSON, _ := json.Marshal(refinement)
	companyJSON, _ := json.Marshal(company)
	channelsJSON, _ := json.Marshal(channelIDs)

	return EnrichResult{
		SystemPrompt: "You adapt master ad copy to each requested channel's tone and length constraints. Respond with JSON: {assets: [{channelId, text}]}, one entry per requested channelId.",
		UserPrompt: fmt.Sprintf("Format: %s\nChannels: %s\nMaster copy: %s\n\nJob: %s\n\nRefinement: %s\n\nCompany context: %s",
			formatID, string(channelsJSON), master.Content.Text, string(jobJSON), string(refinementJSON), string(companyJSON)),
	}, nil
}

type channelAsset struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

func (h *AssetChannelBatchHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Assets []channelAsset `json:"assets"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse asset channel batch: %w", err)
	}
	return parsed.Assets, nil
}

func (h *AssetChannelBatchHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	assets, ok := payload.([]channelAsset)
	if !ok {
		return nil, fmt.Errorf("unexpected asset channel batch payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	now := time.Now().UTC()
	records := make([]*domain.AssetRecord, 0, len(assets))
	for _, asset := range assets {
		record := &domain.AssetRecord{
			AssetID:      domain.AssetKey(tc.JobID, formatID, asset.ChannelID),
			JobID:        tc.JobID,
			FormatID:     formatID,
			ChannelID:    asset.ChannelID,
			ArtifactType: domain.ArtifactTypeText,
			Status:       "ready",
			Content:      domain.AssetContent{Text: asset.Text},
			UpdatedAt:    now,
		}
		if err := docs.Save(CollectionJobAssets, record.AssetID, record); err != nil {
			return nil, fmt.Errorf("save channel asset %s: %w", asset.ChannelID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (h *AssetChannelBatchHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	formatID := stringFromRaw(tc.Raw, "formatId")
	for _, channelID := range stringSliceFromRaw(tc.Raw, "channelIds") {
		if err := persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, channelID), tc.JobID, formatID, channelID, detail); err != nil {
			return err
		}
	}
	return nil
}

// AssetAdaptHandler re-tailors one existing asset to a single channel
// (e.g. after the master copy changes), writing exactly one AssetRecord.
type AssetAdaptHandler struct {
	Docs *store.Documents
}

func (h *AssetAdaptHandler) TaskFamily() string { return config.TaskFamilyAssetCopy }

func (h *AssetAdaptHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, _, _, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	channelID := stringFromRaw(tc.Raw, "channelId")
	if formatID == "" || channelID == "" {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "asset_adapt requires formatId and channelId")
	}

	var master domain.AssetRecord
	_ = h.Docs.Get(CollectionJobAssets, domain.AssetKey(tc.JobID, formatID, ""), &master)
	jobJSON, _ := json.Marshal(job)

	return EnrichResult{
		SystemPrompt: "You adapt one piece of ad copy to a single channel's tone and length constraints. Respond with JSON: {text}.",
		UserPrompt: fmt.Sprintf("Format: %s\nChannel: %s\nMaster copy: %s\n\nJob: %s",
			formatID, channelID, master.Content.Text, string(jobJSON)),
	}, nil
}

func (h *AssetAdaptHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse asset adapt copy: %w", err)
	}
	return parsed.Text, nil
}

func (h *AssetAdaptHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	text, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected asset adapt payload type %T", payload)
	}
	formatID := stringFromRaw(tc.Raw, "formatId")
	channelID := stringFromRaw(tc.Raw, "channelId")
	record := domain.AssetRecord{
		AssetID:      domain.AssetKey(tc.JobID, formatID, channelID),
		JobID:        tc.JobID,
		FormatID:     formatID,
		ChannelID:    channelID,
		ArtifactType: domain.ArtifactTypeText,
		Status:       "ready",
		Content:      domain.AssetContent{Text: text},
		UpdatedAt:    time.Now().UTC(),
	}
	if err := docs.Save(CollectionJobAssets, record.AssetID, &record); err != nil {
		return nil, fmt.Errorf("save adapted asset: %w", err)
	}
	return &record, nil
}

func (h *AssetAdaptHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	formatID := stringFromRaw(tc.Raw, "formatId")
	channelID := stringFromRaw(tc.Raw, "channelId")
	return persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, channelID), tc.JobID, formatID, channelID, detail)
}

// GenerateCampaignAssetsHandler is the orchestrator-task wrapper over the
// master+batch flow: rather than chaining AssetMasterHandler
// and AssetChannelBatchHandler as two provider round trips, it requests
// the full campaign (every format x channel pairing) as one structured
// response — the Handler contract models one task as one provider
// invocation, and a single combined call reaches the same end state.
type GenerateCampaignAssetsHandler struct {
	Docs *store.Documents
}

func (h *GenerateCampaignAssetsHandler) TaskFamily() string { return config.TaskFamilyAssetCopy }

func (h *GenerateCampaignAssetsHandler) Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error) {
	job, refinement, company, err := loadAssetContext(h.Docs, tc.JobID, caller.UserID)
	if err != nil {
		return EnrichResult{}, err
	}
	formatIDs := stringSliceFromRaw(tc.Raw, "formatIds")
	channelIDs := stringSliceFromRaw(tc.Raw, "channelIds")
	if len(formatIDs) == 0 || len(channelIDs) == 0 {
		return EnrichResult{}, NewTaskError(KindInvalidContext, "generate_campaign_assets requires formatIds and channelIds")
	}

	jobJSON, _ := json.Marshal(job)
	refinementJSON, _ := json.Marshal(refinement)
	companyJSON, _ := json.Marshal(company)
	formatsJSON, _ := json.Marshal(formatIDs)
	channelsJSON, _ := json.Marshal(channelIDs)

	return EnrichResult{
		SystemPrompt: "You generate a full campaign's worth of ad copy: one item per (formatId, channelId) pairing. Respond with JSON: {assets: [{formatId, channelId, text}]}.",
		UserPrompt: fmt.Sprintf("Formats: %s\nChannels: %s\n\nJob: %s\n\nRefinement: %s\n\nCompany context: %s",
			string(formatsJSON), string(channelsJSON), string(jobJSON), string(refinementJSON), string(companyJSON)),
	}, nil
}

type campaignAsset struct {
	FormatID  string `json:"formatId"`
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

func (h *GenerateCampaignAssetsHandler) PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error) {
	var parsed struct {
		Assets []campaignAsset `json:"assets"`
	}
	if err := json.Unmarshal([]byte(raw.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse campaign assets: %w", err)
	}
	return parsed.Assets, nil
}

func (h *GenerateCampaignAssetsHandler) Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error) {
	assets, ok := payload.([]campaignAsset)
	if !ok {
		return nil, fmt.Errorf("unexpected campaign assets payload type %T", payload)
	}
	now := time.Now().UTC()
	records := make([]*domain.AssetRecord, 0, len(assets))
	for _, asset := range assets {
		record := &domain.AssetRecord{
			AssetID:      domain.AssetKey(tc.JobID, asset.FormatID, asset.ChannelID),
			JobID:        tc.JobID,
			FormatID:     asset.FormatID,
			ChannelID:    asset.ChannelID,
			ArtifactType: domain.ArtifactTypeText,
			Status:       "ready",
			Content:      domain.AssetContent{Text: asset.Text},
			UpdatedAt:    now,
		}
		if err := docs.Save(CollectionJobAssets, record.AssetID, record); err != nil {
			return nil, fmt.Errorf("save campaign asset %s/%s: %w", asset.FormatID, asset.ChannelID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (h *GenerateCampaignAssetsHandler) PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error {
	for _, formatID := range stringSliceFromRaw(tc.Raw, "formatIds") {
		for _, channelID := range stringSliceFromRaw(tc.Raw, "channelIds") {
			if err := persistAssetFailure(docs, domain.AssetKey(tc.JobID, formatID, channelID), tc.JobID, formatID, channelID, detail); err != nil {
				return err
			}
		}
	}
	return nil
}

// persistAssetFailure records a failure envelope on an asset document,
// preserving any prior content rather than deleting it.
func persistAssetFailure(docs *store.Documents, assetID, jobID, formatID, channelID string, detail FailureDetail) error {
	var record domain.AssetRecord
	err := docs.Get(CollectionJobAssets, assetID, &record)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load asset %s for failure: %w", assetID, err)
	}
	record.AssetID = assetID
	record.JobID = jobID
	record.FormatID = formatID
	record.ChannelID = channelID
	record.Status = "failed"
	record.UpdatedAt = time.Now().UTC()
	return docs.Save(CollectionJobAssets, assetID, &record)
}
