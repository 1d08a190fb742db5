package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/domain"
	"orchestrator/internal/store"
)

const assetsCollection = "jobAssets"

func init() {
	Register(&UpdateAssetTool{})
}

// UpdateAssetTool edits a previously-generated campaign asset's content,
// the copilot's equivalent of a recruiter hand-editing generated copy or
// swapping an image/video URL before approval.
type UpdateAssetTool struct{}

func (t *UpdateAssetTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "update_asset",
		Description: "Edit a generated campaign asset's content for one format/channel pair.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"formatId":  {Type: "string", Description: "Asset format id."},
				"channelId": {Type: "string", Description: "Channel id the asset targets."},
				"text":      {Type: "string", Description: "Replacement text content, for text assets."},
				"imageUrl":  {Type: "string", Description: "Replacement image URL, for image assets."},
				"videoUrl":  {Type: "string", Description: "Replacement video URL, for video assets."},
			},
			Required: []string{"formatId", "channelId"},
		},
	}
}

func (t *UpdateAssetTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	formatID, _ := input["formatId"].(string)
	channelID, _ := input["channelId"].(string)
	if formatID == "" || channelID == "" {
		return Result{}, errors.New("update_asset requires formatId and channelId")
	}

	assetID := domain.AssetKey(execCtx.JobID, formatID, channelID)
	var asset domain.AssetRecord
	if err := execCtx.Docs.Get(assetsCollection, assetID, &asset); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("no asset %s/%s for job %s", formatID, channelID, execCtx.JobID)
		}
		return Result{}, fmt.Errorf("load asset: %w", err)
	}

	changed := false
	if v, ok := input["text"].(string); ok {
		asset.Content.Text = v
		changed = true
	}
	if v, ok := input["imageUrl"].(string); ok {
		asset.Content.ImageURL = v
		changed = true
	}
	if v, ok := input["videoUrl"].(string); ok {
		asset.Content.VideoURL = v
		changed = true
	}
	if !changed {
		return Result{}, errors.New("update_asset requires at least one of text, imageUrl, videoUrl")
	}

	asset.UpdatedAt = time.Now().UTC()
	if err := execCtx.Docs.Save(assetsCollection, assetID, &asset); err != nil {
		return Result{}, fmt.Errorf("save asset update: %w", err)
	}

	return Result{
		Status: "ok",
		Action: &Action{Type: "asset_update", Field: assetID, Extra: map[string]any{"formatId": formatID, "channelId": channelID}},
	}, nil
}
