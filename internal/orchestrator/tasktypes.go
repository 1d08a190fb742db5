package orchestrator

// Task type vocabulary. Core tasks are client-callable and map to exactly
// one provider invocation; orchestrator tasks wrap multiple core tasks;
// logging-only aliases rename a core task for usage-log readability;
// video_generation is server-internal, render-cost accounting only.
const (
	TaskSuggest                = "suggest"
	TaskRefine                 = "refine"
	TaskChannels               = "channels"
	TaskCopilotAgent           = "copilot_agent"
	TaskAssetMaster            = "asset_master"
	TaskAssetChannelBatch      = "asset_channel_batch"
	TaskAssetAdapt             = "asset_adapt"
	TaskVideoStoryboard        = "video_storyboard"
	TaskVideoCaption           = "video_caption"
	TaskVideoCompliance        = "video_compliance"
	TaskCompanyIntel           = "company_intel"
	TaskImagePromptGeneration  = "image_prompt_generation"
	TaskImageGeneration        = "image_generation"
	TaskImageCaption           = "image_caption"
	TaskGenerateCampaignAssets = "generate_campaign_assets"
	TaskHeroImage              = "hero_image"
	TaskVideoCreateManifest    = "video_create_manifest"
	TaskVideoRegenerate        = "video_regenerate"
	TaskVideoCaptionUpdate     = "video_caption_update"
	TaskVideoRender            = "video_render"
	TaskVideoGeneration        = "video_generation" // server-internal only
)

// loggingAlias returns the usage-log task name for taskType, renaming
// suggest -> suggestions and refine -> refinement; every other task type
// logs under its own name.
func loggingAlias(taskType string) string {
	switch taskType {
	case TaskSuggest:
		return "suggestions"
	case TaskRefine:
		return "refinement"
	default:
		return taskType
	}
}
