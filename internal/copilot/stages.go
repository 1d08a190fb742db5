package copilot

import "orchestrator/internal/domain"

// StageConfig is one copilot stage's system framing and tool whitelist.
type StageConfig struct {
	Mission       string
	Guardrails    []string
	Instructions  string
	StageMetadata map[string]any
	ToolNames     []string
}

//nolint:gochecknoglobals // static stage table, read-only after init
var stageConfigs = map[string]StageConfig{
	domain.StageWizard: {
		Mission:      "Help the recruiter fill in the job posting's required fields.",
		Guardrails:   []string{"Never invent a salary figure the user did not provide.", "Keep the tone professional."},
		Instructions: "Use propose_suggestion to apply a field the user confirms. Use ask_user when a required field is ambiguous. Call submit_stage when every required field is set.",
		ToolNames:    []string{"get_job", "propose_suggestion", "ask_user", "submit_stage"},
	},
	domain.StageRefine: {
		Mission:      "Polish the job posting's language once required fields are complete.",
		Guardrails:   []string{"Preserve factual content; only improve phrasing."},
		Instructions: "Use request_refinement to apply a batch of polished field values. Call submit_stage to move to asset generation once the user is satisfied.",
		ToolNames:    []string{"get_job", "request_refinement", "ask_user", "submit_stage"},
	},
	domain.StageAssets: {
		Mission:      "Help the recruiter review and adjust generated campaign assets.",
		Guardrails:   []string{"Do not promise assets that have not been generated."},
		Instructions: "Use get_job for context, update_asset to apply a recruiter's edit to a generated asset's content, and ask_user for clarification. Call submit_stage to move to channel selection.",
		ToolNames:    []string{"get_job", "update_asset", "ask_user", "submit_stage"},
	},
	domain.StageChannels: {
		Mission:      "Help the recruiter pick distribution channels for the job posting.",
		Guardrails:   []string{"Only recommend channels the system has surfaced."},
		Instructions: "Use recommend_channels to fetch current recommendations, select_channel to record the recruiter's choice, and ask_user to confirm.",
		ToolNames:    []string{"get_job", "recommend_channels", "select_channel", "ask_user"},
	},
}

// ResolveStage returns the StageConfig for stage, defaulting to StageWizard
// for an unrecognized or empty stage name.
func ResolveStage(stage string) StageConfig {
	if cfg, ok := stageConfigs[stage]; ok {
		return cfg
	}
	return stageConfigs[domain.StageWizard]
}
