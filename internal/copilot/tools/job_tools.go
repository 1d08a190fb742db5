package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/domain"
	"orchestrator/internal/store"
)

const jobsCollection = "jobs"

func init() {
	Register(&GetJobTool{})
	Register(&ProposeSuggestionTool{})
	Register(&RequestRefinementTool{})
	Register(&RecommendChannelsTool{})
	Register(&SelectChannelTool{})
	Register(&AskUserTool{})
	Register(&SubmitStageTool{})
}

func loadJob(execCtx ExecContext) (*domain.Job, error) {
	if cached, ok := execCtx.Cache["job"].(*domain.Job); ok {
		return cached, nil
	}
	var job domain.Job
	if err := execCtx.Docs.Get(jobsCollection, execCtx.JobID, &job); err != nil {
		return nil, fmt.Errorf("load job %s: %w", execCtx.JobID, err)
	}
	execCtx.Cache["job"] = &job
	return &job, nil
}

func saveJob(execCtx ExecContext, job *domain.Job) error {
	if err := job.RefreshStatus(time.Now().UTC()); err != nil {
		return fmt.Errorf("refresh job status: %w", err)
	}
	if err := execCtx.Docs.Save(jobsCollection, execCtx.JobID, job); err != nil {
		return fmt.Errorf("save job %s: %w", execCtx.JobID, err)
	}
	execCtx.Cache["job"] = job
	return nil
}

// GetJobTool returns the current job snapshot, read-only.
type GetJobTool struct{}

func (t *GetJobTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "get_job",
		Description: "Fetch the current job posting snapshot, including completeness status.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *GetJobTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	job, err := loadJob(execCtx)
	if err != nil {
		return Result{}, err
	}
	data, _ := json.Marshal(job)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return Result{Status: "ok", Data: m}, nil
}

// ProposeSuggestionTool applies a single accepted field-suggestion value to
// the job, the copilot's equivalent of the intake wizard typing a field.
type ProposeSuggestionTool struct{}

func (t *ProposeSuggestionTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "propose_suggestion",
		Description: "Apply a suggested value to one intake field of the job.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"field": {Type: "string", Description: "Job field id to update."},
				"value": {Type: "string", Description: "New value for the field."},
			},
			Required: []string{"field", "value"},
		},
	}
}

func (t *ProposeSuggestionTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	field, _ := input["field"].(string)
	value, _ := input["value"].(string)
	if field == "" {
		return Result{}, errors.New("propose_suggestion requires a field")
	}

	job, err := loadJob(execCtx)
	if err != nil {
		return Result{}, err
	}
	if err := applyField(job, field, value); err != nil {
		return Result{}, err
	}
	if err := saveJob(execCtx, job); err != nil {
		return Result{}, err
	}

	return Result{
		Status: "ok",
		Action: &Action{Type: "field_update", Field: field, Value: value},
	}, nil
}

// RequestRefinementTool batch-applies several intake field updates in one
// call, the form a refine-stage conversation turn takes.
type RequestRefinementTool struct{}

func (t *RequestRefinementTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "request_refinement",
		Description: "Apply a batch of polished field values to the job's intake fields.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"fields": {Type: "object", Description: "Map of field id to new value."},
			},
			Required: []string{"fields"},
		},
	}
}

func (t *RequestRefinementTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	fields, ok := input["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return Result{}, errors.New("request_refinement requires a non-empty fields map")
	}

	job, err := loadJob(execCtx)
	if err != nil {
		return Result{}, err
	}
	for field, raw := range fields {
		value, _ := raw.(string)
		if err := applyField(job, field, value); err != nil {
			return Result{}, err
		}
	}
	if err := saveJob(execCtx, job); err != nil {
		return Result{}, err
	}

	return Result{
		Status: "ok",
		Action: &Action{Type: "field_batch_update", Extra: map[string]any{"fields": fields}},
	}, nil
}

// RecommendChannelsTool returns the job's cached distribution-channel
// recommendations, read-only (the orchestrator's channels task populates
// the document this reads).
type RecommendChannelsTool struct{}

func (t *RecommendChannelsTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "recommend_channels",
		Description: "Fetch the job's recommended distribution channels.",
		InputSchema: InputSchema{Type: "object", Properties: map[string]Property{}},
	}
}

func (t *RecommendChannelsTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	var doc domain.ChannelRecommendations
	err := execCtx.Docs.Get("jobChannelRecommendations", execCtx.JobID, &doc)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Status: "ok", Data: map[string]any{"recommendations": []domain.ChannelRecommendation{}}}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load channel recommendations: %w", err)
	}
	return Result{Status: "ok", Data: map[string]any{"recommendations": doc.Recommendations}}, nil
}

// SelectChannelTool records the recruiter's choice of distribution channel
// against a previously-surfaced recommendation.
type SelectChannelTool struct{}

func (t *SelectChannelTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "select_channel",
		Description: "Mark a recommended distribution channel as selected (or deselected) for the job.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"channel":  {Type: "string", Description: "Channel name, matching one of the current recommendations."},
				"selected": {Type: "boolean", Description: "Whether the channel is selected. Defaults to true."},
			},
			Required: []string{"channel"},
		},
	}
}

func (t *SelectChannelTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	channel, _ := input["channel"].(string)
	if channel == "" {
		return Result{}, errors.New("select_channel requires a channel")
	}
	selected := true
	if v, ok := input["selected"].(bool); ok {
		selected = v
	}

	var doc domain.ChannelRecommendations
	if err := execCtx.Docs.Get("jobChannelRecommendations", execCtx.JobID, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("no channel recommendations for job %s", execCtx.JobID)
		}
		return Result{}, fmt.Errorf("load channel recommendations: %w", err)
	}

	found := false
	for i := range doc.Recommendations {
		if doc.Recommendations[i].Channel == channel {
			doc.Recommendations[i].Selected = selected
			found = true
			break
		}
	}
	if !found {
		return Result{}, fmt.Errorf("channel %q is not among the job's recommendations", channel)
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := execCtx.Docs.Save("jobChannelRecommendations", execCtx.JobID, &doc); err != nil {
		return Result{}, fmt.Errorf("save channel selection: %w", err)
	}

	return Result{
		Status: "ok",
		Action: &Action{Type: "channel_recommendation_update", Field: channel, Value: selected},
	}, nil
}

// AskUserTool poses a clarifying question back to the user; the copilot
// loop treats its invocation as terminal, returning the question as the
// assistant reply with no further reasoning this turn.
type AskUserTool struct{}

func (t *AskUserTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "ask_user",
		Description: "Ask the user a clarifying question instead of guessing.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"question": {Type: "string"}},
			Required:   []string{"question"},
		},
	}
}

func (t *AskUserTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	question, _ := input["question"].(string)
	if question == "" {
		return Result{}, errors.New("ask_user requires a question")
	}
	return Result{Status: "ask", Data: map[string]any{"question": question}}, nil
}

// SubmitStageTool advances the copilot conversation to its next stage.
type SubmitStageTool struct{}

func (t *SubmitStageTool) Meta() ToolDefinition {
	return ToolDefinition{
		Name:        "submit_stage",
		Description: "Advance the copilot conversation to the next stage (wizard, refine, assets, channels).",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"nextStage": {Type: "string", Enum: []string{domain.StageWizard, domain.StageRefine, domain.StageAssets, domain.StageChannels}}},
			Required:   []string{"nextStage"},
		},
	}
}

func (t *SubmitStageTool) Execute(ctx context.Context, execCtx ExecContext, input map[string]any) (Result, error) {
	next, _ := input["nextStage"].(string)
	if next == "" {
		return Result{}, errors.New("submit_stage requires nextStage")
	}

	var chat domain.CopilotChat
	err := execCtx.Docs.Get("wizardCopilotChats", execCtx.JobID, &chat)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Result{}, fmt.Errorf("load copilot chat: %w", err)
	}
	chat.JobID = execCtx.JobID
	chat.CurrentStage = next
	if err := execCtx.Docs.Save("wizardCopilotChats", execCtx.JobID, &chat); err != nil {
		return Result{}, fmt.Errorf("save copilot chat stage: %w", err)
	}

	return Result{Status: "ok", Action: &Action{Type: "stage_transition", Value: next}}, nil
}

func applyField(job *domain.Job, field, value string) error {
	switch field {
	case "roleTitle":
		job.RoleTitle = value
	case "companyName":
		job.CompanyName = value
	case "location":
		job.Location = value
	case "seniorityLevel":
		job.SeniorityLevel = value
	case "employmentType":
		job.EmploymentType = value
	case "workModel":
		job.WorkModel = value
	case "jobDescription":
		job.JobDescription = value
	default:
		return fmt.Errorf("unknown intake field %q", field)
	}
	return nil
}
