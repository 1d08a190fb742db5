// Package copilot implements the Agent Loop (C7): a capped tool-calling
// conversation that turns one user utterance into an assistant reply plus a
// list of applied actions, staged across wizard/refine/assets/channels.
package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/copilot/tools"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
	"orchestrator/internal/orchestrator"
	"orchestrator/internal/store"
)

// MaxTurns is the hard per-conversation iteration cap.
const MaxTurns = 8

// cannedEscalationReply is returned when the loop exceeds MaxTurns without
// reaching a final reply.
const cannedEscalationReply = "I hit a snag working through that — could you try rephrasing or breaking it into a smaller step?"

// ErrUnauthorized is returned by Run when caller does not own jobID.
var ErrUnauthorized = errors.New("caller does not own this job")

// ClientFactory builds provider clients for a model name.
type ClientFactory interface {
	CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error)
}

// Loop is the shared C7 instance.
type Loop struct {
	docs    *store.Documents
	ledger  *ledger.Ledger
	factory ClientFactory
	logger  *logx.Logger
}

// New returns a Loop wired to its dependencies.
func New(docs *store.Documents, led *ledger.Ledger, factory ClientFactory) *Loop {
	return &Loop{docs: docs, ledger: led, factory: factory, logger: logx.NewLogger("copilot")}
}

// Turn is the result of one Run invocation: the assistant's reply plus
// every action a tool applied this turn.
type Turn struct {
	Reply   string         `json:"reply"`
	Actions []tools.Action `json:"actions"`
	Stage   string         `json:"stage"`
}

// Run executes at most MaxTurns { LLM turn -> optional tool call } cycles
// for one user utterance, persisting the chat transcript and any tool side
// effects as it goes.
func (l *Loop) Run(ctx context.Context, jobID, userMessage string, caller orchestrator.Caller) (Turn, error) {
	var job domain.Job
	if err := l.docs.Get("jobs", jobID, &job); err != nil {
		return Turn{}, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.UserID != caller.UserID {
		return Turn{}, fmt.Errorf("%w: job %s", ErrUnauthorized, jobID)
	}

	var chat domain.CopilotChat
	if err := l.docs.Get("wizardCopilotChats", jobID, &chat); err != nil {
		chat = domain.CopilotChat{JobID: jobID, CurrentStage: domain.StageWizard}
	}
	if chat.CurrentStage == "" {
		chat.CurrentStage = domain.StageWizard
	}
	stage := ResolveStage(chat.CurrentStage)
	provider := tools.NewProvider(stage.ToolNames)

	chat.Append(domain.ChatMessage{
		ID: fmt.Sprintf("%s-%d", jobID, len(chat.Messages)), Role: domain.ChatRoleUser,
		Content: userMessage, Stage: chat.CurrentStage, CreatedAt: time.Now().UTC(),
	})

	snapshot, err := l.buildSnapshot(jobID, &job)
	if err != nil {
		return Turn{}, err
	}

	modelName, err := config.GetTaskFamilyModel(config.TaskFamilyChat)
	if err != nil {
		return Turn{}, fmt.Errorf("resolve copilot model: %w", err)
	}
	client, err := l.factory.CreateClient(modelName, true)
	if err != nil {
		return Turn{}, fmt.Errorf("create copilot client: %w", err)
	}

	execCtx := tools.ExecContext{Docs: l.docs, UserID: caller.UserID, JobID: jobID, Cache: map[string]any{}}
	scratchpad := make([]llm.CompletionMessage, 0, MaxTurns*2)
	var actions []tools.Action

	systemPrompt := renderSystemPrompt(stage, snapshot, chat.Window(domain.DefaultChatWindow))

	for turn := 0; turn < MaxTurns; turn++ {
		messages := append([]llm.CompletionMessage{llm.NewSystemMessage(systemPrompt), llm.NewUserMessage(userMessage)}, scratchpad...)

		reservation, reserveErr := l.ledger.Reserve(caller.UserID, l.ledger.EstimateTextCredits(modelName, 500, 500))
		if reserveErr != nil {
			return Turn{}, fmt.Errorf("reserve copilot turn credits: %w", reserveErr)
		}

		resp, callErr := client.Complete(ctx, llm.CompletionRequest{
			Messages:  messages,
			Tools:     provider.Definitions(),
			MaxTokens: llm.CopilotMaxTokens,
		})
		if callErr != nil {
			_ = l.ledger.Refund(reservation)
			return Turn{}, fmt.Errorf("copilot turn %d: %w", turn+1, callErr)
		}
		actualCredits := l.ledger.EstimateTextCredits(modelName, resp.PromptTokens, resp.CompletionTokens)
		if commitErr := l.ledger.Commit(reservation, actualCredits); commitErr != nil {
			l.logger.Error("commit copilot turn credits: %v", commitErr)
		}

		if len(resp.ToolCalls) == 0 {
			return l.finish(&chat, resp.Content, actions, "assistant")
		}

		call := resp.ToolCalls[0]
		tool, lookupErr := provider.Get(call.Name)
		if lookupErr != nil {
			scratchpad = append(scratchpad, toolErrorMessage(call.ID, lookupErr))
			continue
		}

		result, execErr := tool.Execute(ctx, execCtx, call.Parameters)
		if execErr != nil {
			scratchpad = append(scratchpad, toolErrorMessage(call.ID, execErr))
			continue
		}

		if result.Status == "ask" {
			question, _ := result.Data["question"].(string)
			return l.finish(&chat, question, actions, "assistant")
		}

		if result.Action != nil {
			actions = append(actions, *result.Action)
			if chat.CurrentStage == domain.StageRefine && (result.Action.Type == "field_update" || result.Action.Type == "field_batch_update") {
				if syncErr := l.syncRefinement(jobID, result.Action); syncErr != nil {
					l.logger.Error("sync refined fields: %v", syncErr)
				}
			}
			if result.Action.Type == "stage_transition" {
				if next, ok := result.Action.Value.(string); ok {
					chat.CurrentStage = next
				}
			}
			return l.finish(&chat, synthesizeActionReply(result.Action), actions, "assistant")
		}

		data, _ := json.Marshal(result.Data)
		scratchpad = append(scratchpad, llm.CompletionMessage{
			Role: llm.RoleUser,
			ToolResults: []llm.ToolResult{{ToolCallID: call.ID, Content: string(data)}},
		})
	}

	return l.finish(&chat, cannedEscalationReply, actions, "assistant")
}

func (l *Loop) finish(chat *domain.CopilotChat, reply string, actions []tools.Action, role string) (Turn, error) {
	chat.Append(domain.ChatMessage{
		ID: fmt.Sprintf("%s-%d", chat.JobID, len(chat.Messages)), Role: role,
		Content: reply, Stage: chat.CurrentStage, CreatedAt: time.Now().UTC(),
	})
	if err := l.docs.Save("wizardCopilotChats", chat.JobID, chat); err != nil {
		return Turn{}, fmt.Errorf("save copilot chat: %w", err)
	}
	return Turn{Reply: reply, Actions: actions, Stage: chat.CurrentStage}, nil
}

func (l *Loop) syncRefinement(jobID string, action *tools.Action) error {
	deltas := map[string]any{}
	if action.Type == "field_update" {
		deltas[action.Field] = action.Value
	} else if fields, ok := action.Extra["fields"].(map[string]any); ok {
		deltas = fields
	}
	return orchestrator.SyncRefinedFields(l.docs, jobID, deltas)
}

type snapshot struct {
	Job        *domain.Job                `json:"job"`
	Suggestion *domain.SuggestionDocument `json:"suggestion,omitempty"`
	Refinement *domain.RefinementDocument `json:"refinement,omitempty"`
	Company    *domain.CompanyContext     `json:"company,omitempty"`
}

func (l *Loop) buildSnapshot(jobID string, job *domain.Job) (snapshot, error) {
	snap := snapshot{Job: job}

	var suggestion domain.SuggestionDocument
	if err := l.docs.Get("jobSuggestions", jobID, &suggestion); err == nil {
		snap.Suggestion = &suggestion
	} else if !errors.Is(err, store.ErrNotFound) {
		return snapshot{}, fmt.Errorf("load suggestion snapshot: %w", err)
	}

	var refinement domain.RefinementDocument
	if err := l.docs.Get("jobRefinements", jobID, &refinement); err == nil {
		snap.Refinement = &refinement
	} else if !errors.Is(err, store.ErrNotFound) {
		return snapshot{}, fmt.Errorf("load refinement snapshot: %w", err)
	}

	var company domain.CompanyContext
	if err := l.docs.Get("companies", job.CompanyName, &company); err == nil {
		snap.Company = &company
	} else if !errors.Is(err, store.ErrNotFound) {
		return snapshot{}, fmt.Errorf("load company context: %w", err)
	}

	return snap, nil
}

func renderSystemPrompt(stage StageConfig, snap snapshot, history []domain.ChatMessage) string {
	snapJSON, _ := json.Marshal(snap)
	historyJSON, _ := json.Marshal(history)
	return fmt.Sprintf("Mission: %s\nGuardrails: %v\nInstructions: %s\n\nSnapshot: %s\n\nRecent history: %s",
		stage.Mission, stage.Guardrails, stage.Instructions, string(snapJSON), string(historyJSON))
}

func synthesizeActionReply(action *tools.Action) string {
	switch action.Type {
	case "field_update":
		return fmt.Sprintf("I updated %s as requested.", action.Field)
	case "field_batch_update":
		return "I updated the requested fields as requested."
	case "asset_update":
		return "I updated that asset as requested."
	case "channel_recommendation_update":
		return fmt.Sprintf("Recorded %s as selected: %v.", action.Field, action.Value)
	case "stage_transition":
		return fmt.Sprintf("Moving on to the %v stage.", action.Value)
	default:
		return "Done."
	}
}

func toolErrorMessage(toolCallID string, err error) llm.CompletionMessage {
	return llm.CompletionMessage{
		Role:        llm.RoleUser,
		ToolResults: []llm.ToolResult{{ToolCallID: toolCallID, Content: err.Error(), IsError: true}},
	}
}
