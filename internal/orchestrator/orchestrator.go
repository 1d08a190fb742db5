// Package orchestrator implements the Task Orchestrator (C6): the single
// runTask(taskType, context, caller) entry point every HTTP task handler and
// the copilot agent loop funnel through. It owns the eleven-step pipeline
// (validate, enrich, reserve, resolve, compatibility-gate, invoke, post-process,
// persist, commit, emit, return) described for each task type.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/llm/compat"
	"orchestrator/internal/logx"
	"orchestrator/internal/promptregistry"
	"orchestrator/internal/store"
	"orchestrator/internal/tokencount"
)

// Caller carries the identity and logging scope of whoever invoked a task.
type Caller struct {
	UserID string
	Logger *logx.Logger
}

// TaskContext is the task-specific structured payload the caller supplies,
// before enrichment. Handlers type-assert or decode the Raw map themselves.
type TaskContext struct {
	JobID        string
	ForceRefresh bool
	Raw          map[string]any
}

// TaskResult is the response envelope every task type returns: a refreshed
// flag, an optional recoverable failure, and the task-specific payload.
type TaskResult struct {
	Refreshed bool           `json:"refreshed"`
	Failure   *FailureDetail `json:"failure,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// FailureDetail is the recoverable-failure envelope persisted alongside a
// task's document rather than discarding its previous successful state.
type FailureDetail struct {
	Reason     string `json:"reason"`
	RawPreview string `json:"rawPreview,omitempty"`
	Error      string `json:"error,omitempty"`
}

// skipLLM signals that enrichment resolved the task without a provider
// call (a cache hit), carrying the payload to return directly.
type skipLLM struct {
	reason  string
	payload any
}

// EnrichResult is what a per-task-type enricher returns: either a skip
// directive or an enriched prompt context ready for the compatibility gate.
type EnrichResult struct {
	skip *skipLLM

	// SystemPrompt / UserPrompt are written by the handler from the enriched
	// snapshot; the resolved prompt's Template is not used.
	SystemPrompt string
	UserPrompt   string

	// WantsGrounding requests grounding for this task; RunTask also requests
	// it when the resolved prompt declares grounding tools.
	WantsGrounding bool
}

// Handler implements one task type's enrichment, post-processing, and
// persistence. RunTask drives every handler through the same pipeline.
type Handler interface {
	// Enrich loads whatever state the task needs and either returns a
	// skip-LLM result (cache hit) or a ready-to-send prompt context.
	Enrich(ctx context.Context, tc TaskContext, caller Caller) (EnrichResult, error)

	// TaskFamily names the config.TaskFamily* this task routes through for
	// model selection.
	TaskFamily() string

	// PostProcess validates/normalizes the adapter's raw response and
	// returns the payload to persist, or an error for a failure envelope.
	PostProcess(ctx context.Context, raw llm.CompletionResponse, tc TaskContext) (any, error)

	// Persist writes the successful payload to its document, returning the
	// value to embed in TaskResult.Payload.
	Persist(ctx context.Context, docs *store.Documents, tc TaskContext, payload any) (any, error)

	// PersistFailure records a FailureDetail on the task's document without
	// discarding previously persisted state.
	PersistFailure(ctx context.Context, docs *store.Documents, tc TaskContext, detail FailureDetail) error
}

// ClientFactory builds provider clients for a model. *llm.ClientFactory
// satisfies this; tests supply a stub.
type ClientFactory interface {
	CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error)
}

// Orchestrator is the shared C6 instance: one per process, called
// concurrently from many HTTP requests.
type Orchestrator struct {
	docs     *store.Documents
	prompts  *promptregistry.Registry
	ledger   *ledger.Ledger
	factory  ClientFactory
	logger   *logx.Logger
	handlers map[string]Handler
}

// New returns an Orchestrator wired to its dependencies. Register handlers
// with RegisterHandler before calling RunTask.
func New(docs *store.Documents, prompts *promptregistry.Registry, led *ledger.Ledger, factory ClientFactory) *Orchestrator {
	return &Orchestrator{
		docs:     docs,
		prompts:  prompts,
		ledger:   led,
		factory:  factory,
		logger:   logx.NewLogger("orchestrator"),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds taskType to handler. Call during startup wiring,
// before any concurrent RunTask call.
func (o *Orchestrator) RegisterHandler(taskType string, handler Handler) {
	o.handlers[taskType] = handler
}

// RunTask drives taskType's eleven-step pipeline to completion, per
// task-orchestrator component design: validate, enrich, reserve, resolve,
// compatibility-gate, invoke, post-process, persist, commit, emit, return.
func (o *Orchestrator) RunTask(ctx context.Context, taskType string, tc TaskContext, caller Caller) (TaskResult, error) {
	handler, ok := o.handlers[taskType]
	if !ok {
		return TaskResult{}, NewTaskError(KindInvalidContext, "unknown task type %q", taskType)
	}
	if caller.UserID == "" {
		return TaskResult{}, NewTaskError(KindUnauthorized, "caller has no userId")
	}
	if tc.JobID == "" {
		return TaskResult{}, NewTaskError(KindInvalidContext, "task context missing jobId")
	}

	// Step 2: enrich (may short-circuit with a cache hit).
	enriched, err := handler.Enrich(ctx, tc, caller)
	if err != nil {
		return TaskResult{}, err
	}
	if enriched.skip != nil {
		return TaskResult{Refreshed: false, Payload: enriched.skip.payload, UpdatedAt: time.Now().UTC()}, nil
	}

	// Step 4 (model/provider resolution precedes the estimate so credits
	// are reserved against the model that will actually be billed).
	modelName, err := config.GetTaskFamilyModel(handler.TaskFamily())
	if err != nil {
		return TaskResult{}, NewTaskError(KindInvalidContext, "no model routed for task family: %v", err)
	}
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return TaskResult{}, NewTaskError(KindInvalidContext, "no provider for model %s: %v", modelName, err)
	}

	// Step 3: reserve credits from a pre-call token estimate before any
	// provider call.
	counter := tokencount.NewCounter(modelName)
	estimatedTokens := counter.Count(enriched.SystemPrompt) + counter.Count(enriched.UserPrompt)
	reservation, err := o.ledger.Reserve(caller.UserID, o.ledger.EstimateTextCredits(modelName, estimatedTokens, 0))
	if err != nil {
		return TaskResult{}, NewTaskError(KindInsufficientCredits, "%v", err)
	}

	prompt := o.prompts.Resolve(loggingAlias(taskType))

	// Step 5: compatibility gate.
	grounding, structured := compat.ResolveMode(provider, enriched.WantsGrounding || prompt.GroundingTools, prompt.HasOutputSchema())

	client, err := o.factory.CreateClient(modelName, false)
	if err != nil {
		_ = o.ledger.Refund(reservation)
		return TaskResult{}, fmt.Errorf("create client for %s: %w", modelName, err)
	}

	req := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(enriched.SystemPrompt),
			llm.NewUserMessage(enriched.UserPrompt),
		},
		WantsGrounding:        grounding,
		WantsStructuredOutput: structured,
		ResponseSchema:        prompt.OutputSchema,
		MaxTokens:             4096,
		Temperature:           0.7,
	}

	// Step 6: invoke adapter.
	resp, err := client.Complete(ctx, req)
	if err != nil {
		_ = o.ledger.Refund(reservation)
		detail := FailureDetail{Reason: "provider_error", Error: err.Error()}
		if persistErr := handler.PersistFailure(ctx, o.docs, tc, detail); persistErr != nil {
			o.logger.Error("persist failure envelope: %v", persistErr)
		}
		o.emitUsage(caller.UserID, tc.JobID, loggingAlias(taskType), provider, modelName, 0, 0, 0, "failed", detail.Reason)
		return TaskResult{Refreshed: true, Failure: &detail, UpdatedAt: time.Now().UTC()}, nil
	}

	// Step 7: post-process (normalize, schema-validate).
	payload, err := handler.PostProcess(ctx, resp, tc)
	if err != nil {
		actualCredits := o.ledger.EstimateTextCredits(modelName, resp.PromptTokens, resp.CompletionTokens)
		if commitErr := o.ledger.Commit(reservation, actualCredits); commitErr != nil {
			o.logger.Error("commit after post-process failure: %v", commitErr)
		}
		detail := FailureDetail{Reason: "schema_validation_failed", RawPreview: preview(resp.Content), Error: err.Error()}
		if persistErr := handler.PersistFailure(ctx, o.docs, tc, detail); persistErr != nil {
			o.logger.Error("persist failure envelope: %v", persistErr)
		}
		o.emitUsage(caller.UserID, tc.JobID, loggingAlias(taskType), provider, modelName, resp.PromptTokens, resp.CompletionTokens, actualCredits, "failed", detail.Reason)
		return TaskResult{Refreshed: true, Failure: &detail, UpdatedAt: time.Now().UTC()}, nil
	}

	// Step 8: persist (must precede credit commit per ordering rule).
	persisted, err := handler.Persist(ctx, o.docs, tc, payload)
	if err != nil {
		_ = o.ledger.Refund(reservation)
		return TaskResult{}, fmt.Errorf("persist task result: %w", err)
	}

	// Step 9: commit credits from actual usage.
	actualCredits := o.ledger.EstimateTextCredits(modelName, resp.PromptTokens, resp.CompletionTokens)
	if err := o.ledger.Commit(reservation, actualCredits); err != nil {
		o.logger.Error("commit credits for %s: %v", taskType, err)
	}

	// Step 10: emit usage row.
	o.emitUsage(caller.UserID, tc.JobID, loggingAlias(taskType), provider, modelName, resp.PromptTokens, resp.CompletionTokens, actualCredits, "ok", "")

	return TaskResult{Refreshed: true, Payload: persisted, UpdatedAt: time.Now().UTC()}, nil
}

func (o *Orchestrator) emitUsage(userID, jobID, taskType, provider, model string, promptTokens, completionTokens int, credits float64, status, errorReason string) {
	entry := storeUsageEntry(userID, jobID, taskType, provider, model, promptTokens, completionTokens, credits, status, errorReason)
	if err := o.ledger.Append(entry); err != nil {
		o.logger.Error("append usage row: %v", err)
	}
}

func preview(s string) string {
	const maxPreview = 500
	if len(s) <= maxPreview {
		return s
	}
	return s[:maxPreview]
}
