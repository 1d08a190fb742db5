// Package companyintel implements the Company Intel loader (C12): a
// cached, TTL'd profile of a hiring company built by a grounded LLM call,
// used to enrich suggestion/refinement/channel/video prompts with
// company-specific detail.
package companyintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/domain"
	"orchestrator/internal/ledger"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
	"orchestrator/internal/store"
)

const companiesCollection = "companies"

// DefaultTTL is how long a cached CompanyContext is served before a
// refresh is attempted on next load.
const DefaultTTL = 7 * 24 * time.Hour

// ClientFactory builds provider clients for a model name.
type ClientFactory interface {
	CreateClient(modelName string, requireToolCall bool) (llm.LLMClient, error)
}

// Loader owns the cached company-context lookup.
type Loader struct {
	docs    *store.Documents
	ledger  *ledger.Ledger
	factory ClientFactory
	ttl     time.Duration
	logger  *logx.Logger
}

// New returns a Loader wired to its dependencies, using DefaultTTL.
func New(docs *store.Documents, led *ledger.Ledger, factory ClientFactory) *Loader {
	return &Loader{docs: docs, ledger: led, factory: factory, ttl: DefaultTTL, logger: logx.NewLogger("companyintel")}
}

// Load returns companyName's cached context if fresh, otherwise builds and
// caches a new one via a grounded LLM call (company_intel task family,
// routed to the Google adapter so WantsGrounding reaches native search).
func (l *Loader) Load(ctx context.Context, companyName, userID string, forceRefresh bool) (*domain.CompanyContext, error) {
	var cached domain.CompanyContext
	err := l.docs.Get(companiesCollection, companyName, &cached)
	hasCached := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load cached company context: %w", err)
	}

	if hasCached && !forceRefresh && time.Since(cached.UpdatedAt) < l.ttl {
		return &cached, nil
	}

	fresh, err := l.build(ctx, companyName, userID)
	if err != nil {
		if hasCached {
			l.logger.Warn("company intel refresh failed for %s, serving stale cache: %v", companyName, err)
			return &cached, nil
		}
		return nil, err
	}

	if err := l.docs.Save(companiesCollection, companyName, fresh); err != nil {
		return nil, fmt.Errorf("save company context: %w", err)
	}
	return fresh, nil
}

type companyPayload struct {
	Profile        string                 `json:"profile"`
	DiscoveredJobs []domain.DiscoveredJob `json:"discoveredJobs"`
}

func (l *Loader) build(ctx context.Context, companyName, userID string) (*domain.CompanyContext, error) {
	modelName, err := config.GetTaskFamilyModel(config.TaskFamilyCompanyIntel)
	if err != nil {
		return nil, fmt.Errorf("resolve company intel model: %w", err)
	}
	client, err := l.factory.CreateClient(modelName, false)
	if err != nil {
		return nil, fmt.Errorf("create company intel client: %w", err)
	}

	reservation, err := l.ledger.Reserve(userID, l.ledger.EstimateTextCredits(modelName, 600, 600))
	if err != nil {
		return nil, fmt.Errorf("reserve company intel credits: %w", err)
	}

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You research a company's public hiring presence and summarize it. Respond with JSON: " +
				"{profile: string, discoveredJobs: [{title, source, digest}]}."),
			llm.NewUserMessage(fmt.Sprintf("Company: %s", companyName)),
		},
		WantsGrounding: true,
	})
	if err != nil {
		_ = l.ledger.Refund(reservation)
		return nil, fmt.Errorf("generate company context: %w", err)
	}
	if commitErr := l.ledger.Commit(reservation, l.ledger.EstimateTextCredits(modelName, resp.PromptTokens, resp.CompletionTokens)); commitErr != nil {
		l.logger.Error("commit company intel credits: %v", commitErr)
	}

	var payload companyPayload
	if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
		return nil, fmt.Errorf("parse company context response: %w", err)
	}

	return &domain.CompanyContext{
		CompanyName:    companyName,
		Profile:        payload.Profile,
		DiscoveredJobs: payload.DiscoveredJobs,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}
