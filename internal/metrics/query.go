// Package metrics provides a read-side Prometheus query service backing the
// admin usage rollup endpoint, separate from the write-side recorder in
// internal/llm/middleware/metrics.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// UserUsage is aggregated token/credit usage for one user, as seen by
// Prometheus rather than the document store's usage_log — an independent
// observability view used by GET /admin/usage.
type UserUsage struct {
	UserID           string  `json:"userId"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	TotalCredits     float64 `json:"totalCredits"`
}

// QueryService queries Prometheus for per-user usage rollups.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service pointed at a running Prometheus
// instance's HTTP API.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetUserUsage retrieves aggregated token and credit metrics for one user,
// across all task types and models.
func (q *QueryService) GetUserUsage(ctx context.Context, userID string) (*UserUsage, error) {
	usage := &UserUsage{UserID: userID}

	promptQuery := fmt.Sprintf(`sum(llm_tokens_total{user_id=%q, type="prompt"})`, userID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
		usage.PromptTokens = int64(vector[0].Value)
	}

	completionQuery := fmt.Sprintf(`sum(llm_tokens_total{user_id=%q, type="completion"})`, userID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
		usage.CompletionTokens = int64(vector[0].Value)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	creditsQuery := fmt.Sprintf(`sum(llm_credits_total{user_id=%q})`, userID)
	creditsResult, _, err := q.queryAPI.Query(ctx, creditsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query total credits: %w", err)
	}
	if vector, ok := creditsResult.(model.Vector); ok && len(vector) > 0 {
		usage.TotalCredits = float64(vector[0].Value)
	}

	return usage, nil
}

// GetUserUsageByModel retrieves a per-model breakdown of token/credit usage
// for one user.
func (q *QueryService) GetUserUsageByModel(ctx context.Context, userID string) (map[string]*UserUsage, error) {
	result := make(map[string]*UserUsage)

	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{user_id=%q})`, userID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		usage := &UserUsage{UserID: userID}

		promptQuery := fmt.Sprintf(`sum(llm_tokens_total{user_id=%q, model=%q, type="prompt"})`, userID, modelName)
		promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		if vector, ok := promptResult.(model.Vector); ok && len(vector) > 0 {
			usage.PromptTokens = int64(vector[0].Value)
		}

		completionQuery := fmt.Sprintf(`sum(llm_tokens_total{user_id=%q, model=%q, type="completion"})`, userID, modelName)
		completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		if vector, ok := completionResult.(model.Vector); ok && len(vector) > 0 {
			usage.CompletionTokens = int64(vector[0].Value)
		}

		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		creditsQuery := fmt.Sprintf(`sum(llm_credits_total{user_id=%q, model=%q})`, userID, modelName)
		creditsResult, _, err := q.queryAPI.Query(ctx, creditsQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query credits for model %s: %w", modelName, err)
		}
		if vector, ok := creditsResult.(model.Vector); ok && len(vector) > 0 {
			usage.TotalCredits = float64(vector[0].Value)
		}

		result[modelName] = usage
	}

	return result, nil
}
