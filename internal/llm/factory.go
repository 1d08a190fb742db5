package llm

import (
	"context"
	"fmt"

	"orchestrator/internal/config"
	"orchestrator/internal/llm/middleware/circuit"
	"orchestrator/internal/llm/middleware/metrics"
	"orchestrator/internal/llm/middleware/ratelimit"
	"orchestrator/internal/llm/middleware/retry"
	"orchestrator/internal/llm/middleware/timeout"
	"orchestrator/internal/llm/middleware/validation"
	"orchestrator/internal/llm/providers/anthropic"
	"orchestrator/internal/llm/providers/google"
	"orchestrator/internal/llm/providers/ollama"
	"orchestrator/internal/llm/providers/openai"
	"orchestrator/internal/logx"
)

// ClientFactory builds fully middleware-wrapped provider clients, sharing one
// circuit breaker and rate limiter per provider across every model on that
// provider so a Gemini Flash outage also throttles Gemini Pro calls.
type ClientFactory struct {
	circuitBreakers map[string]circuit.Breaker
	rateLimitMap    *ratelimit.ProviderLimiterMap
	metricsRecorder metrics.Recorder
	config          config.Config
}

// NewClientFactory builds a factory from the process-wide configuration.
func NewClientFactory(cfg config.Config) *ClientFactory {
	var recorder metrics.Recorder
	if cfg.Gateway.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder()
	} else {
		recorder = metrics.Nop()
	}

	circuitBreakers := make(map[string]circuit.Breaker)
	for _, provider := range []string{
		config.ProviderAnthropic,
		config.ProviderOpenAI,
		config.ProviderGoogle,
		config.ProviderOllama,
	} {
		circuitBreakers[provider] = circuit.New(circuit.Config{
			FailureThreshold: cfg.Gateway.Resilience.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.Gateway.Resilience.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.Gateway.Resilience.CircuitBreaker.Timeout,
		})
	}

	rateLimitConfigs := map[string]ratelimit.Config{
		config.ProviderAnthropic: {
			TokensPerMinute: cfg.Gateway.Resilience.RateLimit.Anthropic.TokensPerMinute,
			MaxConcurrency:  cfg.Gateway.Resilience.RateLimit.Anthropic.MaxConcurrency,
		},
		config.ProviderOpenAI: {
			TokensPerMinute: cfg.Gateway.Resilience.RateLimit.OpenAI.TokensPerMinute,
			MaxConcurrency:  cfg.Gateway.Resilience.RateLimit.OpenAI.MaxConcurrency,
		},
		config.ProviderGoogle: {
			TokensPerMinute: cfg.Gateway.Resilience.RateLimit.Google.TokensPerMinute,
			MaxConcurrency:  cfg.Gateway.Resilience.RateLimit.Google.MaxConcurrency,
		},
		config.ProviderOllama: {
			TokensPerMinute: cfg.Gateway.Resilience.RateLimit.Ollama.TokensPerMinute,
			MaxConcurrency:  cfg.Gateway.Resilience.RateLimit.Ollama.MaxConcurrency,
		},
	}

	rateLimitMap := ratelimit.NewProviderLimiterMap(context.Background(), rateLimitConfigs, cfg.Gateway.Resilience.Timeout)

	return &ClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		circuitBreakers: circuitBreakers,
		rateLimitMap:    rateLimitMap,
	}
}

// Stop releases factory-owned background resources (rate limiter refill timers).
func (f *ClientFactory) Stop() {
	if f.rateLimitMap != nil {
		f.rateLimitMap.Stop()
	}
}

// GetRateLimitStats returns rate limiter statistics for every provider.
func (f *ClientFactory) GetRateLimitStats() map[string]ratelimit.LimiterStats {
	if f.rateLimitMap == nil {
		return map[string]ratelimit.LimiterStats{}
	}
	return f.rateLimitMap.GetAllStats()
}

// CreateClient builds a fully wrapped client for modelName. requireToolCall
// should be true for the copilot agent loop (every turn must call a tool or
// finish) and false for task-orchestrator calls that just want text or
// structured JSON back.
func (f *ClientFactory) CreateClient(modelName string, requireToolCall bool) (LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var rawClient LLMClient
	switch provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClient(apiKey, modelName)
	case config.ProviderOpenAI:
		rawClient = openai.NewClient(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = google.NewClient(apiKey, modelName)
	case config.ProviderOllama:
		rawClient = ollama.NewClient(apiKey, modelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	circuitBreaker, exists := f.circuitBreakers[provider]
	if !exists {
		return nil, fmt.Errorf("no circuit breaker configured for provider %s", provider)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   f.config.Gateway.Resilience.Retry.MaxAttempts,
		InitialDelay:  f.config.Gateway.Resilience.Retry.InitialDelay,
		MaxDelay:      f.config.Gateway.Resilience.Retry.MaxDelay,
		BackoffFactor: f.config.Gateway.Resilience.Retry.BackoffFactor,
		Jitter:        f.config.Gateway.Resilience.Retry.Jitter,
	}, nil)

	retryLogger := logx.NewLogger("retry")
	validator := validation.NewEmptyResponseValidator(requireToolCall)

	client := Chain(rawClient,
		validator.Middleware(),
		metrics.Middleware(f.metricsRecorder),
		circuit.Middleware(circuitBreaker),
		retry.Middleware(retryPolicy, retryLogger),
		ratelimit.Middleware(f.rateLimitMap, nil, f.metricsRecorder),
		timeout.Middleware(f.config.Gateway.Resilience.Timeout),
	)

	return client, nil
}
