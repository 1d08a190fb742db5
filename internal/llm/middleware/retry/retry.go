// Package retry provides retry logic with exponential backoff for provider calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"orchestrator/internal/agent/llmerrors"
	"orchestrator/internal/config"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   5,
	InitialDelay:  1 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines whether an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. Everything is retryable unless
// explicitly excluded, so unclassified transport errors still get retried
// until they surface as a ServiceUnavailable escalation.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *llmerrors.Error
	if errors.As(err, &providerErr) {
		switch providerErr.Type {
		case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeBadPrompt:
			return false
		case llmerrors.ErrorTypeServiceUnavailable:
			return false
		default:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "invalid api key") {
		return false
	}
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "404") {
		return false
	}

	return true
}

// Policy encapsulates retry configuration and an error classifier.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a retry policy. A nil classifier falls back to ShouldRetry.
func NewPolicy(cfg Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{Config: cfg, Classifier: classifier}
}

// CalculateDelay computes the backoff delay before the given attempt.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitterFactor := (2*time.Now().UnixNano()%2 - 1)
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// ShouldRetry reports whether err should be retried under this policy.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// Middleware wraps a provider client with retry logic, escalating to a
// ServiceUnavailable error once attempts are exhausted on a retryable error.
func Middleware(policy *Policy, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						logger.Warn("provider retry %d/%d (backoff %v): %v", attempt, policy.Config.MaxAttempts, delay, lastErr)
						if delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}

					lastErr = err
					if !policy.ShouldRetry(err) {
						break
					}
					if attempt >= policy.Config.MaxAttempts {
						break
					}
				}

				if policy.ShouldRetry(lastErr) {
					logger.Error("provider retries exhausted (%d attempts): %v", policy.Config.MaxAttempts, lastErr)
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				return next.Stream(ctx, req)
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}
