// Package ratelimit provides token-bucket rate limiting for provider clients.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/llm"
	"orchestrator/internal/logx"
)

// rateLimitBufferFactor caps the bucket at 90% of the nominal per-minute
// rate, leaving headroom below the provider's own limit.
const rateLimitBufferFactor = 0.9

// Limiter acquires tokens and a concurrency slot before a request proceeds.
type Limiter interface {
	Acquire(ctx context.Context, tokens int, callerID string) (release func(), err error)
	GetStats() LimiterStats
}

// TokenEstimator estimates the prompt-token cost of a completion request.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// Config defines rate limiting for a single provider.
type Config struct {
	TokensPerMinute int
	MaxConcurrency  int
}

// DefaultTokenEstimator is a cheap length-based estimator used when no
// tiktoken-backed estimator is wired in.
type DefaultTokenEstimator struct{}

// NewDefaultTokenEstimator returns the default character-count estimator.
func NewDefaultTokenEstimator() TokenEstimator {
	return &DefaultTokenEstimator{}
}

// EstimatePrompt approximates token count at 4 characters per token.
func (e *DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	var total int
	for i := range req.Messages {
		total += len(req.Messages[i].Content)
	}
	return total / 4
}

type acquisition struct {
	timestamp time.Time
	callerID  string
}

// TokenBucketLimiter combines a token bucket with a concurrency semaphore,
// so a burst of short requests and a handful of long-running ones are both
// bounded against the same provider budget.
//
//nolint:govet // field grouping preferred over memory alignment
type TokenBucketLimiter struct {
	mu sync.Mutex

	provider string

	availableTokens int
	tokensPerRefill int
	maxCapacity     int

	activeRequests int
	maxConcurrency int
	acquisitions   []*acquisition
	releaseTimeout time.Duration

	tokenLimitHits  int64
	concurrencyHits int64
}

// LimiterStats reports current limiter state.
type LimiterStats struct {
	Provider            string
	AvailableTokens     int
	MaxCapacity         int
	ActiveRequests      int
	MaxConcurrency      int
	TokenLimitHits      int64
	ConcurrencyHits     int64
	TrackedAcquisitions int
}

// NewTokenBucketLimiter creates a limiter for one provider.
func NewTokenBucketLimiter(provider string, cfg Config, requestTimeout time.Duration) *TokenBucketLimiter {
	maxCapacity := int(float64(cfg.TokensPerMinute) * rateLimitBufferFactor)
	tokensPerRefill := cfg.TokensPerMinute / 10

	return &TokenBucketLimiter{
		provider:        provider,
		availableTokens: maxCapacity,
		tokensPerRefill: tokensPerRefill,
		maxCapacity:     maxCapacity,
		maxConcurrency:  cfg.MaxConcurrency,
		acquisitions:    make([]*acquisition, 0),
		releaseTimeout:  requestTimeout * 2,
	}
}

// Acquire blocks until both a token allotment and a concurrency slot are
// available, the context is cancelled, or a one-minute-per-caller safety
// timeout trips (guards against a misconfigured limit wedging a task forever).
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int, callerID string) (func(), error) {
	firstAttempt := true
	startTime := time.Now()
	maxWait := time.Minute

	for {
		l.mu.Lock()

		if l.activeRequests >= l.maxConcurrency {
			l.cleanStaleAcquisitions()
		}

		hasTokens := l.availableTokens >= tokens
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokens
			l.activeRequests++

			acq := &acquisition{timestamp: time.Now(), callerID: callerID}
			l.acquisitions = append(l.acquisitions, acq)

			release := func() { l.release(acq) }

			l.mu.Unlock()
			return release, nil
		}

		elapsed := time.Since(startTime)
		if elapsed > maxWait {
			l.mu.Unlock()
			return nil, fmt.Errorf("rate limit acquisition timeout after %v (requested %d tokens, provider %s, caller %s)",
				elapsed.Round(time.Second), tokens, l.provider, callerID)
		}

		if firstAttempt {
			if !hasTokens {
				l.tokenLimitHits++
				logx.Infof("ratelimit: %s token limit hit, waiting for refill (need %d, have %d, caller %s)",
					l.provider, tokens, l.availableTokens, callerID)
			}
			if !hasSlot {
				l.concurrencyHits++
				logx.Infof("ratelimit: %s concurrency limit hit (active %d/%d, caller %s)",
					l.provider, l.activeRequests, l.maxConcurrency, callerID)
			}
			firstAttempt = false
		}

		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // context error propagated as-is
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *TokenBucketLimiter) release(acq *acquisition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, a := range l.acquisitions {
		if a == acq {
			l.acquisitions = append(l.acquisitions[:i], l.acquisitions[i+1:]...)
			break
		}
	}
	l.activeRequests--
}

func (l *TokenBucketLimiter) cleanStaleAcquisitions() {
	now := time.Now()
	cleaned := 0

	valid := make([]*acquisition, 0, len(l.acquisitions))
	for _, acq := range l.acquisitions {
		if now.Sub(acq.timestamp) > l.releaseTimeout {
			cleaned++
			l.activeRequests--
			logx.Errorf("ratelimit: force-released stale slot after %v (provider %s, caller %s)",
				l.releaseTimeout, l.provider, acq.callerID)
		} else {
			valid = append(valid, acq)
		}
	}
	l.acquisitions = valid

	if cleaned > 0 {
		logx.Warnf("ratelimit: cleaned %d stale slots for provider %s", cleaned, l.provider)
	}
}

func (l *TokenBucketLimiter) startRefillTimer(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
}

// GetStats returns a snapshot of the limiter's internal counters.
func (l *TokenBucketLimiter) GetStats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Provider:            l.provider,
		AvailableTokens:     l.availableTokens,
		MaxCapacity:         l.maxCapacity,
		ActiveRequests:      l.activeRequests,
		MaxConcurrency:      l.maxConcurrency,
		TokenLimitHits:      l.tokenLimitHits,
		ConcurrencyHits:     l.concurrencyHits,
		TrackedAcquisitions: len(l.acquisitions),
	}
}

// ProviderLimiterMap holds one limiter per provider.
type ProviderLimiterMap struct {
	limiters map[string]*TokenBucketLimiter
	cancel   context.CancelFunc
}

// NewProviderLimiterMap builds limiters from a per-provider config map and
// starts their refill timers.
func NewProviderLimiterMap(ctx context.Context, configs map[string]Config, requestTimeout time.Duration) *ProviderLimiterMap {
	ctx, cancel := context.WithCancel(ctx)

	limiters := make(map[string]*TokenBucketLimiter, len(configs))
	for provider, cfg := range configs {
		limiter := NewTokenBucketLimiter(provider, cfg, requestTimeout)
		limiter.startRefillTimer(ctx)
		limiters[provider] = limiter
	}

	return &ProviderLimiterMap{limiters: limiters, cancel: cancel}
}

// Stop cancels all refill timers.
func (p *ProviderLimiterMap) Stop() {
	p.cancel()
}

// GetLimiter returns the limiter for the provider that serves modelName.
func (p *ProviderLimiterMap) GetLimiter(modelName string) (Limiter, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("cannot determine provider for model %s: %w", modelName, err)
	}

	limiter, exists := p.limiters[provider]
	if !exists {
		return nil, fmt.Errorf("no rate limiter configured for provider %s", provider)
	}
	return limiter, nil
}

// GetAllStats returns statistics for every configured provider limiter.
func (p *ProviderLimiterMap) GetAllStats() map[string]LimiterStats {
	stats := make(map[string]LimiterStats, len(p.limiters))
	for provider, limiter := range p.limiters {
		stats[provider] = limiter.GetStats()
	}
	return stats
}
