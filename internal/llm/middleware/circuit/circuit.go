// Package circuit provides circuit breaker middleware for provider clients.
package circuit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orchestrator/internal/config"
	"orchestrator/internal/llm"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines circuit breaker behavior.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// Error is returned when a request is rejected because the circuit is open.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker is the interface implemented by circuit breaker instances.
type Breaker interface {
	Allow() bool
	Record(success bool)
	GetState() State
	Reset()
}

type breaker struct {
	mu              sync.RWMutex
	config          Config
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a circuit breaker with the given configuration.
func New(cfg Config) Breaker {
	return &breaker{config: cfg, state: Closed}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.lastFailureTime) >= b.config.Timeout {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}
	case HalfOpen:
		b.state = Open
		b.successCount = 0
	}
}

// Middleware wraps a provider client with circuit breaker logic. Requests are
// rejected immediately while the circuit is open, preventing cascading
// failures and credit waste on a downstream outage.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err //nolint:wrapcheck // middleware passes through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)
				return ch, err //nolint:wrapcheck // middleware passes through errors unchanged
			},
			func() config.Model { return next.GetDefaultConfig() },
			func() string { return next.GetModelName() },
		)
	}
}
