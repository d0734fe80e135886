package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/lifecycle/internal/logging"
	"github.com/aristath/lifecycle/internal/scheduler"
)

// RetryConfig holds the backoff defaults for tasks that opt into retries.
// A task's own RetryPolicy intervals take precedence when set.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 5s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 1min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerConfig configures the per-task circuit breakers.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures uint32        // Failures that trip the breaker (default 3)
	OpenTimeout         time.Duration // Time spent open before a trial call (default 30s)
}

// DefaultBreakerConfig returns the default breaker configuration (disabled).
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         30 * time.Second,
	}
}

// CircuitBreakerRegistry manages one circuit breaker per task name, so a task
// that keeps failing across activations fails fast.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	log      *logging.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(cfg BreakerConfig, log *logging.Logger) *CircuitBreakerRegistry {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = logging.Component("breaker")
	}
	return &CircuitBreakerRegistry{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given task, creating it on first use.
func (r *CircuitBreakerRegistry) Get(task string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[task]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        task,
		MaxRequests: 1, // One trial initialize in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.WarnCtx("circuit breaker state change", map[string]any{
				"task": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
		IsSuccessful: func(err error) bool {
			// Host cancellation is not the task's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	r.breakers[task] = cb
	return cb
}

// State reports the breaker state of a task, or closed if it has none yet.
func (r *CircuitBreakerRegistry) State(task string) gobreaker.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[task]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// resilientInvoker wraps a single initialize attempt with the task's retry
// policy and, when enabled, its circuit breaker.
type resilientInvoker struct {
	retry    RetryConfig
	breakers *CircuitBreakerRegistry // nil disables breakers
}

func (ri *resilientInvoker) invoke(ctx context.Context, task *scheduler.Task, call func(context.Context) error) error {
	attempt := func() error {
		if ri.breakers == nil {
			return call(ctx)
		}
		_, err := ri.breakers.Get(task.Name).Execute(func() (interface{}, error) {
			return nil, call(ctx)
		})
		return err
	}

	if task.Retry == nil || task.Retry.MaxAttempts <= 1 {
		return attempt()
	}

	operation := func() error {
		// Check context first - fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		err := attempt()
		if err == nil {
			return nil
		}
		// Circuit is open - don't retry
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = pick(task.Retry.InitialInterval, ri.retry.InitialInterval)
	policy.MaxInterval = pick(task.Retry.MaxInterval, ri.retry.MaxInterval)
	policy.MaxElapsedTime = ri.retry.MaxElapsedTime
	if ri.retry.Multiplier > 0 {
		policy.Multiplier = ri.retry.Multiplier
	}
	policy.RandomizationFactor = ri.retry.RandomizationFactor

	b := backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(task.Retry.MaxAttempts-1))
	return backoff.Retry(operation, b)
}

func pick(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
