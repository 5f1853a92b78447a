package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultExecutorMaxAttempts    = 3
	defaultExecutorInitialBackoff = 2 * time.Second
	defaultExecutorMaxBackoff     = 30 * time.Second
)

// Classification is the classifier's verdict on a failed attempt.
type Classification struct {
	Terminal bool
}

// ErrorClassifier decides whether a failed attempt is worth retrying.
type ErrorClassifier func(err error) Classification

// BackoffScheduler computes the wait before the next attempt.
type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoffScheduler doubles the delay each attempt up to Max.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultExecutorInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultExecutorMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// ExecuteResult reports how an execution concluded.
type ExecuteResult struct {
	Attempts int
}

// RetryExecutor runs fallible operations with classifier-aware retries. It
// is stateless and safe for concurrent use.
type RetryExecutor struct {
	maxAttempts int
	scheduler   BackoffScheduler
	logger      Logger
	provider    LoggerProvider
}

// ExecutorOption customizes executor construction.
type ExecutorOption func(*RetryExecutor)

// WithExecutorMaxAttempts overrides the default attempt budget.
func WithExecutorMaxAttempts(attempts int) ExecutorOption {
	return func(e *RetryExecutor) {
		if attempts > 0 {
			e.maxAttempts = attempts
		}
	}
}

// WithExecutorBackoffScheduler overrides the backoff schedule (useful for
// tests and callers with tighter latency budgets).
func WithExecutorBackoffScheduler(scheduler BackoffScheduler) ExecutorOption {
	return func(e *RetryExecutor) {
		if scheduler != nil {
			e.scheduler = scheduler
		}
	}
}

// WithExecutorLogger overrides the logger.
func WithExecutorLogger(logger Logger) ExecutorOption {
	return func(e *RetryExecutor) {
		e.provider, e.logger = ResolveLogger("session.executor", e.provider, logger)
	}
}

// NewRetryExecutor creates an executor with exponential backoff defaults.
func NewRetryExecutor(opts ...ExecutorOption) *RetryExecutor {
	provider, logger := ResolveLogger("session.executor", nil, nil)
	executor := &RetryExecutor{
		maxAttempts: defaultExecutorMaxAttempts,
		scheduler: ExponentialBackoffScheduler{
			Initial: defaultExecutorInitialBackoff,
			Max:     defaultExecutorMaxBackoff,
		},
		logger:   logger,
		provider: provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(executor)
		}
	}

	return executor
}

// Execute runs operation until it succeeds, the classifier marks a failure
// terminal, the attempt budget is spent, or ctx is cancelled. The last error
// is returned unwrapped so callers keep the underlying diagnostics. A nil
// classifier treats every failure as retryable.
func (e *RetryExecutor) Execute(ctx context.Context, operation func(ctx context.Context) error, classify ErrorClassifier) (ExecuteResult, error) {
	if operation == nil {
		return ExecuteResult{}, goerrors.New("executor operation is required", goerrors.CategoryBadInput)
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return ExecuteResult{Attempts: attempt}, nil
		}
		lastErr = err

		if classify != nil && classify(err).Terminal {
			e.logger.Debug("terminal failure, not retrying", "attempt", attempt, "error", err)
			return ExecuteResult{Attempts: attempt}, err
		}
		if attempt == e.maxAttempts {
			break
		}

		delay := e.scheduler.NextDelay(attempt)
		e.logger.Debug("retrying after backoff", "attempt", attempt, "delay", delay, "error", err)
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			// cancelled mid-backoff: no further attempts are scheduled
			return ExecuteResult{Attempts: attempt}, goerrors.Wrap(waitErr, goerrors.CategoryOperation, "retry wait cancelled")
		}
	}

	return ExecuteResult{Attempts: e.maxAttempts}, lastErr
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
