package session

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type RequestPasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *RequestPasswordResetResponse)
}

func (p RequestPasswordResetMessage) Type() string { return "session.password_reset_request" }

// ResetCoolDownPeriod is the window in which repeat reset requests for the
// same account are refused. We only throttle when an audit repository is
// configured; without one there is no record of the previous send.
var ResetCoolDownPeriod = "1m"

type RequestPasswordResetResponse struct {
	Request  *RecoveryRequest
	Attempts int
	Success  bool
}

// RequestPasswordResetHandler asks the identity provider to send a reset
// email, retrying transient failures through the executor. Unknown accounts,
// malformed addresses, and throttling are terminal and surfaced immediately
// with a specific error; transient failures surface only once the retry
// budget is spent.
type RequestPasswordResetHandler struct {
	identities IdentityProvider
	executor   *RetryExecutor
	repo       RepositoryManager
	cooldown   string
	classify   ErrorClassifier
	activity   ActivitySink
	logger     Logger
	provider   LoggerProvider
}

// ResetHandlerOption customizes handler construction.
type ResetHandlerOption func(*RequestPasswordResetHandler)

// WithResetExecutor overrides the retry executor.
func WithResetExecutor(executor *RetryExecutor) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		if executor != nil {
			h.executor = executor
		}
	}
}

// WithResetRepository attaches the repository manager used to persist
// recovery audit records. Without it the handler still works, just unaudited.
func WithResetRepository(repo RepositoryManager) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		h.repo = repo
	}
}

// WithResetCoolDown overrides the repeat-request cooldown window.
func WithResetCoolDown(pattern string) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		if pattern != "" {
			h.cooldown = pattern
		}
	}
}

// WithResetClassifier overrides the error classifier.
func WithResetClassifier(classify ErrorClassifier) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		if classify != nil {
			h.classify = classify
		}
	}
}

// WithResetActivitySink sets the ActivitySink used to publish recovery events.
func WithResetActivitySink(sink ActivitySink) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		h.activity = normalizeActivitySink(sink)
	}
}

// WithResetLogger overrides the logger.
func WithResetLogger(logger Logger) ResetHandlerOption {
	return func(h *RequestPasswordResetHandler) {
		h.provider, h.logger = ResolveLogger("session.password_reset", h.provider, logger)
	}
}

// NewRequestPasswordResetHandler builds the handler against the provider.
func NewRequestPasswordResetHandler(identities IdentityProvider, opts ...ResetHandlerOption) *RequestPasswordResetHandler {
	provider, logger := ResolveLogger("session.password_reset", nil, nil)
	handler := &RequestPasswordResetHandler{
		identities: identities,
		executor:   NewRetryExecutor(),
		cooldown:   ResetCoolDownPeriod,
		classify:   RecoveryErrorClassifier,
		activity:   noopActivitySink{},
		logger:     logger,
		provider:   provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	resp := &RequestPasswordResetResponse{}

	// generous enough for the full backoff budget (2s + 4s waits)
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	if err := validation.Validate(event.Email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid password reset email").
			WithMetadata(map[string]any{"email": event.Email})
	}

	if err := h.checkCoolDown(ctx, event.Email); err != nil {
		return err
	}

	record := h.createAuditRecord(ctx, event.Email)

	result, err := h.executor.Execute(ctx, func(ctx context.Context) error {
		return h.identities.SendPasswordResetEmail(ctx, event.Email)
	}, h.classify)
	resp.Attempts = result.Attempts

	if err != nil {
		h.markAuditRecord(ctx, record, RecoveryFailedStatus, result.Attempts, err)
		if h.classify(err).Terminal {
			return NewTerminalRecoveryError(err, "password reset request rejected by provider")
		}
		return NewExhaustedRecoveryError(err, "password reset request failed after retries")
	}

	h.markAuditRecord(ctx, record, RecoveryDeliveredStatus, result.Attempts, nil)

	h.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRecoveryRequested,
		Metadata: map[string]any{
			"email":    event.Email,
			"attempts": result.Attempts,
		},
	})

	resp.Request = record
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// checkCoolDown refuses a repeat request when the last audit record for the
// email shows a delivery inside the cooldown window. Audit read failures do
// not block the reset; the cooldown is best effort.
func (h *RequestPasswordResetHandler) checkCoolDown(ctx context.Context, email string) error {
	if h.repo == nil {
		return nil
	}

	last, err := h.repo.RecoveryRequests().GetByIdentifier(ctx, email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			h.logger.Warn("failed to read recovery audit record", "email", email, "error", err)
		}
		return nil
	}
	if last.Status != RecoveryDeliveredStatus || last.DeliveredAt == nil {
		return nil
	}

	recent, err := IsWithinThresholdPeriod(*last.DeliveredAt, h.cooldown)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate reset cooldown")
	}
	if recent {
		return ErrRecoveryThrottled.WithMetadata(map[string]any{"email": email})
	}

	return nil
}

func (h *RequestPasswordResetHandler) createAuditRecord(ctx context.Context, email string) *RecoveryRequest {
	if h.repo == nil {
		return nil
	}

	record := &RecoveryRequest{
		Email:  email,
		Status: RecoveryRequestedStatus,
	}
	created, err := h.repo.RecoveryRequests().Create(ctx, record)
	if err != nil {
		h.logger.Warn("failed to create recovery audit record", "email", email, "error", err)
		return nil
	}
	return created
}

func (h *RequestPasswordResetHandler) markAuditRecord(ctx context.Context, record *RecoveryRequest, status string, attempts int, cause error) {
	if h.repo == nil || record == nil {
		return
	}

	record.Status = status
	record.Attempts = attempts
	if cause != nil {
		record.LastError = cause.Error()
	}
	if status == RecoveryDeliveredStatus {
		now := time.Now()
		record.DeliveredAt = &now
	}

	if _, err := h.repo.RecoveryRequests().Upsert(ctx, record, repository.UpdateSkipZeroValues()); err != nil {
		h.logger.Warn("failed to update recovery audit record", "id", record.ID, "error", err)
	}
}

func (h *RequestPasswordResetHandler) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	sink := normalizeActivitySink(h.activity)
	if err := sink.Record(ctx, event); err != nil {
		h.logger.Warn("password reset activity sink error", "error", err)
	}
}
