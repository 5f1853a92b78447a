package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ResendVerificationMessage struct {
	Identity   *Identity `json:"identity" doc:"Identity to verify."`
	OnResponse func(resp *ResendVerificationResponse)
}

func (m ResendVerificationMessage) Type() string { return "session.verification_request" }

type ResendVerificationResponse struct {
	Attempts int
	Success  bool
}

// ResendVerificationHandler asks the provider to resend the verification
// email for a signed-in identity, retrying transient failures.
type ResendVerificationHandler struct {
	identities IdentityProvider
	executor   *RetryExecutor
	classify   ErrorClassifier
}

// NewResendVerificationHandler builds the handler against the provider.
func NewResendVerificationHandler(identities IdentityProvider, executor *RetryExecutor) *ResendVerificationHandler {
	if executor == nil {
		executor = NewRetryExecutor()
	}
	return &ResendVerificationHandler{
		identities: identities,
		executor:   executor,
		classify:   RecoveryErrorClassifier,
	}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	if event.Identity == nil {
		return ErrNoIdentity
	}
	if event.Identity.EmailVerified {
		// already verified, nothing to send
		if event.OnResponse != nil {
			event.OnResponse(&ResendVerificationResponse{Success: true})
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	result, err := h.executor.Execute(ctx, func(ctx context.Context) error {
		return h.identities.SendVerificationEmail(ctx, event.Identity)
	}, h.classify)

	if err != nil {
		if h.classify(err).Terminal {
			return NewTerminalRecoveryError(err, "verification request rejected by provider")
		}
		return NewExhaustedRecoveryError(err, "verification request failed after retries")
	}

	if event.OnResponse != nil {
		event.OnResponse(&ResendVerificationResponse{Attempts: result.Attempts, Success: true})
	}

	return nil
}
