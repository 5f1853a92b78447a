package session

import (
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodePermissionDenied  = "SESSION_PERMISSION_DENIED"
	TextCodeStoreTornDown     = "SESSION_STORE_TORN_DOWN"
	TextCodeNoIdentity        = "SESSION_NO_IDENTITY"
	TextCodeRecoveryTerminal  = "SESSION_RECOVERY_TERMINAL"
	TextCodeRecoveryExhausted = "SESSION_RECOVERY_EXHAUSTED"
	TextCodeRecoveryThrottled = "SESSION_RECOVERY_THROTTLED"
)

// ErrPermissionDenied is returned when an authorization check fails.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied)

// ErrStoreTornDown is returned for operations against a torn-down store.
var ErrStoreTornDown = goerrors.New("session store is torn down", goerrors.CategoryConflict).
	WithTextCode(TextCodeStoreTornDown).
	WithCode(goerrors.CodeConflict)

// ErrNoIdentity is returned when an operation requires a signed-in identity.
var ErrNoIdentity = goerrors.New("no current identity", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoIdentity)

// ErrRecoveryThrottled is returned when a recovery email was already sent for
// the account inside the cooldown window.
var ErrRecoveryThrottled = goerrors.New("recovery email recently sent", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRecoveryThrottled)

// IsProfileNotFound checks whether a ProfileStore error means the document
// does not exist, which is part of the expected first-sign-in flow.
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	if repository.IsRecordNotFound(err) {
		return true
	}
	return goerrors.IsNotFound(err)
}

// IsUserNotFoundError checks for the provider's unknown-account condition.
func IsUserNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if richErr, ok := asRichError(err); ok && richErr.Category == goerrors.CategoryNotFound {
		return true
	}
	return strings.Contains(err.Error(), "user-not-found")
}

// IsInvalidEmailError checks for the provider's malformed-address condition.
func IsInvalidEmailError(err error) bool {
	if err == nil {
		return false
	}
	if richErr, ok := asRichError(err); ok {
		switch richErr.Category {
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			return true
		}
	}
	return strings.Contains(err.Error(), "invalid-email")
}

// IsRateLimitedError checks for the provider's throttling condition.
func IsRateLimitedError(err error) bool {
	if err == nil {
		return false
	}
	if richErr, ok := asRichError(err); ok && richErr.Category == goerrors.CategoryRateLimit {
		return true
	}
	return strings.Contains(err.Error(), "too-many-requests")
}

func asRichError(err error) (*goerrors.Error, bool) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr, true
	}
	return nil, false
}

// RecoveryErrorClassifier marks provider-reported unknown-account, malformed
// input, and throttling conditions terminal; everything else (connectivity,
// transient service failures) is retryable.
func RecoveryErrorClassifier(err error) Classification {
	if IsUserNotFoundError(err) || IsInvalidEmailError(err) || IsRateLimitedError(err) {
		return Classification{Terminal: true}
	}
	return Classification{}
}

// NewTerminalRecoveryError wraps a terminal account-recovery failure so
// callers can surface a specific, actionable message.
func NewTerminalRecoveryError(err error, message string) *goerrors.Error {
	category := goerrors.CategoryExternal
	switch {
	case IsUserNotFoundError(err):
		category = goerrors.CategoryNotFound
	case IsInvalidEmailError(err):
		category = goerrors.CategoryBadInput
	case IsRateLimitedError(err):
		category = goerrors.CategoryRateLimit
	}
	return goerrors.Wrap(err, category, message).WithTextCode(TextCodeRecoveryTerminal)
}

// NewExhaustedRecoveryError wraps the last transient failure once the retry
// budget is spent, preserving the underlying error for diagnostics.
func NewExhaustedRecoveryError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithTextCode(TextCodeRecoveryExhausted)
}
