package service

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrRateLimitExceeded  = errors.New("order rate limit exceeded")

	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineBusy       = errors.New("engine inbox is full")
	ErrCommandTimeout   = errors.New("command timed out")
	ErrEngineStopped    = errors.New("engine stopped")
)

// IsRetryable reports whether the caller may resubmit the same command later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrEngineBusy) ||
		errors.Is(err, ErrCommandTimeout) ||
		errors.Is(err, ErrRateLimitExceeded)
}
