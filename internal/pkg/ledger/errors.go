package ledger

import (
	"errors"
	"fmt"
)

// ErrUnknownPool is returned when a caller references a pool that is not part
// of the credit model.
var ErrUnknownPool = errors.New("unknown credit pool")

// ErrInvalidAmount is returned for zero or negative mutation amounts.
var ErrInvalidAmount = errors.New("amount must be a positive integer")

// InsufficientCreditsError is the expected business outcome of a deduction
// against a balance smaller than the requested amount. It is not logged as an
// error; callers branch on it and surface required/available to the client.
type InsufficientCreditsError struct {
	Pool      string
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits in pool %q: required %d, available %d", e.Pool, e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// outcome and returns the typed error when it is.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
