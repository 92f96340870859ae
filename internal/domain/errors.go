package domain

import "errors"

var (
	// ErrInvalidShares is returned for a zero share count. Rejected before any mutation.
	ErrInvalidShares = errors.New("share count must be positive")

	// ErrInvalidTarget is returned for a non-positive target price or horizon.
	ErrInvalidTarget = errors.New("invalid regulation target")

	// ErrInsufficientFunds is returned when cash plus demand deposits cannot cover a buy.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings is returned when a sell exceeds the held share count.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrHoldingCapExceeded is returned when a buy would push held+frozen shares past the cap.
	ErrHoldingCapExceeded = errors.New("holding cap exceeded")

	// ErrUnknownOverride is returned for an unrecognized market override value.
	ErrUnknownOverride = errors.New("unknown market override")
)

// PaymentError reports an external ledger leg that failed mid-payment.
// Any already-applied leg has been rolled back by the time it is returned.
type PaymentError struct {
	Leg string // "cash", "demand", "credit"
	Err error
}

func (e *PaymentError) Error() string {
	if e.Err == nil {
		return "payment failed on " + e.Leg + " leg"
	}
	return "payment failed on " + e.Leg + " leg: " + e.Err.Error()
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// ValidationError wraps a rejected input with the field that failed.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
