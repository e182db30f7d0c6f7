package models

import "errors"

var (
	// ErrValidation marks malformed input rejected before any state change
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown order, payment, firm or transaction
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost claim race or a transition from the wrong state
	ErrConflict = errors.New("conflict")
	// ErrAmountMismatch marks a provider-reported amount that differs from the ledger
	ErrAmountMismatch = errors.New("amount mismatch")
	// ErrStaleTransition is returned by the store when a conditional update
	// matched no row because the current state is not the expected one.
	ErrStaleTransition = errors.New("stale transition")
)
