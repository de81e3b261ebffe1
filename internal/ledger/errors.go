package ledger

import "errors"

var (
	ErrSignalNotFound       = errors.New("ledger: signal not found")
	ErrSignalNotYetResolved = errors.New("ledger: signal not yet resolved")
	ErrAlreadyCorrected     = errors.New("ledger: signal already manually corrected")
	ErrReasonRequired       = errors.New("ledger: correction reason is required")
	ErrInvalidSignal        = errors.New("ledger: invalid signal")
	// ErrLedgerConflict is returned once conflict retries are exhausted.
	ErrLedgerConflict = errors.New("ledger: conflict retries exhausted")
)
