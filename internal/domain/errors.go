package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	ErrAccountNotReady = errors.New("account is not ready")
	ErrBatchInProgress = errors.New("batch already in progress")

	// ErrGroupCapacity aborts the current batch; the ledger is left untouched.
	ErrGroupCapacity = errors.New("group capacity fault")
	ErrLedgerIO      = errors.New("ledger io fault")
	ErrOutcomeLogIO  = errors.New("outcome log io fault")
)
