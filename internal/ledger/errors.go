package ledger

import "errors"

var (
	// ErrInsufficientBalance is returned when a debit or reservation would
	// take a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyClaimed is returned when a deposit claim targets a record
	// that is no longer pending.
	ErrAlreadyClaimed = errors.New("deposit already claimed or cancelled")

	// ErrAlreadyProcessed is returned when an action expects a withdrawal
	// in pending status and finds it already transitioned.
	ErrAlreadyProcessed = errors.New("withdrawal already processed")

	// ErrInvalidStateTransition is returned when a withdrawal status change
	// does not follow the legal state machine.
	ErrInvalidStateTransition = errors.New("invalid withdrawal state transition")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)
