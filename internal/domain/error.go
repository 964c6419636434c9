package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrFilmNotFound       = errors.New("film not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyHasAccess   = errors.New("user already has access to this film")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidPrice       = errors.New("invalid transaction type or price")
	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrAllProvidersFailed = errors.New("all payment providers failed")
	ErrAmountMismatch     = errors.New("verified amount does not match transaction")
	ErrAlreadySettled     = errors.New("transaction already settled")
	ErrNotOwner           = errors.New("transaction does not belong to caller")
	ErrSettlementLocked   = errors.New("transaction settlement in progress")
	ErrRateLimited        = errors.New("too many requests")

	// Store-layer errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)
