package storage

import "errors"

// Errors shared by the tick and trade record stores.
var (
	// ErrNotFound means no trade record has the requested trade_id.
	ErrNotFound = errors.New("trade record not found")

	// ErrDuplicateKey is returned when a tick timestamp is already stored
	// for its series, or a trade_id is already recorded. Neither store
	// overwrites; the whole batch is rejected.
	ErrDuplicateKey = errors.New("duplicate tick timestamp or trade id")

	// ErrInvalidInput marks a tick or trade record missing a required field.
	ErrInvalidInput = errors.New("invalid store input")
)
