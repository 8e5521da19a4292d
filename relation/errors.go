package relation

import "errors"

var (
	// ErrUnknownRelation is returned when a requested relation name is not
	// declared on the parents' type
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrMixedParentTypes is returned when one load call receives parents
	// of different record types
	ErrMixedParentTypes = errors.New("parents must share one record type")

	// ErrInvalidBatchSize is returned for a batched load with a
	// non-positive batch size
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)
