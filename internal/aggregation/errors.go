package aggregation

import "errors"

var (
	// ErrInvalidRecordKind means the caller mapped an event to an unknown record kind.
	ErrInvalidRecordKind = errors.New("invalid record kind")
	// ErrInvalidDelta means the caller sent a delta other than +1 or -1.
	ErrInvalidDelta = errors.New("invalid delta")
)
