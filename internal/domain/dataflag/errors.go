package dataflag

import "errors"

var (
	ErrInvalidDecision  = errors.New("invalid decision")
	ErrInvalidMetadata  = errors.New("invalid metadata")
	ErrInvalidTimeRange = errors.New("finish time before start time")
	ErrUnknownInstrument = errors.New("unknown instrument")
)
