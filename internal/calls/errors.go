package calls

import "errors"

var (
	ErrNotFound          = errors.New("calls: not found")
	ErrValidation        = errors.New("calls: validation failed")
	ErrStaleState        = errors.New("calls: record status changed concurrently")
	ErrInvalidTransition = errors.New("calls: invalid status transition")
	ErrDuplicateCallID   = errors.New("calls: call_id already in flight")

	// ErrTranscriptAlreadyReceived rejects a second webhook delivery for a record
	// that has already moved past CALLING.
	ErrTranscriptAlreadyReceived = errors.New("calls: transcript already received")
)
