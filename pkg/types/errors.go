package types

import "errors"

// Sentinel errors shared by every component. Callers wrap them with context
// using fmt.Errorf("...: %w", ErrX) and test for them with errors.Is.
var (
	// ErrConfiguration is returned for an invalid stop configuration or when a
	// subscription cannot be provisioned. It is fatal to the call that returns it.
	ErrConfiguration = errors.New("configuration error")

	// ErrDecode marks a malformed payload or a projection that asked for a field
	// the record does not have. It is handled per message with a Nack.
	ErrDecode = errors.New("decode error")

	// ErrCallback marks a failure (error or panic) in caller-supplied processing
	// logic. It is handled per message with a Nack.
	ErrCallback = errors.New("callback error")

	// ErrTransport marks a failure of the underlying pull, ack or subscription
	// management calls. It is surfaced to the caller without retry.
	ErrTransport = errors.New("transport error")
)
