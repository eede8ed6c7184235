package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the contracts between the streaming controller and the
// transport that delivers messages to it.
// ====================================================================================

// MessageConsumer defines the interface for a message source (e.g. a Pub/Sub
// streaming pull). It delivers messages on a channel and hides the transport's
// own internal concurrency behind it.
type MessageConsumer interface {
	// Messages returns a read-only channel of deliveries. It is closed once the
	// consumer has shut down and no further messages will arrive.
	Messages() <-chan Message
	// Start begins the consumption process (e.g. by calling subscription.Receive).
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
	// Err reports why the consumer stopped, or nil after a requested stop.
	Err() error
}

// FlowControl bounds how much a consumer may pull ahead of processing.
type FlowControl struct {
	// MaxOutstandingMessages is the maximum number of delivered but not yet
	// acknowledged messages (the backlog).
	MaxOutstandingMessages int
}

// ConsumerSource opens consumers against a single subscription. A fresh
// consumer is opened per run so each run carries its own flow control.
type ConsumerSource interface {
	NewConsumer(ctx context.Context, flow FlowControl) (MessageConsumer, error)
}
