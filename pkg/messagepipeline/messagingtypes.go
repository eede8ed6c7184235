package messagepipeline

import (
	"time"
)

// Message is the canonical, internal representation of a delivery flowing
// through the pipeline. It carries the raw payload, delivery metadata and the
// acknowledgment handles supplied by the transport.
type Message struct {
	// MessageData contains the payload and publish metadata.
	MessageData

	// Attributes holds the origin attributes set by the publisher
	// (e.g. the originating "kafka.timestamp" of a ZTF alert).
	Attributes map[string]string

	// DeliveryAttempt is the transport's delivery counter, when it keeps one.
	DeliveryAttempt *int

	// Ack signals that processing succeeded and the message can permanently
	// leave the subscription.
	Ack func()

	// Nack signals that processing failed and the message should become
	// eligible for redelivery.
	Nack func()
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the unique identifier assigned by the broker.
	ID string `json:"id"`

	// Payload is the raw byte content of the message.
	Payload []byte `json:"payload"`

	// PublishTime is the timestamp when the message was originally published.
	PublishTime time.Time `json:"publishTime"`
}
