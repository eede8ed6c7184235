package streampull

import (
	"context"

	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// DefaultMetadataKey is the record key delivery metadata is nested under.
const DefaultMetadataKey = "metadata"

// Decoder turns a payload into a record.
type Decoder interface {
	Decode(payload []byte) (types.Record, error)
}

// Sink persists an accepted record before its message is acknowledged.
type Sink interface {
	Save(ctx context.Context, rec types.Record) error
}

// Callback is caller-supplied processing logic. params carries the caller's
// keyword context unchanged. A returned error is treated like a panic: the
// message is nacked and the run continues.
type Callback func(ctx context.Context, rec types.Record, params map[string]interface{}) (CallbackResult, error)

// CallbackResult is the disposition a Callback chose for one message.
//
// Ack false nacks the message. With Ack true, Exclude acknowledges the message
// without counting it or collecting it; otherwise the message counts, and a nil
// Result stands for the record the callback was given.
type CallbackResult struct {
	Ack     bool
	Result  types.Record
	Exclude bool
}

// Accept acknowledges and counts the message, reporting rec as its result.
// A nil rec reports the record handed to the callback.
func Accept(rec types.Record) CallbackResult {
	return CallbackResult{Ack: true, Result: rec}
}

// Exclude acknowledges the message without counting or collecting it.
func Exclude() CallbackResult {
	return CallbackResult{Ack: true, Exclude: true}
}

// Reject nacks the message.
func Reject() CallbackResult {
	return CallbackResult{}
}

// Hooks parameterise the per-message pipeline. Every field is optional.
type Hooks struct {
	// Decoder defaults to JSON/Avro auto-detection.
	Decoder Decoder
	// Fields, when non-empty, projects each decoded record.
	Fields types.FieldSpec
	// Metadata whitelists delivery metadata attached under MetadataKey.
	Metadata    []string
	MetadataKey string
	Callback    Callback
	Params      map[string]interface{}
	// Sink saves each counted record before its message is acknowledged.
	Sink Sink
	// Collect keeps counted records in the Result.
	Collect bool
}
