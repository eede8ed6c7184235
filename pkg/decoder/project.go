package decoder

import (
	"fmt"
	"strconv"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// Metadata keys available to ExtractMetadata besides origin attribute names.
const (
	MetaMessageID       = "message_id"
	MetaPublishTime     = "publish_time"
	MetaDeliveryAttempt = "delivery_attempt"
)

// DefaultMetadataKeys keeps the broker identifiers and the originating Kafka
// timestamp that ZTF alerts carry as an attribute.
var DefaultMetadataKeys = []string{MetaMessageID, MetaPublishTime, "kafka.timestamp"}

// Project reduces rec to the fields named by spec. Top-level fields are copied
// from the root; fields of any other group are read from the same-named nested
// group and flattened into the result. A missing field is a decode error.
func Project(rec types.Record, spec types.FieldSpec) (types.Record, error) {
	out := make(types.Record)
	for _, group := range spec.Groups() {
		fields := spec[group]
		src := rec
		if !types.IsTopLevel(group) {
			g, ok := rec.Group(group)
			if !ok {
				return nil, fmt.Errorf("%w: group %q missing or not a map", types.ErrDecode, group)
			}
			src = g
		}
		for _, f := range fields {
			v, ok := src[f]
			if !ok {
				return nil, fmt.Errorf("%w: field %q missing from group %q", types.ErrDecode, f, group)
			}
			out[f] = v
		}
	}
	return out, nil
}

// ExtractMetadata returns the whitelisted delivery metadata of msg. Every value
// is a string so records stay portable across storage backends. Keys that are
// neither known metadata nor present attributes are omitted.
func ExtractMetadata(msg messagepipeline.Message, whitelist []string) map[string]string {
	md := make(map[string]string, len(whitelist))
	for _, key := range whitelist {
		switch key {
		case MetaMessageID:
			md[key] = msg.ID
		case MetaPublishTime:
			md[key] = msg.PublishTime.UTC().Format(time.RFC3339Nano)
		case MetaDeliveryAttempt:
			if msg.DeliveryAttempt != nil {
				md[key] = strconv.Itoa(*msg.DeliveryAttempt)
			}
		default:
			if v, ok := msg.Attributes[key]; ok {
				md[key] = v
			}
		}
	}
	return md
}
