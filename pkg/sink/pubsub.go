package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// Publisher is the part of messagepipeline.GooglePubsubProducer the sink uses.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error)
	Stop(ctx context.Context) error
}

// PubsubSink republishes each record as JSON to another topic, so downstream
// consumers see only the alerts a run accepted.
type PubsubSink struct {
	publisher Publisher
	keyField  string
	logger    zerolog.Logger
}

// NewPubsubSink creates a sink around publisher. When keyField is set, its
// value is copied to a same-named message attribute.
func NewPubsubSink(publisher Publisher, keyField string, logger zerolog.Logger) *PubsubSink {
	return &PubsubSink{
		publisher: publisher,
		keyField:  keyField,
		logger:    logger.With().Str("component", "PubsubSink").Logger(),
	}
}

// Save publishes rec and waits for the broker's confirmation.
func (s *PubsubSink) Save(ctx context.Context, rec types.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record for publishing: %w", err)
	}
	var attrs map[string]string
	if s.keyField != "" {
		if v, ok := rec[s.keyField]; ok && v != nil {
			attrs = map[string]string{s.keyField: formatKey(v)}
		}
	}
	msgID, err := s.publisher.Publish(ctx, payload, attrs)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("pubsub_msg_id", msgID).Msg("Republished record.")
	return nil
}

func (s *PubsubSink) Name() string { return "pubsub" }

// Close flushes and stops the publisher.
func (s *PubsubSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.publisher.Stop(ctx)
}
