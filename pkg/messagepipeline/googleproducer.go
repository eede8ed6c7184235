package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// GooglePubsubProducerConfig holds configuration for the Google Pub/Sub producer.
type GooglePubsubProducerConfig struct {
	TopicID    string
	BatchSize  int           // Corresponds to Pub/Sub's CountThreshold.
	BatchDelay time.Duration // Corresponds to Pub/Sub's DelayThreshold.

	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// NewGooglePubsubProducerDefaults provides a config with sensible defaults. A
// record is published as soon as it is handed over, since the caller waits for
// the confirmation before acknowledging its own message.
func NewGooglePubsubProducerDefaults(topicID string) *GooglePubsubProducerConfig {
	return &GooglePubsubProducerConfig{
		TopicID:                    topicID,
		BatchSize:                  1,
		BatchDelay:                 10 * time.Millisecond,
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// GooglePubsubProducer publishes payloads to a topic and waits for the broker
// to confirm each one.
type GooglePubsubProducer struct {
	topic                      *pubsub.Topic
	logger                     zerolog.Logger
	publishConfirmationTimeout time.Duration
}

// NewGooglePubsubProducer creates a producer. It validates the topic's
// existence before returning.
func NewGooglePubsubProducer(
	ctx context.Context,
	cfg *GooglePubsubProducerConfig,
	client *pubsub.Client,
	logger zerolog.Logger,
) (*GooglePubsubProducer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for producer")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}
	if cfg.PublishConfirmationTimeout <= 0 {
		cfg.PublishConfirmationTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.DelayThreshold = cfg.BatchDelay
	topic.PublishSettings.CountThreshold = cfg.BatchSize
	topic.PublishSettings.Timeout = 10 * time.Second

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check for topic %s: %v", types.ErrTransport, cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: pubsub topic %s does not exist", types.ErrConfiguration, cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("GooglePubsubProducer initialized successfully.")
	return &GooglePubsubProducer{
		topic:                      topic,
		logger:                     logger.With().Str("component", "GooglePubsubProducer").Str("topic_id", cfg.TopicID).Logger(),
		publishConfirmationTimeout: cfg.PublishConfirmationTimeout,
	}, nil
}

// Publish sends one message and blocks until the broker has confirmed it,
// returning the broker-assigned message ID.
func (p *GooglePubsubProducer) Publish(ctx context.Context, payload []byte, attributes map[string]string) (string, error) {
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	getCtx, cancel := context.WithTimeout(ctx, p.publishConfirmationTimeout)
	defer cancel()
	msgID, err := res.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to get publish result.")
		return "", fmt.Errorf("%w: publish: %v", types.ErrTransport, err)
	}
	p.logger.Debug().Str("pubsub_msg_id", msgID).Msg("Message published successfully.")
	return msgID, nil
}

// Stop flushes any buffered messages and stops the topic's publishing
// goroutines, respecting the context's timeout.
func (p *GooglePubsubProducer) Stop(ctx context.Context) error {
	p.logger.Info().Msg("Flushing remaining messages and stopping Pub/Sub topic...")
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
		p.logger.Info().Msg("Pub/Sub producer stopped gracefully.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for Pub/Sub topic to flush and stop.")
		return ctx.Err()
	}
}
