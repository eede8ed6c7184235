package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// --- Google Cloud Pub/Sub Consumer Implementation ---

// GooglePubsubConsumerConfig holds the settings for one streaming pull.
type GooglePubsubConsumerConfig struct {
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
	ExistsTimeout          time.Duration
	StopTimeout            time.Duration
}

// NewGooglePubsubConsumerDefaults provides a config with sensible defaults.
// MaxOutstandingMessages keeps the Pub/Sub client default of 1000.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 1000,
		NumGoroutines:          1,
		ExistsTimeout:          20 * time.Second,
		StopTimeout:            30 * time.Second,
	}
}

// GooglePubsubConsumer runs subscription.Receive in a background goroutine and
// forwards each delivery onto a channel. Flow control is enforced by the
// Pub/Sub client: deliveries sitting in the channel are still outstanding.
type GooglePubsubConsumer struct {
	subscription       *pubsub.Subscription
	logger             zerolog.Logger
	outputChan         chan Message
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	wg                 sync.WaitGroup
	doneChan           chan struct{}
	stopTimeout        time.Duration

	mu         sync.Mutex
	receiveErr error
}

// NewGooglePubsubConsumer creates a consumer for an existing subscription.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for consumer")
	}
	if cfg.MaxOutstandingMessages <= 0 {
		return nil, fmt.Errorf("%w: max outstanding messages must be positive, got %d", types.ErrConfiguration, cfg.MaxOutstandingMessages)
	}
	if cfg.NumGoroutines <= 0 {
		cfg.NumGoroutines = 1
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.ExistsTimeout <= 0 {
		cfg.ExistsTimeout = 20 * time.Second
	}

	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(ctx, cfg.ExistsTimeout)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: checking subscription %s: %v", types.ErrTransport, cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: subscription %s does not exist", types.ErrConfiguration, cfg.SubscriptionID)
	}

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	return &GooglePubsubConsumer{
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan Message, cfg.MaxOutstandingMessages),
		doneChan:     make(chan struct{}),
		stopTimeout:  cfg.StopTimeout,
	}, nil
}

// Messages returns the channel of deliveries.
func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.outputChan }

// Start begins the streaming pull in a background goroutine.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Int("max_outstanding", c.subscription.ReceiveSettings.MaxOutstandingMessages).Msg("Starting Pub/Sub streaming pull...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.doneChan)
		defer close(c.outputChan)
		defer c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		err := c.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			payloadCopy := make([]byte, len(msg.Data))
			copy(payloadCopy, msg.Data)

			consumedMsg := Message{
				MessageData: MessageData{
					ID:          msg.ID,
					Payload:     payloadCopy,
					PublishTime: msg.PublishTime,
				},
				Attributes:      msg.Attributes,
				DeliveryAttempt: msg.DeliveryAttempt,
				Ack:             msg.Ack,
				Nack:            msg.Nack,
			}

			select {
			case c.outputChan <- consumedMsg:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Debug().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message due to receive context done.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
			c.mu.Lock()
			c.receiveErr = fmt.Errorf("%w: receive: %v", types.ErrTransport, err)
			c.mu.Unlock()
		}
	}()
	return nil
}

// Stop cancels the streaming pull and waits for the Receive goroutine to exit.
// Deliveries still buffered in the channel are left for the reader to drain.
func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelSubscription != nil {
			c.cancelSubscription()
		} else {
			// Never started: nothing will close the channels for us.
			close(c.outputChan)
			close(c.doneChan)
			return
		}
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
		case <-ctx.Done():
			stopErr = ctx.Err()
			c.logger.Error().Err(stopErr).Msg("Context done waiting for Pub/Sub Receive goroutine to stop.")
		case <-time.After(c.stopTimeout):
			stopErr = fmt.Errorf("%w: timeout waiting for receive to stop", types.ErrTransport)
			c.logger.Error().Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
		}
	})
	return stopErr
}

// Done returns a channel closed once the Receive goroutine has exited.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }

// Err returns the Receive error, if the pull ended on its own.
func (c *GooglePubsubConsumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiveErr
}

// GooglePubsubSource opens GooglePubsubConsumers for one subscription.
type GooglePubsubSource struct {
	client         *pubsub.Client
	subscriptionID string
	numGoroutines  int
	logger         zerolog.Logger
}

// NewGooglePubsubSource creates a ConsumerSource backed by the given client.
func NewGooglePubsubSource(client *pubsub.Client, subscriptionID string, logger zerolog.Logger) *GooglePubsubSource {
	return &GooglePubsubSource{
		client:         client,
		subscriptionID: subscriptionID,
		numGoroutines:  1,
		logger:         logger,
	}
}

// NewConsumer satisfies ConsumerSource.
func (s *GooglePubsubSource) NewConsumer(ctx context.Context, flow FlowControl) (MessageConsumer, error) {
	cfg := NewGooglePubsubConsumerDefaults(s.subscriptionID)
	cfg.MaxOutstandingMessages = flow.MaxOutstandingMessages
	cfg.NumGoroutines = s.numGoroutines
	return NewGooglePubsubConsumer(ctx, cfg, s.client, s.logger)
}
