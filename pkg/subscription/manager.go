// Package subscription provisions and removes the Pub/Sub subscription an
// alert stream is pulled from.
package subscription

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultPublisherProject is the project that publishes the broker's alert
// topics. A subscription named after a topic is bound to that topic here
// unless told otherwise.
const DefaultPublisherProject = "ardent-cycling-243415"

// TopicRef identifies a topic, possibly in another project.
type TopicRef struct {
	ProjectID string
	TopicID   string
}

// Path returns the fully qualified topic name.
func (r TopicRef) Path() string {
	return fmt.Sprintf("projects/%s/topics/%s", r.ProjectID, r.TopicID)
}

// DefaultTopic returns the same-named topic in the publisher project.
func DefaultTopic(name string) TopicRef {
	return TopicRef{ProjectID: DefaultPublisherProject, TopicID: name}
}

// Subscription describes a provisioned subscription.
type Subscription struct {
	Name  string
	Path  string
	Topic string
	// TopicMismatch is set when an existing subscription was adopted although
	// it is bound to a topic other than the one expected.
	TopicMismatch bool
}

// PullURL returns the REST endpoint the subscription is pulled from.
func (s *Subscription) PullURL() string {
	return "https://pubsub.googleapis.com/v1/" + s.Path
}

// Manager creates, inspects and deletes subscriptions in the client's project.
type Manager struct {
	client *pubsub.Client
	logger zerolog.Logger
}

// NewManager creates a Manager. The client determines the subscriber project.
func NewManager(client *pubsub.Client, logger zerolog.Logger) (*Manager, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	return &Manager{
		client: client,
		logger: logger.With().Str("component", "SubscriptionManager").Logger(),
	}, nil
}

// Exists reports whether the named subscription exists.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	exists, err := m.client.Subscription(name).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check existence of subscription '%s': %v", types.ErrTransport, name, err)
	}
	return exists, nil
}

// Create binds a new subscription to topic. A topic that does not exist is a
// configuration error.
func (m *Manager) Create(ctx context.Context, name string, topic TopicRef) (*Subscription, error) {
	t := m.client.TopicInProject(topic.TopicID, topic.ProjectID)
	topicExists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check existence of topic '%s': %v", types.ErrTransport, topic.Path(), err)
	}
	if !topicExists {
		return nil, fmt.Errorf("%w: topic '%s' does not exist, cannot create subscription '%s'", types.ErrConfiguration, topic.Path(), name)
	}

	m.logger.Info().Str("subscription_id", name).Str("topic", topic.Path()).Msg("Creating subscription...")
	sub, err := m.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{Topic: t})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: topic '%s' not found while creating subscription '%s'", types.ErrConfiguration, topic.Path(), name)
		}
		return nil, fmt.Errorf("%w: failed to create subscription '%s': %v", types.ErrTransport, name, err)
	}
	m.logger.Info().Str("subscription_id", sub.ID()).Msg("Subscription created successfully")

	return &Subscription{Name: name, Path: sub.String(), Topic: topic.Path()}, nil
}

// GetOrCreate returns the named subscription, creating it on expected if it is
// absent. An existing subscription bound to another topic is adopted as it is,
// with a warning.
func (m *Manager) GetOrCreate(ctx context.Context, name string, expected TopicRef) (*Subscription, error) {
	exists, err := m.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return m.Create(ctx, name, expected)
	}

	sub := m.client.Subscription(name)
	cfg, err := sub.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config of subscription '%s': %v", types.ErrTransport, name, err)
	}

	out := &Subscription{Name: name, Path: sub.String()}
	if cfg.Topic != nil {
		out.Topic = cfg.Topic.String()
	}
	if out.Topic != expected.Path() {
		out.TopicMismatch = true
		m.logger.Warn().
			Str("subscription_id", name).
			Str("topic", out.Topic).
			Str("expected_topic", expected.Path()).
			Msg("Subscription exists but is bound to a different topic, using it as is")
	} else {
		m.logger.Info().Str("subscription_id", name).Str("topic", out.Topic).Msg("Subscription already exists")
	}
	return out, nil
}

// Delete removes the named subscription. Deleting a subscription that does not
// exist is not an error.
func (m *Manager) Delete(ctx context.Context, name string) error {
	err := m.client.Subscription(name).Delete(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			m.logger.Info().Str("subscription_id", name).Msg("Subscription does not exist, skipping deletion.")
			return nil
		}
		return fmt.Errorf("%w: failed to delete subscription '%s': %v", types.ErrTransport, name, err)
	}
	m.logger.Info().Str("subscription_id", name).Msg("Subscription deleted successfully")
	return nil
}
