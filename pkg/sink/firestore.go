package sink

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore sink.
type FirestoreConfig struct {
	CollectionName string
	KeyField       string
}

// FirestoreSink writes each record as a document keyed by KeyField. A
// redelivered alert overwrites its own document. Suitable for low volume
// streams; Redis serves higher rates.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
	keyField   string
	logger     zerolog.Logger
}

// NewFirestoreSink creates a FirestoreSink.
func NewFirestoreSink(client *firestore.Client, cfg FirestoreConfig, logger zerolog.Logger) (*FirestoreSink, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("%w: firestore collection name is required", types.ErrConfiguration)
	}
	logger.Info().Str("collection", cfg.CollectionName).Msg("FirestoreSink initialized.")
	return &FirestoreSink{
		client:     client,
		collection: cfg.CollectionName,
		keyField:   cfg.KeyField,
		logger:     logger.With().Str("component", "FirestoreSink").Logger(),
	}, nil
}

// Save creates or overwrites the record's document.
func (s *FirestoreSink) Save(ctx context.Context, rec types.Record) error {
	key := recordKey(rec, s.keyField)
	_, err := s.client.Collection(s.collection).Doc(key).Set(ctx, map[string]interface{}(rec))
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote record to Firestore.")
	return nil
}

// Fetch reads a saved record back by key.
func (s *FirestoreSink) Fetch(ctx context.Context, key string) (types.Record, error) {
	snap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("document %s not found: %w", key, err)
		}
		return nil, fmt.Errorf("firestore get for %s: %w", key, err)
	}
	return snap.Data(), nil
}

func (s *FirestoreSink) Name() string { return "firestore" }

// Close is a no-op; the Firestore client's lifecycle is managed externally.
func (s *FirestoreSink) Close() error { return nil }
