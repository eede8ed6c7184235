package sink

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// GCSConfig configures where archived records are written.
type GCSConfig struct {
	BucketName   string
	ObjectPrefix string
	// KeyField names the record field used as the object name. Records
	// without it get a random name.
	KeyField string
}

// GCSSink archives each record as a gzipped JSON object named
// <prefix>/<yyyy>/<mm>/<dd>/<key>.json.gz.
type GCSSink struct {
	store  ObjectStore
	config GCSConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewGCSSink creates a sink writing to cfg.BucketName.
func NewGCSSink(store ObjectStore, cfg GCSConfig, logger zerolog.Logger) (*GCSSink, error) {
	if store == nil {
		return nil, errors.New("GCS object store cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("%w: GCS bucket name is required", types.ErrConfiguration)
	}
	return &GCSSink{
		store:  store,
		config: cfg,
		logger: logger.With().Str("component", "GCSSink").Str("bucket", cfg.BucketName).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// ObjectName returns the object a record is archived under on the given day.
func (s *GCSSink) ObjectName(rec types.Record, day time.Time) string {
	key := recordKey(rec, s.config.KeyField)
	return path.Join(s.config.ObjectPrefix, day.Format("2006/01/02"), key+".json.gz")
}

// Save writes rec to its own object.
func (s *GCSSink) Save(ctx context.Context, rec types.Record) error {
	objectName := s.ObjectName(rec, s.now())
	w := s.store.NewObjectWriter(ctx, s.config.BucketName, objectName)

	gz := gzip.NewWriter(w)
	encErr := json.NewEncoder(gz).Encode(rec)
	gzErr := gz.Close()
	closeErr := w.Close()

	if encErr != nil {
		return fmt.Errorf("json encoding failed for %s: %w", objectName, encErr)
	}
	if gzErr != nil {
		return fmt.Errorf("failed to compress GCS object %s: %w", objectName, gzErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, closeErr)
	}
	s.logger.Debug().Str("object_name", objectName).Msg("Archived record to GCS.")
	return nil
}

func (s *GCSSink) Name() string { return "gcs" }

// Close is a no-op; the storage client's lifecycle is managed externally.
func (s *GCSSink) Close() error { return nil }
