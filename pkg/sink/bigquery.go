package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
)

// BigQueryConfig names the table alerts are streamed into.
type BigQueryConfig struct {
	DatasetID string
	TableID   string
	// KeyField names the record field used as the insert ID, letting BigQuery
	// drop a redelivered alert on a best-effort basis.
	KeyField string
}

// RowInserter abstracts *bigquery.Inserter.
type RowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams each record into a BigQuery table as one row.
type BigQuerySink struct {
	inserter RowInserter
	keyField string
	logger   zerolog.Logger
}

// NewBigQuerySink creates a sink for an existing table. Records carry no
// schema to infer from, so a missing table is a configuration error.
func NewBigQuerySink(ctx context.Context, client *bigquery.Client, cfg BigQueryConfig, logger zerolog.Logger) (*BigQuerySink, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	logger = logger.With().Str("project_id", client.Project()).Str("dataset_id", cfg.DatasetID).Str("table_id", cfg.TableID).Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		if strings.Contains(err.Error(), "notFound") {
			return nil, fmt.Errorf("%w: bigquery table %s.%s does not exist", types.ErrConfiguration, cfg.DatasetID, cfg.TableID)
		}
		return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
	}
	logger.Info().Msg("Successfully connected to existing BigQuery table.")

	return NewBigQuerySinkWithInserter(table.Inserter(), cfg, logger), nil
}

// NewBigQuerySinkWithInserter creates a sink around an existing inserter.
func NewBigQuerySinkWithInserter(inserter RowInserter, cfg BigQueryConfig, logger zerolog.Logger) *BigQuerySink {
	return &BigQuerySink{
		inserter: inserter,
		keyField: cfg.KeyField,
		logger:   logger.With().Str("component", "BigQuerySink").Logger(),
	}
}

// Save streams rec as a single row.
func (s *BigQuerySink) Save(ctx context.Context, rec types.Record) error {
	row := &recordSaver{rec: rec}
	if s.keyField != "" {
		row.insertID = recordKey(rec, s.keyField)
	}

	err := s.inserter.Put(ctx, row)
	if err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				s.logger.Error().
					Int("row_index", rowErr.RowIndex).
					Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	s.logger.Debug().Str("insert_id", row.insertID).Msg("Inserted record into BigQuery.")
	return nil
}

func (s *BigQuerySink) Name() string { return "bigquery" }

// Close is a no-op; the BigQuery client's lifecycle is managed externally.
func (s *BigQuerySink) Close() error { return nil }

// recordSaver adapts a record to bigquery.ValueSaver.
type recordSaver struct {
	rec      types.Record
	insertID string
}

func (r *recordSaver) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(r.rec))
	for k, v := range r.rec {
		row[k] = toBigQueryValue(v)
	}
	return row, r.insertID, nil
}

// toBigQueryValue converts nested groups into RECORD values.
func toBigQueryValue(v interface{}) bigquery.Value {
	switch t := v.(type) {
	case types.Record:
		return toBigQueryValue(map[string]interface{}(t))
	case map[string]interface{}:
		out := make(map[string]bigquery.Value, len(t))
		for k, inner := range t {
			out[k] = toBigQueryValue(inner)
		}
		return out
	case []interface{}:
		out := make([]bigquery.Value, len(t))
		for i, inner := range t {
			out[i] = toBigQueryValue(inner)
		}
		return out
	default:
		return v
	}
}
