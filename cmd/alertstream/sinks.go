package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-alertstream/pkg/config"
	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/sink"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// sinkSet owns the sinks of a run and the clients created for them.
type sinkSet struct {
	sinks   []sink.Sink
	closers []func() error
}

// Sink returns the configured sink, a MultiSink for several, or nil for none.
func (s *sinkSet) Sink() sink.Sink {
	switch len(s.sinks) {
	case 0:
		return nil
	case 1:
		return s.sinks[0]
	default:
		return sink.NewMultiSink(s.sinks...)
	}
}

// Close closes the sinks, then their clients.
func (s *sinkSet) Close(logger zerolog.Logger) {
	for _, sk := range s.sinks {
		if err := sk.Close(); err != nil {
			logger.Error().Err(err).Str("sink", sk.Name()).Msg("Failed to close sink")
		}
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sink client")
		}
	}
}

func buildSinks(ctx context.Context, c *config.Config, psClient *pubsub.Client, opts []option.ClientOption, logger zerolog.Logger) (*sinkSet, error) {
	set := &sinkSet{}
	fail := func(err error) (*sinkSet, error) {
		set.Close(logger)
		return nil, err
	}

	for _, t := range c.Sink.Types {
		switch t {
		case config.SinkMemory:
			// Collected records are kept by the controller.
		case config.SinkBigQuery:
			client, err := bigquery.NewClient(ctx, c.ProjectID, opts...)
			if err != nil {
				return fail(fmt.Errorf("failed to create BigQuery client: %w", err))
			}
			set.closers = append(set.closers, client.Close)
			s, err := sink.NewBigQuerySink(ctx, client, sink.BigQueryConfig{
				DatasetID: c.Sink.BigQuery.DatasetID,
				TableID:   c.Sink.BigQuery.TableID,
				KeyField:  c.Sink.KeyField,
			}, logger)
			if err != nil {
				return fail(err)
			}
			set.sinks = append(set.sinks, s)
		case config.SinkGCS:
			client, err := storage.NewClient(ctx, opts...)
			if err != nil {
				return fail(fmt.Errorf("failed to create GCS client: %w", err))
			}
			set.closers = append(set.closers, client.Close)
			s, err := sink.NewGCSSink(sink.NewGCSObjectStore(client), sink.GCSConfig{
				BucketName:   c.Sink.GCS.Bucket,
				ObjectPrefix: c.Sink.GCS.Prefix,
				KeyField:     c.Sink.KeyField,
			}, logger)
			if err != nil {
				return fail(err)
			}
			set.sinks = append(set.sinks, s)
		case config.SinkFirestore:
			client, err := firestore.NewClient(ctx, c.ProjectID, opts...)
			if err != nil {
				return fail(fmt.Errorf("failed to create Firestore client: %w", err))
			}
			set.closers = append(set.closers, client.Close)
			s, err := sink.NewFirestoreSink(client, sink.FirestoreConfig{
				CollectionName: c.Sink.Firestore.Collection,
				KeyField:       c.Sink.KeyField,
			}, logger)
			if err != nil {
				return fail(err)
			}
			set.sinks = append(set.sinks, s)
		case config.SinkRedis:
			s, err := sink.NewRedisSink(ctx, sink.RedisConfig{
				Addr:      c.Sink.Redis.Addr,
				Password:  c.Sink.Redis.Password,
				DB:        c.Sink.Redis.DB,
				TTL:       c.Sink.Redis.TTL,
				KeyPrefix: c.Sink.Redis.KeyPrefix,
				KeyField:  c.Sink.KeyField,
			}, logger)
			if err != nil {
				return fail(err)
			}
			set.sinks = append(set.sinks, s)
		case config.SinkPubsub:
			producer, err := messagepipeline.NewGooglePubsubProducer(ctx,
				messagepipeline.NewGooglePubsubProducerDefaults(c.Sink.Pubsub.Topic), psClient, logger)
			if err != nil {
				return fail(err)
			}
			set.sinks = append(set.sinks, sink.NewPubsubSink(producer, c.Sink.KeyField, logger))
		default:
			return fail(fmt.Errorf("unknown sink type %q", t))
		}
	}
	return set, nil
}
