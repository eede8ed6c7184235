// Package config loads the settings of an alert stream run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/credentials"
	"github.com/illmade-knight/go-alertstream/pkg/decoder"
	"github.com/illmade-knight/go-alertstream/pkg/stoppolicy"
	"github.com/illmade-knight/go-alertstream/pkg/subscription"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/illmade-knight/go-alertstream/pkg/ztf"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ALERTSTREAM_STOP_MAX_RESULTS.
const EnvPrefix = "ALERTSTREAM"

// Sink types.
const (
	SinkMemory    = "memory"
	SinkBigQuery  = "bigquery"
	SinkGCS       = "gcs"
	SinkFirestore = "firestore"
	SinkRedis     = "redis"
	SinkPubsub    = "pubsub"
)

// Config holds all configuration for a run.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// ProjectID is the subscriber project; subscriptions are created here.
	ProjectID string `mapstructure:"project_id"`

	Credentials credentials.Config `mapstructure:"credentials"`

	Subscription struct {
		Name string `mapstructure:"name"`
		// TopicProject and Topic default to the same-named topic in the
		// public alert project.
		TopicProject string `mapstructure:"topic_project"`
		Topic        string `mapstructure:"topic"`
	} `mapstructure:"subscription"`

	// Stop values of zero leave the condition unset.
	Stop struct {
		MaxResults int           `mapstructure:"max_results"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxBacklog int           `mapstructure:"max_backlog"`
	} `mapstructure:"stop"`

	Decoder struct {
		Format         string `mapstructure:"format"`
		AvroSchemaFile string `mapstructure:"avro_schema_file"`
		Base64         bool   `mapstructure:"base64"`
	} `mapstructure:"decoder"`

	// Lighten projects alerts onto the ztf light fields and takes precedence
	// over Fields.
	Lighten     bool                `mapstructure:"lighten"`
	Fields      map[string][]string `mapstructure:"fields"`
	Metadata    []string            `mapstructure:"metadata"`
	MetadataKey string              `mapstructure:"metadata_key"`

	Filter struct {
		ClassStarThreshold *float64 `mapstructure:"classtar_threshold"`
		Comparison         string   `mapstructure:"classtar_gt_lt"`
	} `mapstructure:"filter"`

	Sink struct {
		Types    []string `mapstructure:"types"`
		KeyField string   `mapstructure:"key_field"`

		BigQuery struct {
			DatasetID string `mapstructure:"dataset_id"`
			TableID   string `mapstructure:"table_id"`
		} `mapstructure:"bigquery"`

		GCS struct {
			Bucket string `mapstructure:"bucket"`
			Prefix string `mapstructure:"prefix"`
		} `mapstructure:"gcs"`

		Firestore struct {
			Collection string `mapstructure:"collection"`
		} `mapstructure:"firestore"`

		Redis struct {
			Addr      string        `mapstructure:"addr"`
			Password  string        `mapstructure:"password"`
			DB        int           `mapstructure:"db"`
			TTL       time.Duration `mapstructure:"ttl"`
			KeyPrefix string        `mapstructure:"key_prefix"`
		} `mapstructure:"redis"`

		Pubsub struct {
			Topic string `mapstructure:"topic"`
		} `mapstructure:"pubsub"`
	} `mapstructure:"sink"`

	HTTP struct {
		// Port enables the health and metrics server when set, e.g. ":8080".
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`

	// Output writes collected records as JSON lines to this file; "-" is stdout.
	Output string `mapstructure:"output"`
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"project":          "project_id",
	"credentials-mode": "credentials.mode",
	"credentials-file": "credentials.file",
	"emulator-host":    "credentials.emulator_host",
	"subscription":     "subscription.name",
	"topic-project":    "subscription.topic_project",
	"topic":            "subscription.topic",
	"max-results":      "stop.max_results",
	"timeout":          "stop.timeout",
	"max-backlog":      "stop.max_backlog",
	"format":           "decoder.format",
	"avro-schema":      "decoder.avro_schema_file",
	"base64":           "decoder.base64",
	"lighten":          "lighten",
	"metadata":         "metadata",
	"sink":             "sink.types",
	"key-field":        "sink.key_field",
	"http-port":        "http.port",
	"output":           "output",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("project_id", "")
	v.SetDefault("credentials.mode", credentials.ModeApplicationDefault)
	v.SetDefault("credentials.file", "")
	v.SetDefault("credentials.emulator_host", "")
	v.SetDefault("subscription.name", "")
	v.SetDefault("subscription.topic_project", subscription.DefaultPublisherProject)
	v.SetDefault("subscription.topic", "")
	v.SetDefault("stop.max_results", 0)
	v.SetDefault("stop.timeout", time.Duration(0))
	v.SetDefault("stop.max_backlog", stoppolicy.DefaultMaxBacklog)
	v.SetDefault("decoder.format", string(decoder.FormatAuto))
	v.SetDefault("decoder.avro_schema_file", "")
	v.SetDefault("decoder.base64", false)
	v.SetDefault("lighten", false)
	v.SetDefault("metadata", []string{})
	v.SetDefault("metadata_key", "metadata")
	v.SetDefault("filter.classtar_gt_lt", ztf.LessThan)
	v.SetDefault("sink.types", []string{SinkMemory})
	v.SetDefault("sink.key_field", "")
	v.SetDefault("sink.bigquery.dataset_id", "")
	v.SetDefault("sink.bigquery.table_id", "")
	v.SetDefault("sink.gcs.bucket", "")
	v.SetDefault("sink.gcs.prefix", "alerts")
	v.SetDefault("sink.firestore.collection", "alerts")
	v.SetDefault("sink.redis.addr", "localhost:6379")
	v.SetDefault("sink.redis.password", "")
	v.SetDefault("sink.redis.db", 0)
	v.SetDefault("sink.redis.ttl", 24*time.Hour)
	v.SetDefault("sink.redis.key_prefix", "alert:")
	v.SetDefault("sink.pubsub.topic", "")
	v.SetDefault("http.port", "")
	v.SetDefault("output", "")
}

// Load reads configuration from, in rising precedence: defaults, the YAML file
// named by the "config" flag, ALERTSTREAM_ environment variables and flags
// that were set explicitly. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if flags != nil {
		for flag, key := range flagKeys {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: reading config file %s: %v", types.ErrConfiguration, f.Value.String(), err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so the key must be made known for the environment to reach it.
	if err := v.BindEnv("filter.classtar_threshold"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	return &cfg, nil
}

// Validate checks the settings a streaming run needs.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", types.ErrConfiguration)
	}
	if c.Subscription.Name == "" {
		return fmt.Errorf("%w: subscription name is required", types.ErrConfiguration)
	}
	if _, err := credentials.FromConfig(c.Credentials); err != nil {
		return err
	}
	if _, err := stoppolicy.Validate(c.StopRaw()); err != nil {
		return err
	}
	if err := c.ClassStarFilter().Validate(); err != nil {
		return err
	}
	for _, t := range c.Sink.Types {
		switch t {
		case SinkMemory, SinkBigQuery, SinkGCS, SinkFirestore, SinkRedis, SinkPubsub:
		default:
			return fmt.Errorf("%w: unknown sink type %q", types.ErrConfiguration, t)
		}
	}
	return nil
}

// StopRaw returns the stop settings with zero values left unset.
func (c *Config) StopRaw() stoppolicy.RawConfig {
	var raw stoppolicy.RawConfig
	if c.Stop.MaxResults != 0 {
		raw.MaxResults = stoppolicy.Int(c.Stop.MaxResults)
	}
	if c.Stop.Timeout != 0 {
		raw.IdleTimeout = stoppolicy.Duration(c.Stop.Timeout)
	}
	if c.Stop.MaxBacklog != 0 {
		raw.MaxBacklog = stoppolicy.Int(c.Stop.MaxBacklog)
	}
	return raw
}

// Topic returns the topic the subscription should be attached to.
func (c *Config) Topic() subscription.TopicRef {
	ref := subscription.TopicRef{ProjectID: c.Subscription.TopicProject, TopicID: c.Subscription.Topic}
	if ref.ProjectID == "" {
		ref.ProjectID = subscription.DefaultPublisherProject
	}
	if ref.TopicID == "" {
		ref.TopicID = c.Subscription.Name
	}
	return ref
}

// DecoderConfig returns the decoder settings, reading the Avro schema file if
// one is configured.
func (c *Config) DecoderConfig() (decoder.Config, error) {
	dc := decoder.Config{Format: decoder.Format(c.Decoder.Format), Base64: c.Decoder.Base64}
	if c.Decoder.AvroSchemaFile != "" {
		schema, err := os.ReadFile(c.Decoder.AvroSchemaFile)
		if err != nil {
			return dc, fmt.Errorf("%w: reading avro schema: %v", types.ErrConfiguration, err)
		}
		dc.AvroSchema = string(schema)
	}
	return dc, nil
}

// FieldSpec returns the projection to apply, or nil for none.
func (c *Config) FieldSpec() types.FieldSpec {
	if c.Lighten {
		return ztf.LightFields()
	}
	if len(c.Fields) == 0 {
		return nil
	}
	return types.FieldSpec(c.Fields)
}

// ClassStarFilter returns the configured alert filter.
func (c *Config) ClassStarFilter() ztf.ClassStarFilter {
	return ztf.ClassStarFilter{Threshold: c.Filter.ClassStarThreshold, Comparison: c.Filter.Comparison}
}
