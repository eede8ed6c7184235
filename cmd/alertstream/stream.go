package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/config"
	"github.com/illmade-knight/go-alertstream/pkg/credentials"
	"github.com/illmade-knight/go-alertstream/pkg/decoder"
	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/metrics"
	"github.com/illmade-knight/go-alertstream/pkg/microservice"
	"github.com/illmade-knight/go-alertstream/pkg/streampull"
	"github.com/illmade-knight/go-alertstream/pkg/subscription"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/illmade-knight/go-alertstream/pkg/ztf"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Pull alerts until a stopping condition is met",
		Long: `stream ensures the subscription exists, then pulls alerts until
--max-results alerts have been accepted or no alert arrived for --timeout.
At least one of the two must be set.`,
		Example: `  alertstream stream -p my-project -s ztf-loop --max-results 10 --lighten --output -
  alertstream stream -c alertstream.yaml --timeout 2m --sink redis,gcs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runStream(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	addSubscriptionFlags(cmd)

	f := cmd.Flags()
	f.Int("max-results", 0, "Stop after this many alerts were accepted")
	f.Duration("timeout", 0, "Stop after this long without an incoming alert")
	f.Int("max-backlog", 0, "Maximum unacknowledged alerts held at once (default 1000)")
	f.String("format", "auto", "Payload format: auto, json or avro")
	f.String("avro-schema", "", "Writer schema file for schemaless Avro payloads")
	f.Bool("base64", false, "Payloads are base64 encoded")
	f.Bool("lighten", false, "Keep only the light alert fields and print summaries")
	f.StringSlice("metadata", nil, "Delivery metadata to attach (message_id, publish_time, delivery_attempt or attribute names)")
	f.StringSlice("sink", nil, "Sinks: memory, bigquery, gcs, firestore, redis, pubsub")
	f.String("key-field", "", "Record field keying sink writes")
	f.String("http-port", "", "Serve /healthz, /readyz and /metrics on this address")
	f.StringP("output", "o", "", "Write collected alerts as JSON lines to this file ('-' for stdout)")
	return cmd
}

func runStream(ctx context.Context, c *config.Config, stdout io.Writer) error {
	logger := log.Logger

	provider, err := credentials.FromConfig(c.Credentials)
	if err != nil {
		return err
	}
	opts, err := provider.ClientOptions(ctx)
	if err != nil {
		return err
	}
	client, err := credentials.NewPubsubClient(ctx, c.ProjectID, provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Pub/Sub client")
		}
	}()

	mgr, err := subscription.NewManager(client, logger)
	if err != nil {
		return err
	}
	sub, err := mgr.GetOrCreate(ctx, c.Subscription.Name, c.Topic())
	if err != nil {
		return err
	}

	dc, err := c.DecoderConfig()
	if err != nil {
		return err
	}
	dec, err := decoder.New(dc)
	if err != nil {
		return err
	}

	sinks, err := buildSinks(ctx, c, client, opts, logger)
	if err != nil {
		return err
	}
	defer sinks.Close(logger)

	hooks := streampull.Hooks{
		Decoder:     dec,
		Fields:      c.FieldSpec(),
		Metadata:    c.Metadata,
		MetadataKey: c.MetadataKey,
		Callback:    ztf.FilterCallback,
		Params:      filterParams(c),
		Collect:     c.Output != "",
	}
	if s := sinks.Sink(); s != nil {
		hooks.Sink = s
	}

	reg := metrics.NewRegistry()
	source := messagepipeline.NewGooglePubsubSource(client, sub.Name, logger)
	ctrl, err := streampull.New(source, c.StopRaw(), hooks, logger,
		streampull.WithMetrics(reg), streampull.WithSubscriptionName(sub.Name))
	if err != nil {
		return err
	}

	if c.HTTP.Port != "" {
		server := microservice.NewBaseServer(logger, c.HTTP.Port, reg)
		server.SetReadiness(func() (bool, string) {
			state := ctrl.State()
			return state == streampull.StateRunning, state.String()
		})
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Str("subscription_id", sub.Name).Str("topic", sub.Topic).Str("pull_url", sub.PullURL()).Msg("Streaming alerts")
	res, err := ctrl.Run(ctx)
	if res != nil {
		logger.Info().Int("accepted", res.Accepted).Str("reason", string(res.Reason)).Msg("Stream finished")
	}
	if err != nil {
		return err
	}
	if c.Output != "" {
		return writeOutput(c, res.Records, sub.PullURL(), stdout)
	}
	return nil
}

func filterParams(c *config.Config) map[string]interface{} {
	params := map[string]interface{}{ztf.ParamClassStarCompare: c.Filter.Comparison}
	if c.Filter.ClassStarThreshold != nil {
		params[ztf.ParamClassStarThreshold] = *c.Filter.ClassStarThreshold
	}
	return params
}

// writeOutput writes one JSON line per record, or per summary for lightened
// alerts.
func writeOutput(c *config.Config, records []types.Record, pullURL string, stdout io.Writer) error {
	w := stdout
	if c.Output != "-" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	for _, rec := range records {
		var v interface{} = rec
		if c.Lighten {
			s, err := ztf.ToSummary(rec, pullURL)
			if err != nil {
				log.Warn().Err(err).Msg("Alert could not be summarised; writing it as is")
			} else {
				v = s
			}
		}
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	return nil
}
