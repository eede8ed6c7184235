package main

import (
	"os"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// cfg is loaded before any subcommand runs.
var cfg *config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "alertstream",
		Short: "Consume a Pub/Sub alert stream under a bounded streaming pull.",
		Long: `alertstream pulls alerts from a Pub/Sub subscription, decodes and filters
them, saves the accepted ones to the configured sinks and stops once the
requested number of alerts has been accepted or the stream has gone idle.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogger(cfg.LogLevel)
			log.Debug().Msg("Logger initialized.")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "Path to a YAML configuration file")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.StringP("project", "p", "", "GCP project the subscription lives in")
	pf.String("credentials-mode", "adc", "Credentials: adc, service-account or emulator")
	pf.String("credentials-file", "", "Service-account key file for --credentials-mode=service-account")
	pf.String("emulator-host", "", "Pub/Sub emulator host:port for --credentials-mode=emulator")

	root.AddCommand(newStreamCmd(), newSubscriptionCmd())
	return root
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("provided_level", level).Msg("Invalid log level provided. Defaulting to 'info'.")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

// addSubscriptionFlags registers the flags naming the subscription and its topic.
func addSubscriptionFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringP("subscription", "s", "", "Subscription name; also the default topic name")
	f.String("topic-project", "", "Project publishing the topic (default: the public alert project)")
	f.String("topic", "", "Topic to attach the subscription to (default: the subscription name)")
}
