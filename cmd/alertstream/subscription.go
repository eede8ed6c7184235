package main

import (
	"fmt"

	"github.com/illmade-knight/go-alertstream/pkg/credentials"
	"github.com/illmade-knight/go-alertstream/pkg/subscription"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSubscriptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "Manage the subscription alerts are pulled from",
	}
	addSubscriptionFlags(cmd)

	ensure := &cobra.Command{
		Use:     "ensure",
		Short:   "Create the subscription unless it already exists",
		Example: "  alertstream subscription ensure -p my-project -s ztf-loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			sub, err := mgr.GetOrCreate(cmd.Context(), cfg.Subscription.Name, cfg.Topic())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sub.Path, sub.Topic)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete the subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeFn, err := newManager(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return mgr.Delete(cmd.Context(), cfg.Subscription.Name)
		},
	}

	cmd.AddCommand(ensure, del)
	return cmd
}

func newManager(cmd *cobra.Command) (*subscription.Manager, func(), error) {
	if cfg.ProjectID == "" || cfg.Subscription.Name == "" {
		return nil, nil, fmt.Errorf("%w: --project and --subscription are required", types.ErrConfiguration)
	}
	provider, err := credentials.FromConfig(cfg.Credentials)
	if err != nil {
		return nil, nil, err
	}
	client, err := credentials.NewPubsubClient(cmd.Context(), cfg.ProjectID, provider)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Pub/Sub client")
		}
	}
	mgr, err := subscription.NewManager(client, log.Logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return mgr, closeFn, nil
}
