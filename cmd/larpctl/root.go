package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/config"
	"larpcamp.org/internal/obs"
	"larpcamp.org/internal/store"
)

// app is shared by subcommands once the root pre-run has loaded config.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "larpctl",
		Short: "Administer a larpcamp campaign store",
		Long: `larpctl works directly against the store configured by the LARP_*
environment (or .env), the same settings the API server reads.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// keep stdout clean for command output
			obs.SetOutput(cmd.ErrOrStderr())
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := obs.SetLevel(cfg.Log.Level); err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.AddCommand(
		newMigrateCmd(a),
		newDumpKeysCmd(a),
		newResetCmd(a),
		newPlayerCmd(a),
		newReleaseCmd(a),
	)
	return root
}

// withService opens the configured store and runs fn against a campaign
// service on top of it.
func (a *app) withService(ctx context.Context, fn func(*campaign.Service, store.Backend) error) error {
	backend, err := store.Open(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()
	svc, err := campaign.NewService(backend)
	if err != nil {
		return fmt.Errorf("campaign service: %w", err)
	}
	return fn(svc, backend)
}
