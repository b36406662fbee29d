package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/store"
)

func newDumpKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump-keys",
		Short: "Print every staff and character key as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *campaign.Service, _ store.Backend) error {
				keys, err := svc.Keys(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(keys)
			})
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Delete all campaign data",
		Long:  "Delete every log, character, staff member and setting. The next server start creates a fresh admin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			return a.withService(cmd.Context(), func(_ *campaign.Service, backend store.Backend) error {
				if err := backend.Reset(cmd.Context()); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "campaign data deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}

func newPlayerCmd(a *app) *cobra.Command {
	var playerName, shadowName string
	cmd := &cobra.Command{
		Use:   "new-player",
		Short: "Register a character and print its login key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *campaign.Service, _ store.Backend) error {
				c, err := svc.NewPlayer(cmd.Context(), playerName, shadowName)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&playerName, "player", "", "player's real name")
	cmd.Flags().StringVar(&shadowName, "shadow", "", "character name")
	_ = cmd.MarkFlagRequired("player")
	_ = cmd.MarkFlagRequired("shadow")
	return cmd
}

func newReleaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "release-drafts",
		Short: "Publish every journal entry written so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *campaign.Service, _ store.Backend) error {
				wm, err := svc.ReleaseJournalDrafts(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "watermark %s\n", wm)
				return nil
			})
		},
	}
}
