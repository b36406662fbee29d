package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"larpcamp.org/internal/config"
	"larpcamp.org/internal/migrate"
	"larpcamp.org/internal/store/pg"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(m *migrate.Manager) error {
					applied, err := m.Up(cmd.Context())
					if err != nil {
						return err
					}
					for _, name := range applied {
						fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
					}
					if len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(m *migrate.Manager) error {
					name, err := m.Down(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "rolled back", name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withMigrations(func(m *migrate.Manager) error {
					history, err := m.Status(cmd.Context())
					if err != nil {
						return err
					}
					for _, item := range history {
						fmt.Fprintln(cmd.OutOrStdout(), item)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func (a *app) withMigrations(fn func(*migrate.Manager) error) error {
	if a.cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations apply to the postgres driver only (LARP_STORE__DRIVER=%q)", a.cfg.Store.Driver)
	}
	s, err := pg.Open(a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(migrate.NewManager(s.DB(), pg.Migrations))
}
