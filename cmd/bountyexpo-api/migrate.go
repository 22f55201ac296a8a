package main

import (
	"fmt"

	"bountyexpo/internal/config"
	"bountyexpo/internal/db"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		version int64
		status  bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load()
			if err != nil {
				return err
			}
			if status {
				current, err := db.MigrationStatus(cmd.Context(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", current)
				return nil
			}
			if err := db.Migrate(cmd.Context(), cfg.DatabaseURL, version); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().Int64Var(&version, "to", 0, "migrate up or down to this version (default: latest)")
	cmd.Flags().BoolVar(&status, "status", false, "print the applied schema version and exit")
	return cmd
}
