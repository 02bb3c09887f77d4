package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres"
)

func newMigrateCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withMigrator := func(run func(cmd *cobra.Command, mg *postgres.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log, true)
			if err != nil {
				return err
			}
			mg, err := postgres.NewMigratorForDSN(cfg.Database.DSN, log)
			if err != nil {
				return err
			}
			defer mg.Close()
			return run(cmd, mg)
		}
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, mg *postgres.Migrator) error {
			if err := mg.Down(steps); err != nil {
				return err
			}
			return printStatus(cmd, mg)
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, mg *postgres.Migrator) error {
				if err := mg.Up(); err != nil {
					return err
				}
				return printStatus(cmd, mg)
			}),
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE:  withMigrator(printStatus),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Mark a version as applied after a failed run left the schema dirty",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("version must be an integer: %w", err)
				}
				return withMigrator(func(cmd *cobra.Command, mg *postgres.Migrator) error {
					if err := mg.Force(version); err != nil {
						return err
					}
					return printStatus(cmd, mg)
				})(cmd, args)
			},
		},
	)
	return cmd
}

func printStatus(cmd *cobra.Command, mg *postgres.Migrator) error {
	version, dirty, err := mg.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
