package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/rentalhub-backend/pkg/migrate"
)

const flagMigrationsDir = "dir"

func newMigrateCommand(rt *runtime) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage goose SQL migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, flagMigrationsDir, "", "migrations directory; empty uses the set compiled into the binary")

	for _, command := range []string{"up", "down", "status"} {
		cmd.AddCommand(newGooseCommand(rt, &dir, command))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version <YYYYMMDDHHMMSS>",
		Short: "Migrate up or down to a target version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlDB, err := openSQL(cmd, rt)
			if err != nil {
				return err
			}
			return migrate.MigrateToVersion(cmd.Context(), sqlDB, dir, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a timestamped SQL migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := dir
			if target == "" {
				target = migrate.DefaultDir
			}
			path, err := migrate.CreateSQLMigration(target, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check migration files without touching the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate.ValidateDir(dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
			return nil
		},
	})
	return cmd
}

func newGooseCommand(rt *runtime, dir *string, command string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: "goose " + command,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlDB, err := openSQL(cmd, rt)
			if err != nil {
				return err
			}
			if err := migrate.Run(cmd.Context(), sqlDB, *dir, command); err != nil {
				return fmt.Errorf("goose %s: %w", command, err)
			}
			return nil
		},
	}
}
