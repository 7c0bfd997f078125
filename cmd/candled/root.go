package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/rickgao/candled/internal/database"
	"github.com/rickgao/candled/internal/history"
	"github.com/rickgao/candled/internal/version"
)

const defaultConfigPath = "configs/candled.yaml"

func newRootCmd() *cobra.Command {
	var path string

	root := &cobra.Command{
		Use:           "candled",
		Short:         "Download candle history archives into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&path, "config", "c", defaultConfigPath, "path to config file")

	cfgPath := func() configPath { return configPath(path) }

	root.AddCommand(
		newWalkCmd("backfill", "Walk instrument history backward to its beginning", cfgPath, walkBackward),
		newWalkCmd("update", "Walk instrument history forward to the present", cfgPath, walkForward),
		newWalkCmd("run", "Backfill, then update", cfgPath, walkBackward, walkForward),
		newMigrateCmd(cfgPath),
		newInstrumentsCmd(cfgPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}

type walkFunc func(a *app, cmd *cobra.Command) (history.Report, error)

func walkBackward(a *app, cmd *cobra.Command) (history.Report, error) {
	return a.scheduler.WalkBackward(cmd.Context())
}

func walkForward(a *app, cmd *cobra.Command) (history.Report, error) {
	return a.scheduler.WalkForward(cmd.Context())
}

func newWalkCmd(use, short string, cfgPath func() configPath, walks ...walkFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := initApp(cmd.Context(), cfgPath())
			if err != nil {
				return err
			}
			defer cleanup()

			a.logger.Info("starting candled",
				"command", use,
				"version", version.Version,
				"asset_types", a.cfg.History.AssetTypes,
			)

			for _, walk := range walks {
				report, err := walk(a, cmd)
				if err != nil {
					if cmd.Context().Err() != nil {
						a.logger.Info("interrupted", "requests", report.Requests)
						return nil
					}
					return err
				}
				for _, e := range report.Errors {
					a.logger.Warn("instrument not completed", "error", e)
				}
			}

			stats := a.loader.Stats()
			a.logger.Info("candled finished",
				"sessions", stats.Sessions,
				"commits", stats.Commits,
				"rollbacks", stats.Rollbacks,
				"rows_added", stats.RowsAdded,
			)
			return nil
		},
	}
}

func newMigrateCmd(cfgPath func() configPath) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the database schema",
	}

	run := func(direction string, f func(*migrate.Migrate) (bool, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := initMigrator(cfgPath())
			if err != nil {
				return err
			}
			defer cleanup()

			m, logger := env.m, env.logger
			changed, err := f(m)
			if err != nil {
				return err
			}
			if !changed {
				logger.Info("database is already migrated fully " + direction)
				return nil
			}
			v, dirty, err := m.Version()
			if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
				return fmt.Errorf("read schema version: %w", err)
			}
			logger.Info("database migrated", "direction", direction, "version", v, "dirty", dirty)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all migrations", Args: cobra.NoArgs, RunE: run("up", database.MigrateUp)},
		&cobra.Command{Use: "down", Short: "Revert all migrations", Args: cobra.NoArgs, RunE: run("down", database.MigrateDown)},
	)
	return cmd
}

func newInstrumentsCmd(cfgPath func() configPath) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instruments",
		Short: "Manage instruments",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Insert or update instruments from a YAML file, keyed by uid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open instruments file: %w", err)
			}
			defer f.Close()

			instruments, err := decodeInstruments(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			env, cleanup, err := initStore(cmd.Context(), cfgPath())
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := env.store.UpsertInstruments(cmd.Context(), instruments)
			if err != nil {
				return err
			}
			env.logger.Info("instruments imported",
				"file", args[0],
				"inserted", res.Inserted,
				"updated", res.Updated,
			)
			return nil
		},
	})
	return cmd
}
