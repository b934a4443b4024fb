package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mufat/mufat/pkg/report"
	"github.com/spf13/cobra"
)

var (
	reportDB      string
	reportMachine string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Query the report database",
}

var reportsDaysCmd = &cobra.Command{
	Use:   "days",
	Short: "List batch keys, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s *report.Store, db string) (any, error) {
			return s.Days(ctx, db)
		})
	},
}

var reportsMachinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "List the batch keys of every machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s *report.Store, db string) (any, error) {
			return s.MachineDays(ctx, db)
		})
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print the reports of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s *report.Store, db string) (any, error) {
			return s.Load(ctx, db, args[0], reportMachine)
		})
	},
}

func init() {
	reportsCmd.PersistentFlags().StringVar(&reportDB, "db", "",
		"report database (default: report.db from the config)")
	reportsShowCmd.Flags().StringVar(&reportMachine, "machine", "", "limit to one machine")

	reportsCmd.AddCommand(reportsDaysCmd, reportsMachinesCmd, reportsShowCmd)
	rootCmd.AddCommand(reportsCmd)
}

// withStore opens the report database of the api section, runs query and
// prints its result as JSON.
func withStore(
	cmd *cobra.Command,
	query func(ctx context.Context, s *report.Store, db string) (any, error),
) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	db := reportDB
	if db == "" {
		db = cfg.Report.DB
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := report.NewStore(log, &cfg.API.Database, nil)
	if err := store.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := store.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close report database")
		}
	}()

	out, err := query(ctx, store, db)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
