package cmd

import (
	"errors"
	"fmt"
	"os"

	"termsync/core/database"
	"termsync/feature/terminology/flatten"
	"termsync/feature/terminology/reconstruct"
	"termsync/feature/terminology/sink"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	loadResetFlag  bool
	loadReportFlag string
)

// loadCmd replays a snapshot into the relational sink.
var loadCmd = &cobra.Command{
	Use:   "load [location]",
	Short: "Load a snapshot into the relational sink",
	Long: `Reads a snapshot, flattens its terminology collection and replays the result
into the configured database: terminologies, codes, mappings, provenance, then
annotations. Rejected entities are reported, not fatal. With --reset the sink
tables are dropped and recreated first. --dry-run stops after flattening.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()

		snap, err := r.loadSnapshot(ctx, r.location(args))
		if err != nil {
			return err
		}
		tree, err := snap.Tree(r.cfg.Store.Collection)
		if err != nil {
			return err
		}
		flat, err := flatten.New(flatten.WithLogger(r.log), flatten.WithMetrics(r.metrics)).FlattenTree(ctx, tree)
		if err != nil {
			return err
		}
		if dryRunFlag {
			r.log.Info("Dry run, nothing loaded")
			return writeJSON("-", flat.Summary())
		}

		db, err := database.Connect(r.cfg.Database)
		if err != nil {
			return fmt.Errorf("database connection required: %w", err)
		}
		s := sink.New(db, r.log)

		if loadResetFlag {
			ok, err := confirm(os.Stdin, os.Stderr,
				fmt.Sprintf("This drops every terminology table in database %q.", r.cfg.Database.Name), "reset")
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("reset not confirmed")
			}
			if err := s.Reset(ctx); err != nil {
				return err
			}
		} else if err := s.Migrate(ctx); err != nil {
			return err
		}

		missing, err := s.MissingColumns(ctx)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			for table, cols := range missing {
				r.log.Error("Sink table is missing columns", zap.String("table", table), zap.Strings("columns", cols))
			}
			return errors.New("sink schema does not match, run with --reset or migrate manually")
		}

		rep, err := reconstruct.New(reconstruct.WithLogger(r.log), reconstruct.WithMetrics(r.metrics)).Reconstruct(ctx, flat, s)
		if err != nil {
			return err
		}
		r.log.Info("Load finished",
			zap.Int("applied", rep.TotalApplied()),
			zap.Int("rejected", len(rep.Rejected)),
			zap.Int("code_not_present", rep.RejectedOf(reconstruct.KindCodeNotPresent)),
			zap.Int("skipped", rep.Skipped),
			zap.Int("failed_terminologies", len(rep.FailedTerminologies)),
			zap.Int("orphan_codes", len(rep.OrphanCodes)),
			zap.Int("orphan_mappings", len(rep.OrphanMappings)),
		)
		if loadReportFlag != "" {
			if err := writeJSON(loadReportFlag, rep); err != nil {
				return err
			}
			r.log.Info("Load report saved", zap.String("file", loadReportFlag))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(loadCmd)
	loadCmd.Flags().BoolVar(&loadResetFlag, "reset", false, "Drop and recreate the sink tables before loading")
	loadCmd.Flags().BoolVar(&yesFlag, "yes", false, "Skip the confirmation prompt")
	loadCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Flatten only and print the counts")
	loadCmd.Flags().StringVar(&loadReportFlag, "report", "", "Write the full load report JSON to this file")
}
