package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"termsync/core/deleter"
	"termsync/core/docstore"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	timeBudgetFlag time.Duration
	batchSizeFlag  int
)

// deleteCmd drains store collections within a time budget.
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete store collections and verify they are empty",
	Long: `Deletes the selected (default: all) root collections, subcollections first,
within --time-budget per collection. Every collection is verified afterwards,
including documents whose parents are already gone. Exits 1 when anything is
left. A collection that runs out of time is reported and not verified; the
run exits 0 and is safe to repeat. --dry-run only counts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()

		unlock, err := r.lock(ctx, storeLock)
		if err != nil {
			return err
		}
		defer unlock()

		store, err := r.openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		cols, err := r.collections(ctx, store)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			r.log.Info("Nothing to delete")
			return nil
		}

		if dryRunFlag {
			for _, c := range cols {
				rem, err := deleter.Count(ctx, store, c)
				if err != nil {
					return err
				}
				r.log.Info("Would delete", zap.String("collection", c), zap.Int("documents", rem.Count))
			}
			return nil
		}

		ok, err := confirm(os.Stdin, os.Stderr,
			fmt.Sprintf("This deletes %s from the %s store.", strings.Join(cols, ", "), r.cfg.Store.Backend), "delete")
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("deletion not confirmed")
		}

		return deleteAndVerify(ctx, cmd, r, store, cols)
	},
}

// deleteAndVerify runs the deleter over cols and verifies every collection
// that drained. Anything left after a drained deletion is fatal and the error
// wraps deleter.ErrVerificationFailed. Collections that ran out of time are
// not verified; the error then wraps deleter.ErrTimedOut and the run can be
// repeated to resume.
func deleteAndVerify(ctx context.Context, cmd *cobra.Command, r *run, store docstore.Store, cols []string) error {
	cfg := r.cfg.Deletion
	if cmd.Flags().Changed("time-budget") {
		cfg.TimeBudget = timeBudgetFlag
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = batchSizeFlag
	}
	d := deleter.New(store, cfg, deleter.WithLogger(r.log), deleter.WithMetrics(r.metrics))

	var (
		failed     []string
		unfinished []string
		errs       []error
	)
	for _, out := range d.DeleteAll(ctx, cols) {
		switch out.State {
		case deleter.StateEmpty:
			_, err := d.Verify(ctx, out.Collection)
			if errors.Is(err, deleter.ErrVerificationFailed) {
				failed = append(failed, out.Collection)
			} else if err != nil {
				errs = append(errs, err)
			}
		case deleter.StateTimedOut:
			unfinished = append(unfinished, out.Collection)
		default:
			errs = append(errs, fmt.Errorf("delete %s ended %s: %w", out.Collection, out.State, out.Err))
		}
	}
	if len(failed) > 0 {
		errs = append([]error{fmt.Errorf("%w: %s", deleter.ErrVerificationFailed, strings.Join(failed, ", "))}, errs...)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if len(unfinished) > 0 {
		r.log.Warn("Deletion timed out, run again to resume", zap.Strings("collections", unfinished))
		return fmt.Errorf("%w: %s", deleter.ErrTimedOut, strings.Join(unfinished, ", "))
	}
	return nil
}

// verifyCmd only checks that collections are empty.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify that store collections are empty",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()

		store, err := r.openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(collectionsFlag) == 0 {
			return errors.New("--collections is required")
		}
		d := deleter.New(store, r.cfg.Deletion, deleter.WithLogger(r.log))
		var failed []string
		for _, c := range collectionsFlag {
			if _, err := d.Verify(ctx, c); err != nil {
				failed = append(failed, c)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%w: %s", deleter.ErrVerificationFailed, strings.Join(failed, ", "))
		}
		return nil
	},
}

func addDeletionFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&timeBudgetFlag, "time-budget", 300*time.Second, "Time budget per collection")
	cmd.Flags().IntVar(&batchSizeFlag, "batch-size", 10, "Documents listed per batch")
	cmd.Flags().BoolVar(&yesFlag, "yes", false, "Skip the confirmation prompt")
}

func init() {
	RootCmd.AddCommand(deleteCmd, verifyCmd)
	addDeletionFlags(deleteCmd)
	deleteCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Count documents without deleting")
}
