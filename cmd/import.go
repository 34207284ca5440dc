package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"termsync/core/docstore"
	"termsync/core/snapshot"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// importCmd writes a snapshot into the document store.
var importCmd = &cobra.Command{
	Use:   "import [location]",
	Short: "Import a snapshot into the store",
	Long: `Writes every document of a snapshot into the document store. A failed write
is counted and the import moves on. Exits 1 if any document failed.`,
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

		return importSnapshot(ctx, r, store, snap)
	},
}

func importSnapshot(ctx context.Context, r *run, store docstore.Store, snap *snapshot.Snapshot) error {
	rep, err := snapshot.Import(ctx, store, snap, r.log, r.metrics)
	r.log.Info("Import finished", zap.Int("documents", rep.Documents), zap.Int("failed", rep.Failed))
	if err != nil {
		return err
	}
	if rep.Failed > 0 {
		return fmt.Errorf("import: %d documents failed", rep.Failed)
	}
	return nil
}

// resetCmd replaces store collections with the content of a snapshot.
var resetCmd = &cobra.Command{
	Use:   "reset [location]",
	Short: "Delete store collections and import a snapshot in their place",
	Long: `Deletes every root collection present in the snapshot (or --collections),
verifies they are empty, then imports the snapshot. Runs under the run lock
and asks for confirmation unless --yes is given.`,
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
		cols := collectionsFlag
		if len(cols) == 0 {
			for name := range snap.Collections {
				cols = append(cols, name)
			}
			sort.Strings(cols)
		}

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

		ok, err := confirm(os.Stdin, os.Stderr,
			fmt.Sprintf("This replaces %s in the %s store.", strings.Join(cols, ", "), r.cfg.Store.Backend), "reset")
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("reset not confirmed")
		}

		if err := deleteAndVerify(ctx, cmd, r, store, cols); err != nil {
			return err
		}
		return importSnapshot(ctx, r, store, snap)
	},
}

func init() {
	RootCmd.AddCommand(importCmd, resetCmd)
	addDeletionFlags(resetCmd)
}
