package cmd

import (
	"fmt"

	"termsync/core/snapshot"
	"termsync/feature/terminology/flatten"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportFlatFlag string

// exportCmd writes store collections to a portable snapshot.
var exportCmd = &cobra.Command{
	Use:   "export [location]",
	Short: "Export store collections to a snapshot",
	Long: `Walks the selected (default: all) root collections of the document store and
writes them as one snapshot. The location is a file path, s3://bucket/key or
gs://bucket/key. With --flat the flattened terminology view is written too.`,
	Args: cobra.MaximumNArgs(1),
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

		location := r.location(args)
		snap, err := snapshot.Export(ctx, store, collectionsFlag, r.cfg.Store.PageSize, r.metrics)
		if err != nil {
			return err
		}

		backends, closeFn, err := snapshot.OpenBackends(ctx, location, r.cfg.Snapshot, r.cfg.Storage)
		if err != nil {
			return err
		}
		defer closeFn()
		if err := backends.Save(ctx, location, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}

		n, err := snap.Count()
		if err != nil {
			return err
		}
		r.log.Info("Snapshot exported",
			zap.String("location", location),
			zap.Int("collections", len(snap.Collections)),
			zap.Int("documents", n),
		)

		if exportFlatFlag == "" {
			return nil
		}
		tree, err := snap.Tree(r.cfg.Store.Collection)
		if err != nil {
			return err
		}
		flat, err := flatten.New(flatten.WithLogger(r.log), flatten.WithMetrics(r.metrics)).FlattenTree(ctx, tree)
		if err != nil {
			return err
		}
		if err := writeJSON(exportFlatFlag, flat); err != nil {
			return err
		}
		r.log.Info("Flat view saved", zap.String("file", exportFlatFlag))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFlatFlag, "flat", "", "Also write the flattened terminology JSON to this file")
}
