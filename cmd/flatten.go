package cmd

import (
	"termsync/feature/terminology/flatten"
	"termsync/feature/terminology/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flattenSnapshotFlag string
	flattenOutFlag      string
)

// flattenCmd prints the flat entity view of the terminology collection.
var flattenCmd = &cobra.Command{
	Use:   "flatten",
	Short: "Flatten the terminology collection to JSON",
	Long: `Flattens the terminology collection into terminologies, codes, mappings and
orphan records. Reads the document store, or a snapshot with --snapshot. The
store is read under the run lock so a concurrent delete cannot interleave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()

		f := flatten.New(
			flatten.WithLogger(r.log),
			flatten.WithMetrics(r.metrics),
			flatten.WithPageSize(r.cfg.Store.PageSize),
		)

		var flat *models.FlattenResult
		if flattenSnapshotFlag != "" {
			snap, err := r.loadSnapshot(ctx, flattenSnapshotFlag)
			if err != nil {
				return err
			}
			tree, err := snap.Tree(r.cfg.Store.Collection)
			if err != nil {
				return err
			}
			if flat, err = f.FlattenTree(ctx, tree); err != nil {
				return err
			}
		} else {
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
			if flat, err = f.Flatten(ctx, store, r.cfg.Store.Collection); err != nil {
				return err
			}
		}

		if len(flat.Failures) > 0 {
			r.log.Warn("Some terminologies could not be flattened", zap.Int("failures", len(flat.Failures)))
		}
		return writeJSON(flattenOutFlag, flat)
	},
}

func init() {
	RootCmd.AddCommand(flattenCmd)
	flattenCmd.Flags().StringVar(&flattenSnapshotFlag, "snapshot", "", "Flatten this snapshot location instead of the store")
	flattenCmd.Flags().StringVarP(&flattenOutFlag, "out", "o", "-", "Output file, - for stdout")
}
