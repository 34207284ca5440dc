package cmd

import (
	"errors"
	"fmt"
	"strings"

	"termsync/core/database"
	"termsync/core/storage"
	"termsync/feature/integrity"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var validateFlag bool

// integrityCmd groups the operational checks.
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the sink schema and snapshot bucket",
	Long:  `Checks that the relational sink has the expected columns and that snapshot files in the bucket decode.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()
		return errors.Join(runSchemaCheck(cmd, r), runSnapshotCheck(cmd, r))
	},
}

// schemaCmd represents the integrity schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check the relational sink schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()
		return runSchemaCheck(cmd, r)
	},
}

// snapshotsCmd represents the integrity snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshot files and optionally decode them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRun(cmd)
		if err != nil {
			return err
		}
		defer r.finish()
		return runSnapshotCheck(cmd, r)
	},
}

func runSchemaCheck(cmd *cobra.Command, r *run) error {
	db, err := database.Connect(r.cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection required: %w", err)
	}
	svc := integrity.NewService(nil, nil, "", "", db, r.log)

	r.log.Info("Checking sink schema integrity...", zap.String("driver", r.cfg.Database.Driver))
	report, err := svc.CheckSchema(cmd.Context())
	if err != nil {
		return err
	}
	if report.Matched {
		r.log.Info("Sink schema matches expected definition.")
		return nil
	}
	for table, tbl := range report.Tables {
		if tbl.Status != "ok" {
			r.log.Warn("Missing Columns", zap.String("table", table), zap.Strings("columns", tbl.MissingColumns))
		}
	}
	for _, e := range report.Errors {
		r.log.Error("Inspection Error", zap.String("error", e))
	}
	return errors.New("sink schema mismatches found")
}

func runSnapshotCheck(cmd *cobra.Command, r *run) error {
	client, err := storage.NewClient(r.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	bucket, prefix := snapshotBucket(r.cfg)
	svc := integrity.NewService(nil, client, bucket, prefix, nil, r.log)

	objs, err := svc.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}
	r.log.Info("Snapshots found", zap.String("bucket", bucket), zap.String("prefix", prefix), zap.Int("count", len(objs)))
	if !validateFlag {
		return nil
	}

	var invalid []string
	for _, rep := range svc.ValidateSnapshots(cmd.Context(), objs) {
		if rep.Status != "ok" {
			invalid = append(invalid, rep.Key)
			continue
		}
		r.log.Info("Snapshot valid", zap.String("key", rep.Key), zap.Int("documents", rep.Documents))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid snapshots: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(schemaCmd, snapshotsCmd)

	integrityCmd.Flags().BoolVar(&validateFlag, "validate", false, "Decode every snapshot file")
	snapshotsCmd.Flags().BoolVar(&validateFlag, "validate", false, "Decode every snapshot file")
}
