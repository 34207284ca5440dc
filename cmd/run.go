package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"termsync/core/config"
	"termsync/core/coord"
	"termsync/core/docstore"
	"termsync/core/docstore/backend"
	"termsync/core/logger"
	"termsync/core/metrics"
	"termsync/core/snapshot"
	"termsync/core/tracing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// storeLock serialises every command that writes the document store.
const storeLock = "store"

// run carries what every command needs: configuration, a logger tagged with
// the run id, metrics and the tracer shutdown hook.
type run struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	id       string
	shutdown tracing.Shutdown
}

func newRun(cmd *cobra.Command) (*run, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if projectFlag != "" {
		cfg.Store.Firestore.ProjectID = projectFlag
	}
	if databaseFlag != "" {
		cfg.Store.Firestore.Database = databaseFlag
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	id := uuid.NewString()
	logg = logger.WithRunID(logg, id).With(zap.String("command", cmd.Name()))

	shutdown, err := tracing.Setup(cfg.Tracing, "termsync")
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	logg.Debug("Run started", zap.String("store", cfg.Store.Backend))
	return &run{cfg: cfg, log: logg, metrics: metrics.New(), id: id, shutdown: shutdown}, nil
}

// finish writes the metrics textfile and flushes spans.
func (r *run) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		r.log.Warn("Failed to write metrics textfile", zap.String("path", r.cfg.Metrics.Textfile), zap.Error(err))
	}
	if err := r.shutdown(ctx); err != nil {
		r.log.Warn("Failed to flush traces", zap.Error(err))
	}
	_ = r.log.Sync()
}

func (r *run) openStore(ctx context.Context) (*backend.Handle, error) {
	h, err := backend.Open(ctx, r.cfg.Store, r.cfg.Storage, r.log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", r.cfg.Store.Backend, err)
	}
	return h, nil
}

// collections returns the --collections flag, or every root collection.
func (r *run) collections(ctx context.Context, store docstore.Store) ([]string, error) {
	if len(collectionsFlag) > 0 {
		return collectionsFlag, nil
	}
	cols, err := store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// lock takes the named run lock. The returned func releases it.
func (r *run) lock(ctx context.Context, name string) (func(), error) {
	locker, err := coord.New(r.cfg.Redis, r.log)
	if err != nil {
		return nil, err
	}
	release, err := locker.Acquire(ctx, name)
	if err != nil {
		_ = locker.Close()
		return nil, err
	}
	return func() {
		if err := release(context.Background()); err != nil {
			r.log.Warn("Failed to release run lock", zap.String("lock", name), zap.Error(err))
		}
		_ = locker.Close()
	}, nil
}

func (r *run) location(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return r.cfg.Snapshot.Location
}

func (r *run) loadSnapshot(ctx context.Context, location string) (*snapshot.Snapshot, error) {
	backends, closeFn, err := snapshot.OpenBackends(ctx, location, r.cfg.Snapshot, r.cfg.Storage)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	snap, err := backends.Load(ctx, location)
	if err != nil {
		return nil, err
	}
	n, err := snap.Count()
	if err != nil {
		return nil, err
	}
	r.log.Info("Snapshot loaded", zap.String("location", location), zap.Int("documents", n))
	return snap, nil
}

// confirm asks the operator to type want. --yes skips the prompt.
func confirm(in io.Reader, out io.Writer, prompt, want string) (bool, error) {
	if yesFlag {
		return true, nil
	}
	fmt.Fprintf(out, "%s\nType %q to continue: ", prompt, want)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.TrimSpace(line) == want, nil
}

// writeJSON writes v to path, or to stdout when path is "-".
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if path == "" || path == "-" {
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save JSON file: %w", err)
	}
	return nil
}
