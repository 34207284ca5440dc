package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"termsync/core/config"
	"termsync/core/deleter"
	"termsync/core/docstore"
	"termsync/core/docstore/memory"
	"termsync/core/metrics"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		yes   bool
		input string
		want  bool
	}{
		{name: "typed", input: "delete\n", want: true},
		{name: "typed without newline", input: "delete", want: true},
		{name: "wrong word", input: "yes\n", want: false},
		{name: "empty", input: "", want: false},
		{name: "yes flag", yes: true, input: "", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yesFlag = tt.yes
			t.Cleanup(func() { yesFlag = false })

			var out bytes.Buffer
			ok, err := confirm(strings.NewReader(tt.input), &out, "Danger.", "delete")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if !tt.yes {
				assert.Contains(t, out.String(), `Type "delete"`)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSON(path, map[string]int{"codes": 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got["codes"])
}

func TestSnapshotBucket(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Bucket = "assets"

	cfg.Snapshot.Location = "snapshots/terminology.json"
	bucket, prefix := snapshotBucket(cfg)
	assert.Equal(t, "assets", bucket)
	assert.Equal(t, "snapshots", prefix)

	cfg.Snapshot.Location = "s3://backups/daily/terminology.json"
	bucket, prefix = snapshotBucket(cfg)
	assert.Equal(t, "backups", bucket)
	assert.Equal(t, "daily", prefix)

	cfg.Snapshot.Location = "s3://backups/terminology.json"
	_, prefix = snapshotBucket(cfg)
	assert.Equal(t, "", prefix)
}

func TestRunLocation(t *testing.T) {
	r := &run{cfg: &config.Config{}}
	r.cfg.Snapshot.Location = "default.json"

	assert.Equal(t, "default.json", r.location(nil))
	assert.Equal(t, "s3://b/k.json", r.location([]string{"s3://b/k.json"}))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"export", "flatten", "load", "delete", "verify", "reset", "import", "start", "integrity"} {
		assert.True(t, names[want], want)
	}
}

func testRun(cfg deleter.Config) *run {
	r := &run{cfg: &config.Config{}, log: zap.NewNop(), metrics: metrics.New()}
	r.cfg.Deletion = cfg
	return r
}

func oneDocument(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.SetDocument(context.Background(), docstore.Ref("Terminology", "T1"), nil))
	return s
}

// stuckStore refuses every delete.
type stuckStore struct {
	docstore.Store
}

func (stuckStore) DeleteDocument(_ context.Context, ref docstore.DocumentRef) error {
	return &docstore.IOError{Op: "delete", Path: ref.Path(), Err: errors.New("unavailable")}
}

func TestDeleteAndVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("Drained", func(t *testing.T) {
		s := oneDocument(t)
		err := deleteAndVerify(ctx, deleteCmd, testRun(deleter.Config{BatchSize: 10, TimeBudget: time.Minute}), s, []string{"Terminology"})
		require.NoError(t, err)
		assert.Equal(t, 0, exitCode(err))
	})

	t.Run("Timed Out Is Resumable", func(t *testing.T) {
		s := oneDocument(t)
		err := deleteAndVerify(ctx, deleteCmd, testRun(deleter.Config{BatchSize: 10, TimeBudget: 0}), s, []string{"Terminology"})
		assert.ErrorIs(t, err, deleter.ErrTimedOut)
		assert.False(t, errors.Is(err, deleter.ErrVerificationFailed))
		assert.Equal(t, 0, exitCode(err))

		n, cerr := s.CountDescendants(ctx, "Terminology")
		require.NoError(t, cerr)
		assert.Equal(t, 1, n)
	})

	t.Run("Leftovers Fail Verification", func(t *testing.T) {
		s := stuckStore{Store: oneDocument(t)}
		err := deleteAndVerify(ctx, deleteCmd, testRun(deleter.Config{BatchSize: 10, TimeBudget: time.Minute}), s, []string{"Terminology"})
		assert.ErrorIs(t, err, deleter.ErrVerificationFailed)
		assert.Equal(t, 1, exitCode(err))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := deleteAndVerify(cctx, deleteCmd, testRun(deleter.Config{BatchSize: 10, TimeBudget: time.Minute}), oneDocument(t), []string{"Terminology"})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, deleter.ErrVerificationFailed))
		assert.Equal(t, 1, exitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: 0},
		{name: "timed out", err: fmt.Errorf("%w: Terminology", deleter.ErrTimedOut), want: 0},
		{name: "verification", err: fmt.Errorf("%w: Terminology", deleter.ErrVerificationFailed), want: 1},
		{name: "both", err: errors.Join(deleter.ErrTimedOut, deleter.ErrVerificationFailed), want: 1},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
