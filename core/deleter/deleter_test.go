package deleter_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termsync/core/deleter"
	"termsync/core/docstore"
	"termsync/core/docstore/memory"
	"termsync/core/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// slowStore advances the clock on every delete and fails deletes of ids in fail.
type slowStore struct {
	docstore.Store
	clock *fakeClock
	step  time.Duration
	fail  map[string]bool
}

func (s *slowStore) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	if s.clock != nil {
		s.clock.Advance(s.step)
	}
	if s.fail[ref.ID] {
		return &docstore.IOError{Op: "delete", Path: ref.Path(), Err: errors.New("unavailable")}
	}
	return s.Store.DeleteDocument(ctx, ref)
}

func terminologyTree() *docstore.Tree {
	tree := docstore.NewTree("Terminology")
	for _, tid := range []string{"T1", "T2"} {
		d := tree.Put(tid, docstore.Fields{"name": docstore.String(tid)})
		for _, code := range []string{"A", "B", "C"} {
			d.Subcollection("codes").Put(code, nil)
		}
		m := d.Subcollection("mappings").Put("A", nil)
		m.Subcollection("notes").Put("n1", nil)
	}
	return tree
}

func count(t *testing.T, s docstore.DescendantCounter, coll string) int {
	t.Helper()
	n, err := s.CountDescendants(context.Background(), coll)
	require.NoError(t, err)
	return n
}

func TestDeleteDrainsSubtree(t *testing.T) {
	ctx := context.Background()
	s := memory.FromTrees(terminologyTree())
	require.Equal(t, 12, count(t, s, "Terminology"))

	m := metrics.New()
	d := deleter.New(s, deleter.Config{BatchSize: 1, TimeBudget: time.Minute, SubTimeBudget: time.Second},
		deleter.WithMetrics(m))
	out := d.Delete(ctx, "Terminology")

	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Equal(t, 2, out.DocumentsDeleted)
	assert.Equal(t, 10, out.DescendantsDeleted)
	assert.Zero(t, out.Failed)
	assert.NoError(t, out.Err)
	assert.Zero(t, count(t, s, "Terminology"))

	rem, err := d.Verify(ctx, "Terminology")
	require.NoError(t, err)
	assert.Zero(t, rem.Count)
}

func TestZeroBudgetLeavesTreeUntouched(t *testing.T) {
	s := memory.FromTrees(terminologyTree())
	d := deleter.New(s, deleter.Config{BatchSize: 10, TimeBudget: 0})

	out := d.Delete(context.Background(), "Terminology")
	assert.Equal(t, deleter.StateTimedOut, out.State)
	assert.ErrorIs(t, out.Err, deleter.ErrTimedOut)
	assert.Zero(t, out.Total())
	assert.Equal(t, 12, count(t, s, "Terminology"))
}

func TestTimeBudgetStopsBetweenBatches(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	base := memory.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, base.SetDocument(context.Background(), docstore.Ref("C", fmt.Sprintf("d%d", i)), nil))
	}
	s := &slowStore{Store: base, clock: clock, step: time.Second}
	d := deleter.New(s, deleter.Config{BatchSize: 1, TimeBudget: 2 * time.Second}, deleter.WithClock(clock.Now))

	out := d.Delete(context.Background(), "C")
	assert.Equal(t, deleter.StateTimedOut, out.State)
	assert.Equal(t, 2, out.DocumentsDeleted)
	assert.Equal(t, 3, count(t, base, "C"))

	// A second run resumes where the first stopped.
	d = deleter.New(s, deleter.Config{BatchSize: 10, TimeBudget: time.Hour}, deleter.WithClock(clock.Now))
	out = d.Delete(context.Background(), "C")
	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Equal(t, 3, out.DocumentsDeleted)
}

func TestSubcollectionTimeoutKeepsParent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tree := docstore.NewTree("Terminology")
	d1 := tree.Put("T1", nil)
	for _, code := range []string{"A", "B", "C"} {
		d1.Subcollection("codes").Put(code, nil)
	}
	base := memory.FromTrees(tree)
	s := &slowStore{Store: base, clock: clock, step: time.Second}

	d := deleter.New(s, deleter.Config{BatchSize: 1, TimeBudget: time.Hour, SubTimeBudget: time.Second},
		deleter.WithClock(clock.Now))
	out := d.Delete(context.Background(), "Terminology")

	assert.Equal(t, deleter.StateTimedOut, out.State)
	assert.Zero(t, out.DocumentsDeleted)
	assert.Equal(t, 1, out.DescendantsDeleted)
	_, err := base.GetDocument(context.Background(), docstore.Ref("Terminology", "T1"))
	assert.NoError(t, err)
}

func TestFailedDocumentDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, base.SetDocument(ctx, docstore.Ref("C", id), nil))
	}
	s := &slowStore{Store: base, fail: map[string]bool{"b": true}}
	d := deleter.New(s, deleter.Config{BatchSize: 10, TimeBudget: time.Minute})

	out := d.Delete(ctx, "C")
	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Equal(t, 2, out.DocumentsDeleted)
	assert.Equal(t, 1, out.Failed)

	rem, err := d.Verify(ctx, "C")
	assert.ErrorIs(t, err, deleter.ErrVerificationFailed)
	assert.Equal(t, 1, rem.Count)
	assert.Equal(t, []string{"C/b"}, rem.Sample)
}

func TestFailedChildKeepsParent(t *testing.T) {
	ctx := context.Background()
	tree := docstore.NewTree("Terminology")
	tree.Put("T1", nil).Subcollection("codes").Put("bad", nil)
	base := memory.FromTrees(tree)
	s := &slowStore{Store: base, fail: map[string]bool{"bad": true}}

	out := deleter.New(s, deleter.Config{BatchSize: 10, TimeBudget: time.Minute}).Delete(ctx, "Terminology")
	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Zero(t, out.DocumentsDeleted)
	assert.Equal(t, 2, out.Failed)
	_, err := base.GetDocument(ctx, docstore.Ref("Terminology", "T1"))
	assert.NoError(t, err)
}

func TestConcurrentSiblings(t *testing.T) {
	ctx := context.Background()
	tree := docstore.NewTree("C")
	for i := 0; i < 25; i++ {
		tree.Put(fmt.Sprintf("d%02d", i), nil).Subcollection("sub").Put("x", nil)
	}
	s := memory.FromTrees(tree)
	d := deleter.New(s, deleter.Config{BatchSize: 7, TimeBudget: time.Minute, Concurrency: 4})

	out := d.Delete(ctx, "C")
	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Equal(t, 50, out.Total())
	_, err := d.Verify(ctx, "C")
	assert.NoError(t, err)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := memory.FromTrees(terminologyTree())
	d := deleter.New(s, deleter.DefaultConfig())

	outs := d.DeleteAll(ctx, []string{"Terminology", "Other"})
	require.Len(t, outs, 2)
	for _, out := range outs {
		assert.Equal(t, deleter.StateCancelled, out.State)
		assert.True(t, out.State.Terminal())
	}
	assert.Equal(t, 12, count(t, s, "Terminology"))
}

func TestVerifyFindsUnreachableDescendants(t *testing.T) {
	ctx := context.Background()
	s := memory.FromTrees(terminologyTree())
	// Deleting parents directly leaves their subcollections behind.
	require.NoError(t, s.DeleteDocument(ctx, docstore.Ref("Terminology", "T1")))
	require.NoError(t, s.DeleteDocument(ctx, docstore.Ref("Terminology", "T2")))

	rem, err := deleter.New(s, deleter.DefaultConfig()).Verify(ctx, "Terminology")
	assert.ErrorIs(t, err, deleter.ErrVerificationFailed)
	assert.Equal(t, 10, rem.Count)
	assert.Len(t, rem.Sample, 5)
	assert.Contains(t, rem.Sample, "Terminology/T1/codes/A")
}

// listingOnly hides the descendant counter, so only listing can find what is
// left below deleted parents.
type listingOnly struct {
	docstore.Store
}

func TestOrphanedSubtreesAreDeletedAndVerified(t *testing.T) {
	ctx := context.Background()
	base := memory.FromTrees(terminologyTree())
	require.NoError(t, base.DeleteDocument(ctx, docstore.Ref("Terminology", "T1")))
	s := listingOnly{Store: base}
	d := deleter.New(s, deleter.DefaultConfig())

	rem, err := d.Verify(ctx, "Terminology")
	assert.ErrorIs(t, err, deleter.ErrVerificationFailed)
	assert.Equal(t, 11, rem.Count)

	out := d.Delete(ctx, "Terminology")
	assert.Equal(t, deleter.StateEmpty, out.State)
	assert.Zero(t, out.Failed)
	assert.Zero(t, count(t, base, "Terminology"))

	_, err = d.Verify(ctx, "Terminology")
	assert.NoError(t, err)
}

func TestNestedBudgetIsSmallerThanParent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	tree := docstore.NewTree("Terminology")
	d1 := tree.Put("T1", nil)
	for _, code := range []string{"A", "B", "C"} {
		d1.Subcollection("codes").Put(code, nil)
	}
	base := memory.FromTrees(tree)
	s := &slowStore{Store: base, clock: clock, step: 20 * time.Minute}

	// No sub budget configured: codes get half of the hour.
	d := deleter.New(s, deleter.Config{BatchSize: 1, TimeBudget: time.Hour}, deleter.WithClock(clock.Now))
	out := d.Delete(context.Background(), "Terminology")

	assert.Equal(t, deleter.StateTimedOut, out.State)
	assert.Equal(t, 2, out.DescendantsDeleted)
	assert.Zero(t, out.DocumentsDeleted)
}

// cancellingStore cancels the run after the first successful delete.
type cancellingStore struct {
	docstore.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) DeleteDocument(ctx context.Context, ref docstore.DocumentRef) error {
	err := s.Store.DeleteDocument(ctx, ref)
	s.cancel()
	return err
}

func TestCancelMidBatchIsNotCountedAsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	base := memory.New()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, base.SetDocument(ctx, docstore.Ref("C", id), nil))
	}
	s := &cancellingStore{Store: base, cancel: cancel}

	out := deleter.New(s, deleter.Config{BatchSize: 10, TimeBudget: time.Minute}).Delete(ctx, "C")
	assert.Equal(t, deleter.StateCancelled, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, 1, out.DocumentsDeleted)
	assert.Zero(t, out.Failed)
	assert.Equal(t, 2, count(t, base, "C"))
}
