// Package deleter removes whole document subtrees in bounded batches.
//
// A collection is drained batch by batch. Each document's subcollections are
// deleted first, each under its own smaller time budget, and the document
// itself last, so a partially deleted subtree stays reachable from its root.
// Budgets are checked cooperatively between batches; a collection that runs
// out of time stops in TIMED_OUT with a partial count and can be resumed by
// running the deletion again.
//
// Verify confirms afterwards that nothing is left anywhere below a
// collection. A failed verification means a concurrent writer or a store bug
// and is never retried automatically.
package deleter
