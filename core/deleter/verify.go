package deleter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"termsync/core/docstore"
	"termsync/core/walker"
)

const sampleSize = 5

// Remaining describes documents left under a collection.
type Remaining struct {
	Collection string
	Count      int
	// Sample holds up to five reachable paths.
	Sample []string
}

// Verify confirms that no document remains anywhere under collection. It
// returns ErrVerificationFailed, wrapped with the remaining count, when the
// subtree is not empty.
func (d *Deleter) Verify(ctx context.Context, collection string) (Remaining, error) {
	ctx, span := tracer.Start(ctx, "deleter.Verify")
	defer span.End()

	rem, err := Count(ctx, d.store, collection)
	if err != nil {
		return rem, err
	}
	if rem.Count > 0 {
		d.log.Error("Collection not empty after deletion",
			zap.String("collection", collection),
			zap.Int("remaining", rem.Count),
			zap.Strings("sample", rem.Sample),
		)
		return rem, fmt.Errorf("%w: %s still holds %d documents", ErrVerificationFailed, collection, rem.Count)
	}
	d.log.Info("Collection verified empty", zap.String("collection", collection))
	return rem, nil
}

// Count walks collection and counts what is left. Stores that can count
// unreachable descendants report those too.
func Count(ctx context.Context, store docstore.Store, collection string) (Remaining, error) {
	rem := Remaining{Collection: collection}
	w := walker.New(store, collection)
	for {
		e, err := w.Next(ctx)
		if errors.Is(err, walker.Done) {
			break
		}
		if err != nil {
			return rem, fmt.Errorf("verify %s: %w", collection, err)
		}
		if e.Missing {
			continue
		}
		rem.Count++
		if len(rem.Sample) < sampleSize {
			rem.Sample = append(rem.Sample, e.Ref.Path())
		}
	}
	if counter, ok := store.(docstore.DescendantCounter); ok {
		n, err := counter.CountDescendants(ctx, collection)
		if err != nil {
			return rem, fmt.Errorf("verify %s: %w", collection, err)
		}
		if n > rem.Count {
			rem.Count = n
		}
	}
	return rem, nil
}
