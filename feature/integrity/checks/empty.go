package checks

import (
	"context"

	"termsync/core/deleter"
	"termsync/core/docstore"
)

// EmptinessReport tells whether a collection subtree holds any document.
type EmptinessReport struct {
	Collection string   `json:"collection"`
	Empty      bool     `json:"empty"`
	Remaining  int      `json:"remaining"`
	Sample     []string `json:"sample"`
}

// CheckEmpty counts the documents left under collection.
func CheckEmpty(ctx context.Context, store docstore.Store, collection string) (EmptinessReport, error) {
	rem, err := deleter.Count(ctx, store, collection)
	if err != nil {
		return EmptinessReport{Collection: collection}, err
	}
	sample := rem.Sample
	if sample == nil {
		sample = []string{}
	}
	return EmptinessReport{
		Collection: collection,
		Empty:      rem.Count == 0,
		Remaining:  rem.Count,
		Sample:     sample,
	}, nil
}
