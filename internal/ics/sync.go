package ics

import (
	"context"
	"fmt"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// FetchDrafts fetches every source and imports it within cfg's window.
// Per-source failures are logged and returned; drafts from healthy sources
// are still returned.
func (f *Fetcher) FetchDrafts(ctx context.Context, sources []Source, cfg ExpandConfig) ([]model.Draft, []error) {
	results, errs := f.FetchAll(ctx, sources)

	drafts := make([]model.Draft, 0)
	for _, res := range results {
		d, exp, err := Import(res.Body, cfg)
		if err != nil {
			appLog.Error("ics import failed for source", err, "id", res.Source.ID)
			errs = append(errs, fmt.Errorf("import %s: %w", res.Source.ID, err))
			continue
		}
		appLog.Info("ics source imported",
			"id", res.Source.ID,
			"occurrences", len(exp.Occurrences),
			"truncated", len(exp.TruncatedEvents),
			"from_cache", res.FromCache,
		)
		drafts = append(drafts, d...)
	}
	return drafts, errs
}
