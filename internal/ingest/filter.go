package ingest

import (
	"context"

	"pawhub/ingest-service/internal/model"
)

type filteredSources struct {
	SourceStore
	match func(model.Source) bool
}

// FilterSources narrows inner to the active sources match accepts. Used by
// operator runs that target a subset of sources.
func FilterSources(inner SourceStore, match func(model.Source) bool) SourceStore {
	if match == nil {
		return inner
	}
	return &filteredSources{SourceStore: inner, match: match}
}

func (f *filteredSources) ActiveSources(ctx context.Context, kind model.SourceKind) ([]model.Source, error) {
	all, err := f.SourceStore.ActiveSources(ctx, kind)
	if err != nil {
		return nil, err
	}
	var out []model.Source
	for _, src := range all {
		if f.match(src) {
			out = append(out, src)
		}
	}
	return out, nil
}
