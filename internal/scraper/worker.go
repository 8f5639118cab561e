package scraper

import (
	"context"
	"time"

	"pawhub/ingest-service/internal/ingest"
	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/normalize"
)

// Fetcher retrieves the raw page of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]byte, error)
}

// ListingStrategy is the ad-scrape side of the ingestion pipeline: HTML
// pages in, listings keyed by their resolved ad URL out.
type ListingStrategy struct {
	fetcher Fetcher
}

// NewListingStrategy constructs a ListingStrategy.
func NewListingStrategy(fetcher Fetcher) *ListingStrategy {
	return &ListingStrategy{fetcher: fetcher}
}

func (s *ListingStrategy) Fetch(ctx context.Context, src model.Source) ([]byte, error) {
	return s.fetcher.Fetch(ctx, src)
}

func (s *ListingStrategy) Extract(payload []byte, src model.Source, limit int) []model.RawCandidate {
	return Extract(payload, src, limit)
}

func (s *ListingStrategy) Normalize(c model.RawCandidate, src model.Source, now time.Time) (model.Listing, error) {
	return normalize.Listing(c, src, now)
}

// NaturalKey is the listing's source URL; the store scopes it by source.
func (s *ListingStrategy) NaturalKey(l model.Listing) string {
	return l.SourceURL
}

// NewJob wires the ad scrape job: every active scrape source is fetched,
// its containers extracted and each listing reconciled.
func NewJob(
	sources ingest.SourceStore,
	fetcher Fetcher,
	reconcile ingest.ReconcileFunc[model.Listing],
	opts ingest.Options,
) *ingest.Job[model.RawCandidate, model.Listing] {
	return ingest.New[model.RawCandidate, model.Listing](
		model.KindScrape, sources, NewListingStrategy(fetcher), reconcile, opts)
}
