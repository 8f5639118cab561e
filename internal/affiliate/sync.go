package affiliate

import (
	"context"
	"time"

	"pawhub/ingest-service/internal/ingest"
	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/normalize"
)

// Fetcher retrieves the raw feed of a network.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]byte, error)
}

// ProductStrategy is the affiliate-sync side of the ingestion pipeline.
type ProductStrategy struct {
	fetcher Fetcher
}

// NewProductStrategy constructs a ProductStrategy.
func NewProductStrategy(fetcher Fetcher) *ProductStrategy {
	return &ProductStrategy{fetcher: fetcher}
}

func (s *ProductStrategy) Fetch(ctx context.Context, src model.Source) ([]byte, error) {
	return s.fetcher.Fetch(ctx, src)
}

func (s *ProductStrategy) Extract(payload []byte, src model.Source, limit int) []model.AffiliateItem {
	return Extract(payload, src, limit)
}

func (s *ProductStrategy) Normalize(item model.AffiliateItem, src model.Source, now time.Time) (model.Product, error) {
	return normalize.Product(item, src, now)
}

// NaturalKey is the network-prefixed external id, unique across networks.
func (s *ProductStrategy) NaturalKey(p model.Product) string {
	return p.ExternalID
}

// NewJob wires the affiliate sync job over every active affiliate network.
func NewJob(
	sources ingest.SourceStore,
	fetcher Fetcher,
	reconcile ingest.ReconcileFunc[model.Product],
	opts ingest.Options,
) *ingest.Job[model.AffiliateItem, model.Product] {
	return ingest.New[model.AffiliateItem, model.Product](
		model.KindAffiliate, sources, NewProductStrategy(fetcher), reconcile, opts)
}
