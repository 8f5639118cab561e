package store

import (
	"context"

	"github.com/google/uuid"

	"pawhub/ingest-service/internal/model"
)

// ReconcileListing inserts l, or updates the listing already stored under
// (l.SourceID, key). It reports whether a row was created. The row's id and
// created_at are never changed by an update.
func (s *Store) ReconcileListing(ctx context.Context, l model.Listing, key string) (bool, error) {
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO listings (
		   id, source_id, source_name, source_url, title, description, price, currency,
		   location, image_urls, category, tags, breed, age, gender,
		   contact_email, contact_phone, last_seen_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (source_id, source_url) DO UPDATE SET
		   source_name   = EXCLUDED.source_name,
		   title         = EXCLUDED.title,
		   description   = EXCLUDED.description,
		   price         = EXCLUDED.price,
		   currency      = EXCLUDED.currency,
		   location      = EXCLUDED.location,
		   image_urls    = EXCLUDED.image_urls,
		   category      = EXCLUDED.category,
		   tags          = EXCLUDED.tags,
		   breed         = EXCLUDED.breed,
		   age           = EXCLUDED.age,
		   gender        = EXCLUDED.gender,
		   contact_email = EXCLUDED.contact_email,
		   contact_phone = EXCLUDED.contact_phone,
		   last_seen_at  = EXCLUDED.last_seen_at,
		   updated_at    = now()
		 RETURNING (xmax = 0)`,
		id, l.SourceID, l.SourceName, key, l.Title, l.Description, l.Price, l.Currency,
		l.Location, nonNil(l.ImageURLs), l.Category, nonNil(l.Tags), l.Breed, l.Age, l.Gender,
		l.ContactEmail, l.ContactPhone, l.LastSeenAt,
	).Scan(&created)
	if err != nil {
		return false, wrap("reconcile listing", err)
	}
	return created, nil
}

// ReconcileProduct inserts p, or updates the product already stored under
// the external id key. Editorial fields (is_featured) and identity are
// preserved on update.
func (s *Store) ReconcileProduct(ctx context.Context, p model.Product, key string) (bool, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (
		   id, network_id, external_id, title, description, short_description, price,
		   original_price, currency, image_url, category, subcategory, brand,
		   affiliate_link, seo_title, seo_description, tags, last_price_check, is_featured
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, false)
		 ON CONFLICT (external_id) DO UPDATE SET
		   network_id        = EXCLUDED.network_id,
		   title             = EXCLUDED.title,
		   description       = EXCLUDED.description,
		   short_description = EXCLUDED.short_description,
		   price             = EXCLUDED.price,
		   original_price    = EXCLUDED.original_price,
		   currency          = EXCLUDED.currency,
		   image_url         = EXCLUDED.image_url,
		   category          = EXCLUDED.category,
		   subcategory       = EXCLUDED.subcategory,
		   brand             = EXCLUDED.brand,
		   affiliate_link    = EXCLUDED.affiliate_link,
		   seo_title         = EXCLUDED.seo_title,
		   seo_description   = EXCLUDED.seo_description,
		   tags              = EXCLUDED.tags,
		   last_price_check  = EXCLUDED.last_price_check,
		   updated_at        = now()
		 RETURNING (xmax = 0)`,
		id, p.NetworkID, key, p.Title, p.Description, p.ShortDescription, p.Price,
		p.OriginalPrice, p.Currency, p.ImageURL, p.Category, p.Subcategory, p.Brand,
		p.AffiliateLink, p.SEOTitle, p.SEODescription, nonNil(p.Tags), p.LastPriceCheck,
	).Scan(&created)
	if err != nil {
		return false, wrap("reconcile product", err)
	}
	return created, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
