// Package model defines shared data structures for the ingest service.
package model

import (
	"encoding/json"
	"time"
)

// SourceKind selects which ingestion job reads a source.
type SourceKind string

const (
	KindScrape    SourceKind = "scrape"    // classifieds site scraped for listings
	KindAffiliate SourceKind = "affiliate" // affiliate network product feed
)

// Source mirrors a sources table row: one scrape site or affiliate network.
// Administered out-of-band; the pipeline only writes LastRunAt.
type Source struct {
	ID        string     `json:"id" yaml:"id"` // also the network identifier for affiliate sources
	Name      string     `json:"name" yaml:"name"`
	Kind      SourceKind `json:"kind" yaml:"kind"`
	BaseURL   string     `json:"baseUrl" yaml:"base_url"`
	FetchURL  string     `json:"fetchUrl" yaml:"fetch_url"`
	Rules     RuleSet    `json:"rules" yaml:"rules"`
	Active    bool       `json:"active" yaml:"active"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty" yaml:"-"`

	// RulesErr is set when the stored rules could not be decoded. Such a
	// source is reported by every run and never fetched.
	RulesErr error `json:"-" yaml:"-"`
}

// DisplayName is the name used in run-log error entries.
func (s Source) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// RawCandidate is one container matched by the field extractor.
// It never reaches the store directly.
type RawCandidate struct {
	Title        string
	PriceText    string
	LocationText string
	Description  string
	ImageURLs    []string
	LinkURL      string

	// Derived by the extractor heuristics.
	Price    *float64
	Currency string
	Location string
	Breed    string
	Age      *string
	Gender   string
}

// AffiliateItem is one product record decoded from an affiliate network feed.
type AffiliateItem struct {
	ExternalID    string
	Title         string
	Description   string
	Price         *float64
	OriginalPrice *float64
	Currency      string
	ImageURL      string
	Category      string
	Brand         string
	Link          string
}

// Listing is a canonical pet classified. SourceURL is its natural key
// within SourceID.
type Listing struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"sourceId"`
	SourceName   string    `json:"sourceName"`
	SourceURL    string    `json:"sourceUrl"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Price        *float64  `json:"price"`
	Currency     string    `json:"currency"`
	Location     string    `json:"location"`
	ImageURLs    []string  `json:"imageUrls"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	Breed        string    `json:"breed"`
	Age          *string   `json:"age"`
	Gender       string    `json:"gender"`
	ContactEmail *string   `json:"contactEmail"`
	ContactPhone *string   `json:"contactPhone"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// Product is a canonical affiliate shop item. ExternalID is
// "{network}_{externalId}" and unique across the products table.
type Product struct {
	ID               string    `json:"id"`
	NetworkID        string    `json:"networkId"`
	ExternalID       string    `json:"externalId"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"shortDescription"`
	Price            float64   `json:"price"`
	OriginalPrice    *float64  `json:"originalPrice"`
	Currency         string    `json:"currency"`
	ImageURL         string    `json:"imageUrl"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	Brand            string    `json:"brand"`
	AffiliateLink    string    `json:"affiliateLink"`
	SEOTitle         string    `json:"seoTitle"`
	SEODescription   string    `json:"seoDescription"`
	Tags             []string  `json:"tags"`
	LastPriceCheck   time.Time `json:"lastPriceCheck"`
	IsFeatured       bool      `json:"isFeatured"`
}

// Task types recorded in run_log.task_type.
const (
	TaskScrape    = "scrape"
	TaskAffiliate = "affiliate"
	TaskArticle   = "article"
)

// RunStatus values stored in run_log.status.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunLogEntry is one append-only run_log row. The newest entry per task
// type is the scheduler's "last run" signal.
type RunLogEntry struct {
	ID        string          `json:"id"`
	TaskType  string          `json:"taskType"`
	StartedAt time.Time       `json:"startedAt"`
	Status    RunStatus       `json:"status"`
	Detail    json.RawMessage `json:"detail"`
}
