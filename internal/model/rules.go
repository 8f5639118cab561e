package model

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Default selectors used when a source leaves a rule unset.
const (
	DefaultContainerSelector   = "article, .listing, .ad-item, li.item"
	DefaultTitleSelector       = "h1, h2, h3, .title, [class*=title]"
	DefaultPriceSelector       = ".price, [class*=price]"
	DefaultLocationSelector    = ".location, [class*=location], address"
	DefaultDescriptionSelector = ".description, [class*=desc], p"
	DefaultImageSelector       = "img"
	DefaultLinkSelector        = "a[href]"

	DefaultCurrency = "GBP"
	DefaultRegion   = "United Kingdom"
)

// RuleSet is the per-source extraction configuration. Every field is
// optional; the accessors fall back to the package defaults.
type RuleSet struct {
	Container   string `json:"container,omitempty" yaml:"container"`
	Title       string `json:"title,omitempty" yaml:"title"`
	Price       string `json:"price,omitempty" yaml:"price"`
	Location    string `json:"location,omitempty" yaml:"location"`
	Description string `json:"description,omitempty" yaml:"description"`
	Image       string `json:"image,omitempty" yaml:"image"`
	Link        string `json:"link,omitempty" yaml:"link"`

	// Currency applied when the payload carries no currency marker.
	Currency string `json:"currency,omitempty" yaml:"currency"`
	// DefaultLocation replaces DefaultRegion for this source.
	DefaultLocation string `json:"defaultLocation,omitempty" yaml:"default_location"`
	// DecimalComma reads scraped prices as "1.234,56" instead of "1,234.56".
	DecimalComma bool `json:"decimalComma,omitempty" yaml:"decimal_comma"`

	// Affiliate feeds only.
	ResultPath string            `json:"resultPath,omitempty" yaml:"result_path"` // dot-notation, e.g. "data.products"
	Fields     FieldMap          `json:"fields,omitempty" yaml:"fields"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers"` // values support ${ENV_VAR}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (r RuleSet) ContainerSelector() string   { return or(r.Container, DefaultContainerSelector) }
func (r RuleSet) TitleSelector() string       { return or(r.Title, DefaultTitleSelector) }
func (r RuleSet) PriceSelector() string       { return or(r.Price, DefaultPriceSelector) }
func (r RuleSet) LocationSelector() string    { return or(r.Location, DefaultLocationSelector) }
func (r RuleSet) DescriptionSelector() string { return or(r.Description, DefaultDescriptionSelector) }
func (r RuleSet) ImageSelector() string       { return or(r.Image, DefaultImageSelector) }
func (r RuleSet) LinkSelector() string        { return or(r.Link, DefaultLinkSelector) }
func (r RuleSet) CurrencyOrDefault() string   { return or(r.Currency, DefaultCurrency) }
func (r RuleSet) LocationFallback() string    { return or(r.DefaultLocation, DefaultRegion) }

// Validate compiles every configured selector so a broken rule is caught
// when the source is saved rather than silently yielding nothing later.
func (r RuleSet) Validate() error {
	selectors := map[string]string{
		"container":   r.Container,
		"title":       r.Title,
		"price":       r.Price,
		"location":    r.Location,
		"description": r.Description,
		"image":       r.Image,
		"link":        r.Link,
	}
	for name, sel := range selectors {
		if sel == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("rule %s: invalid selector %q: %w", name, sel, err)
		}
	}
	return nil
}

// FieldMap maps canonical affiliate fields to keys in the network's JSON
// items. Unset entries use the key of the same name.
type FieldMap struct {
	ID            string `json:"id,omitempty" yaml:"id"`
	Title         string `json:"title,omitempty" yaml:"title"`
	Description   string `json:"description,omitempty" yaml:"description"`
	Price         string `json:"price,omitempty" yaml:"price"`
	OriginalPrice string `json:"originalPrice,omitempty" yaml:"original_price"`
	Currency      string `json:"currency,omitempty" yaml:"currency"`
	Image         string `json:"image,omitempty" yaml:"image"`
	Category      string `json:"category,omitempty" yaml:"category"`
	Brand         string `json:"brand,omitempty" yaml:"brand"`
	Link          string `json:"link,omitempty" yaml:"link"`
}

// Keys returns the effective JSON key for every field.
func (f FieldMap) Keys() FieldMap {
	return FieldMap{
		ID:            or(f.ID, "id"),
		Title:         or(f.Title, "title"),
		Description:   or(f.Description, "description"),
		Price:         or(f.Price, "price"),
		OriginalPrice: or(f.OriginalPrice, "original_price"),
		Currency:      or(f.Currency, "currency"),
		Image:         or(f.Image, "image_url"),
		Category:      or(f.Category, "category"),
		Brand:         or(f.Brand, "brand"),
		Link:          or(f.Link, "url"),
	}
}

// Validate reports whether the source is usable by its job.
func (s Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	switch s.Kind {
	case KindScrape, KindAffiliate:
	default:
		return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.FetchURL == "" {
		return fmt.Errorf("source %s: fetch_url is required", s.ID)
	}
	if err := s.Rules.Validate(); err != nil {
		return fmt.Errorf("source %s: %w", s.ID, err)
	}
	return nil
}
