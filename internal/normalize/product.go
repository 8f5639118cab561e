package normalize

import (
	"net/url"
	"strings"
	"time"

	"pawhub/ingest-service/internal/model"
)

const (
	ShortDescriptionLen = 160
	SEOTitleLen         = 60
	SEODescriptionLen   = 155
	seoSuffix           = " | PawHub"
)

var productTags = []string{"pet supplies", "shop"}

// Product maps an affiliate feed item onto the canonical product shape.
func Product(item model.AffiliateItem, src model.Source, now time.Time) (model.Product, error) {
	title := Truncate(CleanText(item.Title), maxTitleLen)
	if title == "" {
		return model.Product{}, &NormalizationError{Source: src.ID, Field: "title", Err: ErrMissingTitle}
	}
	desc := Truncate(CleanText(item.Description), maxDescriptionLen)
	short := Truncate(desc, ShortDescriptionLen)

	var price float64
	if item.Price != nil {
		price = *item.Price
	}
	var original *float64
	if item.OriginalPrice != nil && *item.OriginalPrice > price {
		original = item.OriginalPrice
	}

	rawCategory := CleanText(item.Category)
	category := ProductCategory(rawCategory, title)
	seoDesc := short
	if seoDesc == "" {
		seoDesc = title
	}

	return model.Product{
		NetworkID:        src.ID,
		ExternalID:       ProductKey(item, src, title),
		Title:            title,
		Description:      desc,
		ShortDescription: short,
		Price:            price,
		OriginalPrice:    original,
		Currency:         or(strings.ToUpper(strings.TrimSpace(item.Currency)), src.Rules.CurrencyOrDefault()),
		ImageURL:         absolute(src.BaseURL, item.ImageURL),
		Category:         category,
		Subcategory:      Species(rawCategory + " " + title),
		Brand:            CleanText(item.Brand),
		AffiliateLink:    absolute(src.BaseURL, item.Link),
		SEOTitle:         SEOTitle(title),
		SEODescription:   Truncate(seoDesc, SEODescriptionLen),
		Tags:             Tags(productTags, category, title),
		LastPriceCheck:   now,
	}, nil
}

// ProductKey is "{network}_{externalId}". Items without an id fall back to
// a digest of their link, then of their title.
func ProductKey(item model.AffiliateItem, src model.Source, title string) string {
	id := strings.TrimSpace(item.ExternalID)
	switch {
	case id != "":
	case item.Link != "":
		id = shortHash(item.Link)
	default:
		id = shortHash(title)
	}
	return src.ID + "_" + id
}

// SEOTitle appends the brand suffix, shortening the title so the suffix
// always survives the length budget.
func SEOTitle(title string) string {
	return Truncate(title, SEOTitleLen-len(seoSuffix)) + seoSuffix
}

func absolute(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}
