package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"pawhub/ingest-service/internal/model"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
)

var (
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	rePhone = regexp.MustCompile(`(?:\+|\b)\d[\d ().-]{7,}\d\b`)
)

var listingTags = []string{"pets", "classifieds"}

// Listing maps a scraped candidate onto the canonical listing shape.
func Listing(c model.RawCandidate, src model.Source, now time.Time) (model.Listing, error) {
	title := Truncate(CleanText(c.Title), maxTitleLen)
	if title == "" {
		return model.Listing{}, &NormalizationError{Source: src.ID, Field: "title", Err: ErrMissingTitle}
	}
	desc := Truncate(CleanText(c.Description), maxDescriptionLen)

	category := Species(title + " " + desc + " " + c.Breed)
	email, phone := contacts(desc)

	images := c.ImageURLs
	if images == nil {
		images = []string{}
	}

	return model.Listing{
		SourceID:     src.ID,
		SourceName:   src.Name,
		SourceURL:    ListingKey(c, src, title),
		Title:        title,
		Description:  desc,
		Price:        c.Price,
		Currency:     or(strings.ToUpper(c.Currency), src.Rules.CurrencyOrDefault()),
		Location:     or(c.Location, src.Rules.LocationFallback()),
		ImageURLs:    images,
		Category:     category,
		Tags:         Tags(listingTags, category, title),
		Breed:        or(c.Breed, "Mixed"),
		Age:          c.Age,
		Gender:       or(c.Gender, "Mixed"),
		ContactEmail: email,
		ContactPhone: phone,
		LastSeenAt:   now,
	}, nil
}

// ListingKey is the listing's natural key: its detail-page URL, or, for
// containers without a link, the fetch URL with a fragment derived from the
// title so distinct link-less ads on one page stay distinct.
func ListingKey(c model.RawCandidate, src model.Source, title string) string {
	if c.LinkURL != "" {
		return c.LinkURL
	}
	u, err := url.Parse(src.FetchURL)
	if err != nil {
		return src.FetchURL + "#" + shortHash(title)
	}
	u.Fragment = shortHash(title)
	return u.String()
}

func contacts(text string) (email, phone *string) {
	if m := reEmail.FindString(text); m != "" {
		email = &m
	}
	for _, m := range rePhone.FindAllString(text, -1) {
		if countDigits(m) >= 9 {
			m = strings.TrimSpace(m)
			phone = &m
			break
		}
	}
	return email, phone
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
