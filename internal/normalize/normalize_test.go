package normalize_test

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/normalize"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

var scrapeSource = model.Source{
	ID:       "pets4homes",
	Name:     "Pets4Homes",
	Kind:     model.KindScrape,
	BaseURL:  "https://pets.example.test",
	FetchURL: "https://pets.example.test/dogs?page=1",
	Rules:    model.RuleSet{Currency: "GBP"},
}

var affiliateSource = model.Source{
	ID:       "zooplus",
	Name:     "Zooplus",
	Kind:     model.KindAffiliate,
	BaseURL:  "https://shop.example.test",
	FetchURL: "https://shop.example.test/feed.json",
}

// ── Listing ────────────────────────────────────────────────────────────────

func TestListing_MapsCandidate(t *testing.T) {
	age := "8 weeks"
	c := model.RawCandidate{
		Title:       "Adorable Golden Retriever puppy, 8 weeks old, Male",
		Description: "<p>Vaccinated &amp; microchipped.</p><p>Call 07700 900123 or mail jane@example.com</p>",
		ImageURLs:   []string{"https://pets.example.test/a.jpg"},
		LinkURL:     "https://pets.example.test/ad/42",
		Price:       ptr(850),
		Currency:    "gbp",
		Location:    "Leeds",
		Breed:       "Golden Retriever",
		Age:         &age,
		Gender:      "Male",
	}

	l, err := normalize.Listing(c, scrapeSource, now)
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if l.SourceURL != c.LinkURL {
		t.Errorf("SourceURL = %q, want link URL", l.SourceURL)
	}
	if l.Description != "Vaccinated & microchipped. Call 07700 900123 or mail jane@example.com" {
		t.Errorf("Description = %q", l.Description)
	}
	if l.Category != "dogs" {
		t.Errorf("Category = %q, want dogs", l.Category)
	}
	if l.Currency != "GBP" {
		t.Errorf("Currency = %q, want GBP", l.Currency)
	}
	if l.ContactEmail == nil || *l.ContactEmail != "jane@example.com" {
		t.Errorf("ContactEmail = %v", l.ContactEmail)
	}
	if l.ContactPhone == nil || *l.ContactPhone != "07700 900123" {
		t.Errorf("ContactPhone = %v", l.ContactPhone)
	}
	if !l.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v", l.LastSeenAt)
	}
	wantTags := []string{"pets", "classifieds", "dogs", "dog"}
	if strings.Join(l.Tags, ",") != strings.Join(wantTags, ",") {
		t.Errorf("Tags = %v, want %v", l.Tags, wantTags)
	}
}

func TestListing_MissingTitleIsNormalizationError(t *testing.T) {
	_, err := normalize.Listing(model.RawCandidate{Title: "  <b></b> "}, scrapeSource, now)

	var ne *normalize.NormalizationError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NormalizationError", err)
	}
	if !errors.Is(err, normalize.ErrMissingTitle) {
		t.Error("err should wrap ErrMissingTitle")
	}
}

func TestListing_Defaults(t *testing.T) {
	l, err := normalize.Listing(model.RawCandidate{Title: "Lovely kitten looking for a home"}, scrapeSource, now)
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if l.Price != nil {
		t.Errorf("Price = %v, want nil", *l.Price)
	}
	if l.Currency != "GBP" {
		t.Errorf("Currency = %q, want source default GBP", l.Currency)
	}
	if l.Location != model.DefaultRegion {
		t.Errorf("Location = %q", l.Location)
	}
	if l.Breed != "Mixed" || l.Gender != "Mixed" {
		t.Errorf("Breed/Gender = %q/%q, want Mixed", l.Breed, l.Gender)
	}
	if l.ImageURLs == nil {
		t.Error("ImageURLs should be an empty slice, not nil")
	}
	if l.Category != "cats" {
		t.Errorf("Category = %q, want cats", l.Category)
	}
	if l.ContactEmail != nil || l.ContactPhone != nil {
		t.Error("contacts should stay nil when absent")
	}
}

func TestListingKey_LinklessIsStablePerTitle(t *testing.T) {
	a1 := normalize.ListingKey(model.RawCandidate{}, scrapeSource, "Beagle puppies")
	a2 := normalize.ListingKey(model.RawCandidate{}, scrapeSource, "Beagle puppies")
	b := normalize.ListingKey(model.RawCandidate{}, scrapeSource, "Two rabbits")

	if a1 != a2 {
		t.Errorf("same title gave different keys: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Error("different titles should give different keys")
	}
	if !strings.HasPrefix(a1, "https://pets.example.test/dogs?page=1#") {
		t.Errorf("key = %q, want fetch URL with fragment", a1)
	}
}

// ── Product ────────────────────────────────────────────────────────────────

func TestProduct_MapsItem(t *testing.T) {
	item := model.AffiliateItem{
		ExternalID:    "SKU-123",
		Title:         "Royal Canin Maxi Puppy Dry Dog Food 15kg",
		Description:   strings.Repeat("Complete feed for large breed puppies. ", 10),
		Price:         ptr(59.99),
		OriginalPrice: ptr(69.99),
		Currency:      "eur",
		ImageURL:      "/img/rc.jpg",
		Category:      "Dog > Dry Food",
		Brand:         "Royal Canin",
		Link:          "https://track.example.test/click?id=123",
	}

	p, err := normalize.Product(item, affiliateSource, now)
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if p.ExternalID != "zooplus_SKU-123" {
		t.Errorf("ExternalID = %q", p.ExternalID)
	}
	if p.NetworkID != "zooplus" {
		t.Errorf("NetworkID = %q", p.NetworkID)
	}
	if p.Category != "food" {
		t.Errorf("Category = %q, want food", p.Category)
	}
	if p.Subcategory != "dogs" {
		t.Errorf("Subcategory = %q, want dogs", p.Subcategory)
	}
	if p.Currency != "EUR" {
		t.Errorf("Currency = %q", p.Currency)
	}
	if p.ImageURL != "https://shop.example.test/img/rc.jpg" {
		t.Errorf("ImageURL = %q", p.ImageURL)
	}
	if p.OriginalPrice == nil || *p.OriginalPrice != 69.99 {
		t.Errorf("OriginalPrice = %v", p.OriginalPrice)
	}
	if n := utf8.RuneCountInString(p.ShortDescription); n > normalize.ShortDescriptionLen {
		t.Errorf("ShortDescription has %d runes, limit %d", n, normalize.ShortDescriptionLen)
	}
	if !strings.HasSuffix(p.ShortDescription, "...") {
		t.Errorf("ShortDescription should end with ellipsis: %q", p.ShortDescription)
	}
	if !strings.HasSuffix(p.SEOTitle, " | PawHub") || utf8.RuneCountInString(p.SEOTitle) > normalize.SEOTitleLen {
		t.Errorf("SEOTitle = %q", p.SEOTitle)
	}
	if utf8.RuneCountInString(p.SEODescription) > normalize.SEODescriptionLen {
		t.Errorf("SEODescription too long: %q", p.SEODescription)
	}
	if !p.LastPriceCheck.Equal(now) {
		t.Errorf("LastPriceCheck = %v", p.LastPriceCheck)
	}
	if len(p.Tags) > normalize.MaxTags {
		t.Errorf("Tags = %v exceeds cap", p.Tags)
	}
}

func TestProduct_OriginalPriceDroppedWhenNotADiscount(t *testing.T) {
	p, err := normalize.Product(model.AffiliateItem{ExternalID: "1", Title: "Cat scratching post", Price: ptr(20), OriginalPrice: ptr(20)}, affiliateSource, now)
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if p.OriginalPrice != nil {
		t.Errorf("OriginalPrice = %v, want nil", *p.OriginalPrice)
	}
	if p.Category != "toys" {
		t.Errorf("Category = %q, want toys", p.Category)
	}
	if p.Subcategory != "cats" {
		t.Errorf("Subcategory = %q, want cats", p.Subcategory)
	}
}

func TestProduct_MissingTitle(t *testing.T) {
	_, err := normalize.Product(model.AffiliateItem{ExternalID: "1"}, affiliateSource, now)
	if !errors.Is(err, normalize.ErrMissingTitle) {
		t.Fatalf("err = %v, want ErrMissingTitle", err)
	}
}

func TestProductKey_FallsBackToLinkDigest(t *testing.T) {
	item := model.AffiliateItem{Link: "https://track.example.test/p/9"}
	k1 := normalize.ProductKey(item, affiliateSource, "Some title")
	k2 := normalize.ProductKey(item, affiliateSource, "Renamed title")
	if k1 != k2 {
		t.Errorf("link-keyed products must not depend on title: %q vs %q", k1, k2)
	}
	if !strings.HasPrefix(k1, "zooplus_") {
		t.Errorf("key = %q, want network prefix", k1)
	}
}

// ── Categories, tags, truncation ───────────────────────────────────────────

func TestProductCategory(t *testing.T) {
	cases := []struct {
		category, title, want string
	}{
		{"Dog Treats", "", "treats"},
		{"Hundefutter", "Dry food for adult dogs", "food"},
		{"Leads & Collars", "", "walking"},
		{"Aquatics", "Glass aquarium 60L", "habitats"},
		{"Misc", "Mystery box", normalize.CategoryOther},
		{"", "", normalize.CategoryOther},
	}
	for _, c := range cases {
		if got := normalize.ProductCategory(c.category, c.title); got != c.want {
			t.Errorf("ProductCategory(%q, %q) = %q, want %q", c.category, c.title, got, c.want)
		}
	}
}

func TestSpecies_WordBoundaries(t *testing.T) {
	if got := normalize.Species("Category: education"); got != normalize.CategoryOther {
		t.Errorf("Species should not match cat inside words, got %q", got)
	}
	if got := normalize.Species("Two guinea pigs with hutch"); got != "small-pets" {
		t.Errorf("Species = %q, want small-pets", got)
	}
}

func TestTags_DedupAndCap(t *testing.T) {
	tags := normalize.Tags([]string{"a", "b", "c", "d", "e"}, "dogs", "Puppy for sale")
	if len(tags) != normalize.MaxTags {
		t.Fatalf("len(tags) = %d, want %d", len(tags), normalize.MaxTags)
	}
	if tags[5] != "dogs" {
		t.Errorf("tags = %v", tags)
	}

	tags = normalize.Tags([]string{"pets", "Pets"}, normalize.CategoryOther, "Untitled")
	if len(tags) != 1 || tags[0] != "pets" {
		t.Errorf("tags = %v, want [pets]", tags)
	}
}

func TestTruncate(t *testing.T) {
	if got := normalize.Truncate("short", 10); got != "short" {
		t.Errorf("Truncate = %q", got)
	}
	got := normalize.Truncate("the quick brown fox jumps over the lazy dog", 20)
	if utf8.RuneCountInString(got) > 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate = %q", got)
	}
	got = normalize.Truncate("ééééééééééééééé", 8)
	if got != "ééééé..." {
		t.Errorf("Truncate multibyte = %q", got)
	}
}
