// Package scraper turns classifieds pages into listing candidates.
//
// Extraction is rule driven: each source supplies CSS selectors for the
// listing container and its fields (model.RuleSet), with documented
// defaults for anything left unset. Markup drift is expected, so Extract
// never fails; a page it cannot make sense of yields no candidates.
package scraper

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pawhub/ingest-service/internal/model"
)

// Extract parses payload and returns one candidate per matching container,
// examining at most limit containers (limit <= 0 means unbounded).
func Extract(payload []byte, src model.Source, limit int) []model.RawCandidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil
	}

	base := resolverFor(src)
	rules := src.Rules

	var out []model.RawCandidate
	containers(doc, rules.ContainerSelector()).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		if c, ok := extractOne(s, rules, base); ok {
			out = append(out, c)
		}
		return true
	})
	return out
}

// containers returns the elements matching sel that contain no other match.
// Overlapping selectors (an article inside li.item, articles inside a
// .listing wrapper) then yield each ad once, at its tightest element.
func containers(doc *goquery.Document, sel string) *goquery.Selection {
	return doc.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(sel).Length() == 0
	})
}

func extractOne(s *goquery.Selection, rules model.RuleSet, base *url.URL) (model.RawCandidate, bool) {
	title := firstText(s, rules.TitleSelector())
	if !KeepTitle(title) {
		return model.RawCandidate{}, false
	}

	c := model.RawCandidate{
		Title:        title,
		PriceText:    firstText(s, rules.PriceSelector()),
		LocationText: firstText(s, rules.LocationSelector()),
		Description:  firstText(s, rules.DescriptionSelector()),
		ImageURLs:    imageURLs(s, rules.ImageSelector(), base),
		LinkURL:      linkURL(s, rules.LinkSelector(), base),
	}

	combined := c.Title + " " + c.Description
	if rules.DecimalComma {
		c.Price = ParsePriceDecimalComma(c.PriceText)
	} else {
		c.Price = ParsePrice(c.PriceText)
	}
	c.Currency = DetectCurrency(c.PriceText)
	if c.Currency == "" {
		c.Currency = rules.CurrencyOrDefault()
	}
	c.Location = CleanLocation(c.LocationText, rules.LocationFallback())
	c.Breed = InferBreed(combined)
	c.Age = InferAge(combined)
	c.Gender = InferGender(combined)
	return c, true
}

// firstText returns the collapsed text of the first element matching sel
// inside s.
func firstText(s *goquery.Selection, sel string) string {
	return CollapseSpaces(s.Find(sel).First().Text())
}

func imageURLs(s *goquery.Selection, sel string, base *url.URL) []string {
	seen := make(map[string]bool)
	var urls []string
	s.Find(sel).Each(func(_ int, img *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			raw, ok := img.Attr(attr)
			if !ok || raw == "" || strings.HasPrefix(raw, "data:") {
				continue
			}
			abs := resolve(base, raw)
			if abs != "" && !seen[abs] {
				seen[abs] = true
				urls = append(urls, abs)
			}
			return
		}
	})
	return urls
}

func linkURL(s *goquery.Selection, sel string, base *url.URL) string {
	if href, ok := s.Find(sel).First().Attr("href"); ok {
		return resolve(base, href)
	}
	// Containers that are themselves anchors.
	if href, ok := s.Attr("href"); ok {
		return resolve(base, href)
	}
	return ""
}

func resolverFor(src model.Source) *url.URL {
	for _, raw := range []string{src.BaseURL, src.FetchURL} {
		if u, err := url.Parse(raw); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

// resolve makes ref absolute against base. Fragment-only and javascript:
// links resolve to "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}
