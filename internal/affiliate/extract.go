// Package affiliate turns affiliate network JSON feeds into products.
//
// Feeds differ per network, so each source describes where its item array
// lives (RuleSet.ResultPath, dot notation) and which keys hold each field
// (RuleSet.Fields, also dot notation). Like the HTML extractor, Extract
// never fails: an undecodable feed yields no items.
package affiliate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/spf13/cast"

	"pawhub/ingest-service/internal/model"
	"pawhub/ingest-service/internal/scraper"
)

// Extract decodes payload and maps at most limit items (limit <= 0 means
// unbounded). Entries that are not JSON objects are skipped.
func Extract(payload []byte, src model.Source, limit int) []model.AffiliateItem {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil
	}

	entries, ok := walkPath(raw, src.Rules.ResultPath)
	if !ok {
		return nil
	}

	keys := src.Rules.Fields.Keys()
	var out []model.AffiliateItem
	for i, entry := range entries {
		if limit > 0 && i >= limit {
			break
		}
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, mapItem(obj, keys))
	}
	return out
}

func mapItem(obj map[string]any, keys model.FieldMap) model.AffiliateItem {
	item := model.AffiliateItem{
		ExternalID:    asString(lookup(obj, keys.ID)),
		Title:         asString(lookup(obj, keys.Title)),
		Description:   asString(lookup(obj, keys.Description)),
		Price:         asPrice(lookup(obj, keys.Price)),
		OriginalPrice: asPrice(lookup(obj, keys.OriginalPrice)),
		Currency:      asString(lookup(obj, keys.Currency)),
		ImageURL:      asString(lookup(obj, keys.Image)),
		Category:      asString(lookup(obj, keys.Category)),
		Brand:         asString(lookup(obj, keys.Brand)),
		Link:          asString(lookup(obj, keys.Link)),
	}
	// Networks that send "£12.99" instead of a separate currency field.
	if item.Currency == "" {
		if s, ok := lookup(obj, keys.Price).(string); ok {
			item.Currency = scraper.DetectCurrency(s)
		}
	}
	return item
}

// walkPath follows a dot-notation path to the item array. An empty path
// means the root itself must be the array.
func walkPath(v any, path string) ([]any, bool) {
	if path != "" {
		v = lookupPath(v, strings.Split(path, "."))
	}
	arr, ok := v.([]any)
	return arr, ok
}

func lookup(obj map[string]any, key string) any {
	if key == "" {
		return nil
	}
	if v, ok := obj[key]; ok {
		return v
	}
	return lookupPath(obj, strings.Split(key, "."))
}

func lookupPath(v any, parts []string) any {
	for _, part := range parts {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[part]
	}
	return v
}

func asString(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// asPrice accepts JSON numbers, numeric strings and price text such as
// "£1,299.00".
func asPrice(v any) *float64 {
	if v == nil {
		return nil
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return &f
	}
	if s, ok := v.(string); ok {
		return scraper.ParsePrice(s)
	}
	return nil
}
