package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxLocationLen = 50
	unknownTrait   = "Mixed"
)

var (
	rePrice  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	rePriceC = regexp.MustCompile(`\d[\d.]*(?:,\d+)?`)
	reAge    = regexp.MustCompile(`(?i)\b(\d+)\s*(week|month|year)s?\b`)
	reMale   = regexp.MustCompile(`(?i)\bmale\b`)
	reFemale = regexp.MustCompile(`(?i)\bfemale\b`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// knownBreeds is matched in order, so more specific names come first
// ("French Bulldog" before "Bulldog").
var knownBreeds = []string{
	"Golden Retriever",
	"Labrador Retriever",
	"Labrador",
	"German Shepherd",
	"French Bulldog",
	"English Bulldog",
	"Bulldog",
	"Cavalier King Charles Spaniel",
	"Cocker Spaniel",
	"Springer Spaniel",
	"Staffordshire Bull Terrier",
	"Yorkshire Terrier",
	"Jack Russell",
	"Border Collie",
	"Siberian Husky",
	"Husky",
	"Cockapoo",
	"Labradoodle",
	"Poodle",
	"Beagle",
	"Rottweiler",
	"Dachshund",
	"Boxer",
	"Shih Tzu",
	"Chihuahua",
	"Pomeranian",
	"Pug",
	"Maltese",
	"Bichon Frise",
	"Great Dane",
	"Maine Coon",
	"British Shorthair",
	"Ragdoll",
	"Persian",
	"Siamese",
	"Bengal",
	"Sphynx",
}

// ParsePrice returns the first run of digits (with optional thousands
// commas and a decimal part) in text. No match yields nil, never zero.
func ParsePrice(text string) *float64 {
	m := rePrice.FindString(text)
	if m == "" {
		return nil
	}
	return parseNumber(strings.ReplaceAll(m, ",", ""))
}

// ParsePriceDecimalComma is ParsePrice for sites writing "1.234,56": dots
// group thousands and a comma starts the decimals.
func ParsePriceDecimalComma(text string) *float64 {
	m := rePriceC.FindString(text)
	if m == "" {
		return nil
	}
	return parseNumber(strings.Replace(strings.ReplaceAll(m, ".", ""), ",", ".", 1))
}

func parseNumber(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// DetectCurrency maps a currency symbol or ISO code in the price text.
// Empty when nothing recognisable is present.
func DetectCurrency(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(text, "€") || strings.Contains(upper, "EUR"):
		return "EUR"
	case strings.Contains(text, "£") || strings.Contains(upper, "GBP"):
		return "GBP"
	case strings.Contains(text, "$") || strings.Contains(upper, "USD"):
		return "USD"
	}
	return ""
}

// CleanLocation strips leading and trailing non-alphanumeric characters,
// collapses whitespace and truncates to 50 characters plus an ellipsis.
// Empty input yields fallback.
func CleanLocation(text, fallback string) string {
	loc := strings.TrimFunc(CollapseSpaces(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if loc == "" {
		return fallback
	}
	if utf8.RuneCountInString(loc) > maxLocationLen {
		return string([]rune(loc)[:maxLocationLen]) + "..."
	}
	return loc
}

// InferBreed returns the first known breed found (case-insensitive) in
// text, or "Mixed".
func InferBreed(text string) string {
	lower := strings.ToLower(text)
	for _, breed := range knownBreeds {
		if strings.Contains(lower, strings.ToLower(breed)) {
			return breed
		}
	}
	return unknownTrait
}

// InferAge returns a normalised "<n> <unit>s" phrase, or nil.
func InferAge(text string) *string {
	m := reAge.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	unit := strings.ToLower(m[2])
	if m[1] != "1" {
		unit += "s"
	}
	age := m[1] + " " + unit
	return &age
}

// InferGender returns "Male" or "Female" when exactly one of the two words
// appears, otherwise "Mixed".
func InferGender(text string) string {
	male := reMale.MatchString(text)
	female := reFemale.MatchString(text)
	switch {
	case male && !female:
		return "Male"
	case female && !male:
		return "Female"
	}
	return unknownTrait
}

// CollapseSpaces trims text and folds internal whitespace runs to one space.
func CollapseSpaces(text string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(text, " "))
}
