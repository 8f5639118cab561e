package scraper

import (
	"strings"
	"unicode/utf8"
)

// minTitleLen is the shortest title kept as a listing candidate.
const minTitleLen = 5

// boilerplateTerms flag containers that are site chrome rather than ads.
var boilerplateTerms = []string{
	"cookie",
	"privacy",
	"terms of service",
	"terms and conditions",
	"newsletter",
	"subscribe",
	"sign in",
	"log in",
	"login",
	"advertisement",
	"sponsored",
	"accept all",
	"javascript",
}

// ContainsRedFlag returns true if any term appears (case-insensitive)
// anywhere in text.
func ContainsRedFlag(text string, terms []string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// KeepTitle reports whether title passes the precision heuristics: long
// enough and free of boilerplate terms.
func KeepTitle(title string) bool {
	if utf8.RuneCountInString(title) < minTitleLen {
		return false
	}
	return !ContainsRedFlag(title, boilerplateTerms)
}
