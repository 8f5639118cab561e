package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	reSpaces     = regexp.MustCompile(`\s+`)
)

// CleanText strips all markup, decodes entities and collapses whitespace.
// Tags are treated as word breaks so "<p>a</p><p>b</p>" reads "a b".
func CleanText(s string) string {
	plain := html.UnescapeString(strictPolicy.Sanitize(strings.ReplaceAll(s, "<", " <")))
	return strings.TrimSpace(reSpaces.ReplaceAllString(plain, " "))
}

// Truncate shortens s to at most limit runes, ending with "..." when cut.
// It prefers to cut at a word boundary in the last fifth of the budget.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	cut := string([]rune(s)[:limit-3])
	if i := strings.LastIndexByte(cut, ' '); i > 0 && utf8.RuneCountInString(cut[:i]) >= (limit-3)*4/5 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "..."
}

// shortHash is a stable 12-hex-digit digest used to build synthetic keys.
func shortHash(s string) string {
	h := sha1.Sum([]byte(strings.ToLower(s)))
	return hex.EncodeToString(h[:])[:12]
}
