// Package normalize maps extracted candidates and affiliate feed items onto
// the canonical Listing and Product records.
//
// Normalization is forgiving: unknown categories fall back to "other",
// missing prices stay nil, oversized text is truncated. The only hard
// failure is a record without a title, which is skipped rather than
// stored with a made-up one.
package normalize

import (
	"errors"
	"fmt"
)

// ErrMissingTitle is wrapped by NormalizationError when no usable title
// survives cleaning.
var ErrMissingTitle = errors.New("title is missing")

// NormalizationError reports a record that cannot be mapped and must be skipped.
type NormalizationError struct {
	Source string
	Field  string
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s: %v", e.Source, e.Field, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }
