// Package search answers natural-language queries against a loaded index.
package search

import (
	"fmt"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// Defaults applied when the caller leaves a value unset.
const (
	DefaultTopK         = 5
	DefaultPreviewChars = 500

	// unknownField is reported for a hit whose metadata entry is missing.
	unknownField = "unknown"
)

// Options are per-query parameters.
type Options struct {
	// TopK is the number of results wanted; <= 0 uses the engine default.
	TopK int

	// Section restricts results to one documentation section; empty means all.
	Section string
}

// Result is one search hit.
type Result struct {
	Rank    int     `json:"rank"`
	Score   float32 `json:"score"`
	Source  string  `json:"source"`
	Section string  `json:"section"`
	Text    string  `json:"text"`
}

// ErrIndexUnavailable is returned when no index has been loaded.
var ErrIndexUnavailable = errs.New(errs.ErrCodeIndexNotFound, "No index loaded. Run 'docsearch index' first.", nil).
	WithSuggestion("Build the index with: docsearch index")

// DimensionMismatchError reports a query vector whose dimension differs
// from the index, usually because the embedding model changed since the build.
type DimensionMismatchError struct {
	Expected   int
	Got        int
	IndexModel string
	QueryModel string
}

func (e *DimensionMismatchError) Error() string {
	msg := fmt.Sprintf("query embedding has dimension %d but the index has %d", e.Got, e.Expected)
	if e.IndexModel != "" && e.IndexModel != e.QueryModel {
		msg += fmt.Sprintf(" (index built with %s, querying with %s)", e.IndexModel, e.QueryModel)
	}
	return msg
}

// Unwrap maps the mismatch onto its error code.
func (e *DimensionMismatchError) Unwrap() error {
	return errs.New(errs.ErrCodeDimensionMismatch, e.Error(), nil).
		WithSuggestion("Rebuild the index with the current model: docsearch index")
}
