package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/search"
)

// FormatResults renders search output as the markdown block returned by search_docs.
// A failed search renders as a single error line under the heading.
func FormatResults(query string, results []search.Result, err error) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## 📚 Search Results for: \"%s\"\n\n", query)

	if err != nil {
		fmt.Fprintf(&sb, "❌ Error: %s\n", errorMessage(err))
		return sb.String()
	}

	for _, r := range results {
		fmt.Fprintf(&sb, "### [%d] %s (score: %.3f)\n", r.Rank, r.Source, r.Score)
		sb.WriteString(r.Text)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}
