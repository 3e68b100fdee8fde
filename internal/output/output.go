// Package output formats CLI output: status lines for commands and search
// hits for `docsearch search`.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/search"
)

// Format selects how search results are printed.
type Format string

const (
	// FormatText prints a ranked, human-readable list.
	FormatText Format = "text"
	// FormatJSON prints the results as a JSON document.
	FormatJSON Format = "json"
	// FormatMarkdown prints the same block the MCP tool returns.
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatMarkdown:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json or markdown)", s)
	}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Code prints a block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchReport is the JSON shape of `docsearch search --format json`.
type SearchReport struct {
	Query   string          `json:"query"`
	Section string          `json:"section,omitempty"`
	TopK    int             `json:"top_k"`
	Results []search.Result `json:"results"`
}

// Results prints ranked search hits. Each hit shows rank, score, source and
// section, then its text indented under it.
func (w *Writer) Results(query string, results []search.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w.out, "No results for %q\n", query)
		return
	}

	_, _ = fmt.Fprintf(w.out, "%d results for %q\n\n", len(results), query)
	for _, r := range results {
		_, _ = fmt.Fprintf(w.out, "[%d] %.3f  %s  (%s)\n", r.Rank, r.Score, r.Source, r.Section)
		for _, line := range strings.Split(strings.TrimSpace(r.Text), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
		_, _ = fmt.Fprintln(w.out)
	}
}
