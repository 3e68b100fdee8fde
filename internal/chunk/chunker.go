// Package chunk splits document text into overlapping character windows.
//
// Windows prefer to end on a sentence terminator (". ") or a newline when one
// exists past the middle of the window, so chunks rarely cut a sentence in half.
// Sizes are counted in characters (runes), not bytes or tokens.
package chunk

import "strings"

// Chunk size defaults (512 / 64 tokens at roughly 4 characters per token).
const (
	DefaultSize    = 2000
	DefaultOverlap = 256
)

// Window is one raw chunk window before trimming.
// Start and End are rune offsets into the source text, End exclusive.
type Window struct {
	Start int
	End   int
	Text  string // trimmed text, never empty
}

// Splitter holds a chunking policy.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter returns a Splitter with defaults applied to non-positive values.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return Splitter{Size: size, Overlap: overlap}
}

// Split returns the trimmed, non-empty chunks of text in document order.
func (s Splitter) Split(text string) []string {
	windows := s.Windows(text)
	chunks := make([]string, len(windows))
	for i, w := range windows {
		chunks[i] = w.Text
	}
	return chunks
}

// Windows returns the chunk windows of text with their rune offsets.
// Windows whose trimmed text is empty are omitted.
func (s Splitter) Windows(text string) []Window {
	s = NewSplitter(s.Size, s.Overlap)
	runes := []rune(text)
	n := len(runes)

	var out []Window
	start := 0
	for start < n {
		end := start + s.Size
		if end < n {
			if bp := lastBreak(runes[start:end]); bp > s.Size/2 {
				end = start + bp + 1
			}
		} else {
			end = n
		}

		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			out = append(out, Window{Start: start, End: end, Text: trimmed})
		}

		if end >= n {
			break
		}

		next := end - s.Overlap
		if next <= start {
			// overlap would stall the walk; continue without overlap
			next = end
		}
		start = next
	}

	return out
}

// Split chunks text with the given size and overlap.
func Split(text string, size, overlap int) []string {
	return NewSplitter(size, overlap).Split(text)
}

// lastBreak returns the index of the last ". " period or newline in w, or -1.
func lastBreak(w []rune) int {
	for i := len(w) - 1; i >= 0; i-- {
		switch w[i] {
		case '\n':
			return i
		case '.':
			if i+1 < len(w) && w[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}
