// Package docs discovers and reads the documentation corpus.
//
// The corpus is a directory tree whose first level names the section:
//
//	docs/
//	  opencode/guides/agents.md     -> section "opencode", id "opencode/agents"
//	  openclaw/install.html         -> section "openclaw", id "openclaw/install"
//
// Markdown and text files are read as-is; HTML is converted to Markdown.
package docs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Defaults.
const (
	DefaultDir      = "docs"
	IgnoreFile      = ".docsignore"
	MaxDocumentSize = 20 << 20
)

// DefaultExtensions are the file types read by default.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".html", ".htm"}

// skippedExtensions are reported rather than silently ignored:
// the corpus may contain them but their text cannot be extracted here.
var skippedExtensions = map[string]string{
	".pdf": "binary document (convert to Markdown or HTML first)",
}

// ErrNoDocuments is returned by Discover when the tree holds nothing to index.
var ErrNoDocuments = errors.New("no documents found")

// File is a discovered document that has not been read yet.
type File struct {
	Path    string // absolute path
	Rel     string // slash-separated path relative to the corpus root
	Section string
	ID      string // "<section>/<stem>"
	Size    int64
}

// Skipped is a file that was found but will not be indexed.
type Skipped struct {
	Rel    string
	Reason string
}

// Document is a file's extracted text.
type Document struct {
	ID      string
	Section string
	Path    string
	Text    string
}

// Source yields the documents of a corpus.
type Source interface {
	Discover(ctx context.Context) ([]File, []Skipped, error)
	Load(ctx context.Context, f File) (Document, error)
}

// FSSource reads a corpus from a directory tree.
type FSSource struct {
	root       string
	extensions map[string]bool
	ignore     *IgnoreMatcher
	html       *HTMLConverter
}

var _ Source = (*FSSource)(nil)

// Options configures an FSSource.
type Options struct {
	// Extensions limits the file types read; empty means DefaultExtensions.
	Extensions []string

	// Exclude holds extra ignore patterns on top of <root>/.docsignore.
	Exclude []string
}

// NewFSSource creates a source rooted at dir.
func NewFSSource(dir string, opts Options) (*FSSource, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve docs dir: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = true
	}

	ignore := NewIgnoreMatcher(opts.Exclude...)
	if err := ignore.AddFromFile(filepath.Join(root, IgnoreFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &FSSource{root: root, extensions: extSet, ignore: ignore, html: NewHTMLConverter()}, nil
}

// Root returns the absolute corpus root.
func (s *FSSource) Root() string {
	return s.root
}

// Discover walks the tree and returns indexable files sorted by path.
// Hidden entries, ignored paths and files directly under the root (which
// have no section) are left out.
func (s *FSSource) Discover(ctx context.Context) ([]File, []Skipped, error) {
	var (
		files   []File
		skipped []Skipped
	)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if s.ignore.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if reason, ok := skippedExtensions[ext]; ok {
			skipped = append(skipped, Skipped{Rel: rel, Reason: reason})
			return nil
		}
		if !s.extensions[ext] {
			return nil
		}

		section, _, found := strings.Cut(rel, "/")
		if !found {
			skipped = append(skipped, Skipped{Rel: rel, Reason: "not inside a section directory"})
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > MaxDocumentSize {
			skipped = append(skipped, Skipped{Rel: rel, Reason: fmt.Sprintf("larger than %d bytes", MaxDocumentSize)})
			return nil
		}

		stem := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
		files = append(files, File{
			Path:    path,
			Rel:     rel,
			Section: section,
			ID:      section + "/" + stem,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	if len(files) == 0 {
		return nil, skipped, fmt.Errorf("%w in %s", ErrNoDocuments, s.root)
	}
	return files, skipped, nil
}

// Load reads f and returns its text. HTML is converted to Markdown;
// invalid UTF-8 sequences are replaced.
func (s *FSSource) Load(ctx context.Context, f File) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", f.Rel, err)
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".html", ".htm":
		text, err = s.html.Convert(text)
		if err != nil {
			return Document{}, fmt.Errorf("convert %s: %w", f.Rel, err)
		}
	}

	return Document{ID: f.ID, Section: f.Section, Path: f.Rel, Text: text}, nil
}
