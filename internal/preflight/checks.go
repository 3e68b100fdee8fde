package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/Aman-CERP/docsearch/internal/docs"
	"github.com/Aman-CERP/docsearch/internal/embed"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// MinDiskSpaceBytes is the free space required in the index directory (100MB).
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckProvider probes the embedding provider. Required: neither index nor
// search works without it.
func (c *Checker) CheckProvider(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedding_provider", Required: true}

	if c.target.Embedder == nil {
		result.Status = StatusWarn
		result.Message = "not configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	if err := embed.Probe(ctx, c.target.Embedder); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		if e, ok := errs.As(err); ok {
			result.Message = e.Message
			result.Details = e.Suggestion
		}
		return result
	}

	result.Status = StatusPass
	result.Message = "model " + c.target.Embedder.ModelName() + " available"
	return result
}

// CheckDocs walks the docs tree. Not required: serving needs only the index.
func (c *Checker) CheckDocs(ctx context.Context) CheckResult {
	result := CheckResult{Name: "docs"}

	src, err := docs.NewFSSource(c.target.DocsDir, docs.Options{})
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not readable: %v", c.target.DocsDir, err)
		return result
	}

	files, skipped, err := src.Discover(ctx)
	if err != nil {
		result.Status = StatusWarn
		result.Message = err.Error()
		return result
	}

	sections := map[string]int{}
	for _, f := range files {
		sections[f.Section]++
	}
	names := make([]string, 0, len(sections))
	for name, n := range sections {
		names = append(names, fmt.Sprintf("%s (%d)", name, n))
	}
	sort.Strings(names)

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d documents in %d sections", len(files), len(sections))
	result.Details = strings.Join(names, ", ")
	if len(skipped) > 0 {
		result.Details += fmt.Sprintf("; %d files skipped", len(skipped))
	}
	return result
}

// CheckIndex loads the artifact set. Required: the server answers every
// search with an error without it.
func (c *Checker) CheckIndex() CheckResult {
	result := CheckResult{Name: "index", Required: true}

	ix := store.Load(c.target.IndexDir, c.target.HNSW)
	if !ix.Loaded() {
		result.Status = StatusFail
		result.Message = "no index in " + c.target.IndexDir
		result.Details = "Run 'docsearch index' to build it"
		return result
	}

	m := ix.Manifest()
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d chunks, %d dims, %s backend", ix.Count(), ix.Dim(), ix.Backend())
	if m.BuildID != "" {
		result.Details = fmt.Sprintf("build %s at %s", m.BuildID, m.CreatedAt.Format("2006-01-02 15:04"))
	}

	if e := c.target.Embedder; e != nil && m.Model != "" && m.Model != e.ModelName() {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("index built with %s but configured model is %s", m.Model, e.ModelName())
		result.Details = "Queries will fail with a dimension mismatch unless the models agree; rebuild with 'docsearch index'"
	}
	return result
}

// CheckWritePermissions creates and removes a file in the index directory,
// or in its closest existing parent when it does not exist yet.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	dir := existingDir(c.target.IndexDir)
	f, err := os.CreateTemp(dir, ".docsearch-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir + " is writable"
	return result
}

// CheckDiskSpace checks free space where the index is written.
func (c *Checker) CheckDiskSpace() CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	dir := existingDir(c.target.IndexDir)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: 100 MB)", formatBytes(available))
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// existingDir returns path or its closest existing ancestor.
func existingDir(path string) string {
	if path == "" {
		path = "."
	}
	path, _ = filepath.Abs(path)
	for {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			return path
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)
	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
