package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event (for CI and pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
// Format: [STAGE] current/total - message or item
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.Item
	}

	switch {
	case event.Total > 0 && msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d\n", event.Stage.Icon(), event.Current, event.Total)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Item != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Item, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents, %d chunks indexed in %s",
		stats.Documents, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 || stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d chunks failed, %d documents skipped)", stats.Failed, stats.Skipped)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Discover: %s\n", stats.Stages.Discover.Round(time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Chunk:    %s\n", stats.Stages.Chunk.Round(time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Embed:    %s (%.1f chunks/sec)\n",
			stats.Stages.Embed.Round(100*time.Millisecond), perSecond(stats.Chunks+stats.Failed, stats.Stages.Embed))
		_, _ = fmt.Fprintf(r.out, "  Index:    %s\n", stats.Stages.Index.Round(time.Millisecond))
	}

	if stats.Backend != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Index: %s (%s, %s, %d dims)\n", stats.OutDir, stats.Backend, stats.Model, stats.Dim)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// Errors returns the errors and warnings reported so far.
func (r *PlainRenderer) Errors() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEvent(nil), r.errors...)
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

var _ Renderer = (*PlainRenderer)(nil)
