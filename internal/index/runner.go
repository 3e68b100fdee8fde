// Package index runs the offline build: documents are discovered, chunked,
// embedded one chunk at a time and written out as an index artifact set.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/docs"
	"github.com/Aman-CERP/docsearch/internal/embed"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/internal/ui"
)

// RunnerConfig configures a build.
type RunnerConfig struct {
	// OutDir receives the artifact set (default "vectordb").
	OutDir string

	// ChunkSize and Overlap are in characters.
	ChunkSize int
	Overlap   int

	Backend store.Backend
	HNSW    store.HNSWConfig

	// SkipCheck skips the provider connectivity and model check.
	SkipCheck bool
}

// RunnerResult is the outcome of a build.
type RunnerResult struct {
	Documents int // documents that produced at least one chunk
	Skipped   int // documents skipped (empty, unreadable, unsupported)
	Chunks    int // chunks in the index
	Failed    int // chunks whose embedding failed
	Duration  time.Duration
	Index     *store.Index
}

// RunnerDependencies are the injected collaborators of a Runner.
type RunnerDependencies struct {
	Source   docs.Source
	Embedder embed.Embedder
	Renderer ui.Renderer
}

// Runner executes builds with progress reporting.
type Runner struct {
	source   docs.Source
	embedder embed.Embedder
	renderer ui.Renderer
}

// pendingChunk is a chunk waiting for its embedding.
type pendingChunk struct {
	docID   string
	section string
	seq     int
	text    string
}

func (p pendingChunk) label() string {
	return fmt.Sprintf("%s#%d", p.docID, p.seq)
}

// NewRunner creates a Runner.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("document source is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	return &Runner{source: deps.Source, embedder: deps.Embedder, renderer: deps.Renderer}, nil
}

type stageTiming struct {
	discover time.Duration
	chunk    time.Duration
	embed    time.Duration
	index    time.Duration
}

// Run executes the full pipeline. A chunk whose embedding fails is reported
// and left out; the build fails only when nothing could be embedded.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	var timing stageTiming

	if cfg.OutDir == "" {
		cfg.OutDir = store.DefaultDir
	}

	lock := store.NewBuildLock(cfg.OutDir)
	if err := lock.TryLock(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	if !cfg.SkipCheck {
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageDiscovering,
			Message: "Checking embedding provider (" + r.embedder.ModelName() + ")...",
		})
		if err := embed.Probe(ctx, r.embedder); err != nil {
			return nil, err
		}
	}

	// Stage 1: discover
	stageStart := time.Now()
	files, skippedFiles, err := r.discover(ctx)
	if err != nil {
		return nil, err
	}
	timing.discover = time.Since(stageStart)
	skipped := len(skippedFiles)

	// Stage 2: read and chunk
	stageStart = time.Now()
	pending, docCount, unreadable, err := r.chunkDocuments(ctx, files, cfg)
	if err != nil {
		return nil, err
	}
	skipped += unreadable
	timing.chunk = time.Since(stageStart)

	if len(pending) == 0 {
		return nil, errs.New(errs.ErrCodeIndexFailed, "documents produced no chunks", nil)
	}

	// Stage 3: embed
	stageStart = time.Now()
	records, failed, err := r.embedChunks(ctx, pending)
	if err != nil {
		return nil, err
	}
	timing.embed = time.Since(stageStart)

	if len(records) == 0 {
		return nil, errs.New(errs.ErrCodeIndexFailed,
			fmt.Sprintf("all %d chunk embeddings failed", failed), nil).
			WithSuggestion("Check the embedding provider with 'docsearch doctor'")
	}

	// Stage 4: build and save
	stageStart = time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Message: fmt.Sprintf("Building index from %d vectors...", len(records)),
	})
	ix, err := store.Build(records, store.BuildOptions{
		Backend: cfg.Backend,
		Model:   r.embedder.ModelName(),
		HNSW:    cfg.HNSW,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Save(cfg.OutDir, ix); err != nil {
		return nil, err
	}
	timing.index = time.Since(stageStart)

	duration := time.Since(start)
	r.renderer.Complete(ui.CompletionStats{
		Documents: docCount,
		Skipped:   skipped,
		Chunks:    ix.Count(),
		Failed:    failed,
		Duration:  duration,
		Stages: ui.StageTimings{
			Discover: timing.discover,
			Chunk:    timing.chunk,
			Embed:    timing.embed,
			Index:    timing.index,
		},
		Backend: string(ix.Backend()),
		Model:   r.embedder.ModelName(),
		Dim:     ix.Dim(),
		OutDir:  cfg.OutDir,
	})

	slog.Info("index_complete",
		slog.Int("documents", docCount),
		slog.Int("skipped", skipped),
		slog.Int("chunks", ix.Count()),
		slog.Int("failed", failed),
		slog.String("backend", string(ix.Backend())),
		slog.Int("dim", ix.Dim()),
		slog.String("model", r.embedder.ModelName()),
		slog.String("build_id", ix.Manifest().BuildID),
		slog.Int64("duration_discover_ms", timing.discover.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()),
		slog.String("duration", duration.String()),
		slog.String("out", cfg.OutDir))

	return &RunnerResult{
		Documents: docCount,
		Skipped:   skipped,
		Chunks:    ix.Count(),
		Failed:    failed,
		Duration:  duration,
		Index:     ix,
	}, nil
}

func (r *Runner) discover(ctx context.Context) ([]docs.File, []docs.Skipped, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageDiscovering, Message: "Discovering documents..."})

	files, skipped, err := r.source.Discover(ctx)
	for _, s := range skipped {
		r.renderer.AddError(ui.ErrorEvent{Item: s.Rel, Err: errors.New(s.Reason), IsWarn: true})
	}
	if err != nil {
		if errors.Is(err, docs.ErrNoDocuments) {
			return nil, nil, errs.New(errs.ErrCodeFileNotFound, err.Error(), err).
				WithSuggestion("Put documents under <docs>/<section>/ and run again")
		}
		return nil, nil, err
	}

	slog.Info("index_discover_complete", slog.Int("documents", len(files)), slog.Int("skipped", len(skipped)))
	return files, skipped, nil
}

// chunkDocuments reads every file and splits it. Unreadable and empty
// documents are reported and counted as skipped.
func (r *Runner) chunkDocuments(ctx context.Context, files []docs.File, cfg RunnerConfig) ([]pendingChunk, int, int, error) {
	splitter := chunk.NewSplitter(cfg.ChunkSize, cfg.Overlap)

	var (
		pending  []pendingChunk
		docCount int
		skipped  int
	)
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}

		doc, err := r.source.Load(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, 0, ctx.Err()
			}
			r.renderer.AddError(ui.ErrorEvent{Item: f.Rel, Err: err, IsWarn: true})
			skipped++
			continue
		}

		chunks := splitter.Split(doc.Text)
		if len(chunks) == 0 {
			r.renderer.AddError(ui.ErrorEvent{Item: doc.ID, Err: errors.New("empty document"), IsWarn: true})
			skipped++
			continue
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageChunking,
			Current: i + 1,
			Total:   len(files),
			Item:    doc.ID,
			Message: fmt.Sprintf("%s: %d chars → %d chunks", doc.ID, utf8.RuneCountInString(doc.Text), len(chunks)),
		})

		for seq, text := range chunks {
			pending = append(pending, pendingChunk{docID: doc.ID, section: doc.Section, seq: seq, text: text})
		}
		docCount++
	}

	slog.Info("index_chunking_complete", slog.Int("chunks", len(pending)), slog.Int("documents", docCount))
	return pending, docCount, skipped, nil
}

// embedChunks embeds chunks sequentially in document order.
func (r *Runner) embedChunks(ctx context.Context, pending []pendingChunk) ([]store.Record, int, error) {
	records := make([]store.Record, 0, len(pending))
	failed := 0

	for i, p := range pending {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: i + 1,
			Total:   len(pending),
			Item:    p.label(),
		})

		vec, err := r.embedder.Embed(ctx, p.text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			failed++
			r.renderer.AddError(ui.ErrorEvent{Item: p.label(), Err: err, IsWarn: true})
			slog.Warn("chunk embedding failed",
				append([]any{slog.String("chunk", p.label())}, errs.LogAttrs(err)...)...)
			continue
		}

		records = append(records, store.Record{
			Source:    p.docID,
			Section:   p.section,
			Text:      p.text,
			Embedding: vec,
		})
	}

	slog.Info("index_embedding_complete", slog.Int("embedded", len(records)), slog.Int("failed", failed))
	return records, failed, nil
}
