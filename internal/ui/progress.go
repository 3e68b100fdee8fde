package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights the newest ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressTracker holds build progress state. It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.RWMutex
	stage      Stage
	current    int
	total      int
	item       string
	stageStart time.Time
	lastETA    time.Duration
	errors     int
	warnings   int
	now        func() time.Time
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64 // 0..1
	ETA        time.Duration
	Rate       float64 // items per second in the current stage
	Item       string
	ErrorCount int
	WarnCount  int
}

// NewProgressTracker creates a tracker in the discovering stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	return &ProgressTracker{stage: StageDiscovering, stageStart: now(), now: now}
}

// SetStage moves to a new stage and resets the counters.
func (t *ProgressTracker) SetStage(stage Stage, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stage = stage
	t.total = total
	t.current = 0
	t.item = ""
	t.lastETA = 0
	t.stageStart = t.now()
}

// Update records progress within the current stage.
func (t *ProgressTracker) Update(current int, item string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = current
	if item != "" {
		t.item = item
	}
}

// AddError counts a failure.
func (t *ProgressTracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.IsWarn {
		t.warnings++
	} else {
		t.errors++
	}
}

// Stats returns a snapshot.
func (t *ProgressTracker) Stats() ProgressStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := ProgressStats{
		Stage:      t.stage,
		Current:    t.current,
		Total:      t.total,
		Item:       t.item,
		ErrorCount: t.errors,
		WarnCount:  t.warnings,
	}
	if t.total > 0 {
		s.Progress = float64(t.current) / float64(t.total)
		if s.Progress > 1 {
			s.Progress = 1
		}
	}

	elapsed := t.now().Sub(t.stageStart)
	if elapsed > 0 && t.current > 0 {
		s.Rate = float64(t.current) / elapsed.Seconds()
	}
	if s.Rate > 0 && t.total > t.current {
		eta := time.Duration(float64(t.total-t.current) / s.Rate * float64(time.Second))
		if t.lastETA > 0 {
			eta = time.Duration(etaSmoothing*float64(eta) + (1-etaSmoothing)*float64(t.lastETA))
		}
		t.lastETA = eta
		s.ETA = eta
	}
	return s
}
