package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestBuildModel_ViewStages(t *testing.T) {
	// Given: a model in the embedding stage
	tr := NewProgressTracker()
	tr.SetStage(StageEmbedding, 10)
	tr.Update(4, "openclaw/intro#1")
	m := newBuildModel(tr, "docs")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: finished stages are filled and the item is shown
	assert.Contains(t, view, "docsearch index • docs")
	assert.Contains(t, view, "● Discovering")
	assert.Contains(t, view, "● Chunking")
	assert.Contains(t, view, "○ Indexing")
	assert.Contains(t, view, "4/10")
	assert.Contains(t, view, "openclaw/intro#1")
}

func TestBuildModel_Complete(t *testing.T) {
	m := newBuildModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Documents: 2, Chunks: 7, Failed: 1, Backend: "flat", Model: "m", Dim: 3}))

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "✓ Index built")
	assert.Contains(t, view, "flat (m, 3 dims)")
	assert.Contains(t, view, "1 chunks failed to embed")
}

func TestBuildModel_CtrlC(t *testing.T) {
	m := newBuildModel(NewProgressTracker(), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestBuildModel_WindowSize(t *testing.T) {
	m := newBuildModel(NewProgressTracker(), "")

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 20, m.bar.Width)

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 10})
	assert.Equal(t, 100, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}

func TestTruncateLeft(t *testing.T) {
	assert.Equal(t, "short", truncateLeft("short", 10))
	assert.Equal(t, "...efghij", truncateLeft("abcdefghij", 9))
	assert.Equal(t, "...", truncateLeft("abcdefghij", 2))
}
