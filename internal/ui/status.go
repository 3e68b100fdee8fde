package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes a built index on disk.
type StatusInfo struct {
	Dir       string    `json:"dir"`
	Loaded    bool      `json:"loaded"`
	Backend   string    `json:"backend,omitempty"`
	Chunks    int       `json:"chunks"`
	Dim       int       `json:"dim,omitempty"`
	Model     string    `json:"model,omitempty"`
	BuildID   string    `json:"build_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Sections  []string  `json:"sections,omitempty"`

	// Artifact sizes in bytes, keyed by file name.
	Artifacts map[string]int64 `json:"artifacts,omitempty"`
	TotalSize int64            `json:"total_size"`
}

// StatusRenderer prints index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render prints status as text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Dir))

	if !info.Loaded {
		_, _ = fmt.Fprintf(r.out, "  Status:  %s\n", r.styles.Warning.Render("not built"))
		_, _ = fmt.Fprintln(r.out, "  Run 'docsearch index' to build it.")
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "  Status:  %s\n", r.styles.Success.Render("ready"))
	_, _ = fmt.Fprintf(r.out, "  Backend: %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "  Chunks:  %d\n", info.Chunks)
	if info.Dim > 0 {
		_, _ = fmt.Fprintf(r.out, "  Dim:     %d\n", info.Dim)
	}
	if info.Model != "" {
		_, _ = fmt.Fprintf(r.out, "  Model:   %s\n", info.Model)
	}
	if !info.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Built:   %s\n", r.formatTime(info.CreatedAt))
	}
	if len(info.Sections) > 0 {
		_, _ = fmt.Fprintf(r.out, "  Sections: %v\n", info.Sections)
	}
	_, _ = fmt.Fprintf(r.out, "  Size:    %s\n", FormatBytes(info.TotalSize))
	return nil
}

// RenderJSON prints status as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatBytes formats bytes to human-readable form.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
