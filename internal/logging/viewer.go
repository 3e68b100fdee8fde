package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// maxLineSize bounds a single log line when reading files.
const maxLineSize = 1 << 20

// LogEntry is a parsed JSON log line.
type LogEntry struct {
	Time    time.Time
	Level   string
	Msg     string
	Attrs   map[string]any
	Raw     string
	IsValid bool
}

// ViewerConfig filters and formats entries.
type ViewerConfig struct {
	Level   string         // minimum level; empty shows all
	Pattern *regexp.Regexp // matched against the raw line
}

// Viewer reads server logs written by Setup.
type Viewer struct {
	cfg      ViewerConfig
	minLevel int
}

// NewViewer creates a viewer.
func NewViewer(cfg ViewerConfig) *Viewer {
	v := &Viewer{cfg: cfg}
	if cfg.Level != "" {
		v.minLevel = int(LevelFromString(cfg.Level))
	} else {
		v.minLevel = -1 << 31
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var entries []LogEntry
	for _, line := range lines {
		if e := ParseLine(line); v.Matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow polls path for appended lines and sends matching entries until ctx ends.
func (v *Viewer) Follow(ctx context.Context, path string, out chan<- LogEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			chunk, err := reader.ReadString('\n')
			partial += chunk
			if err != nil {
				break
			}
			line := strings.TrimRight(partial, "\r\n")
			partial = ""
			if line == "" {
				continue
			}
			if e := ParseLine(line); v.Matches(e) {
				select {
				case out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Matches reports whether e passes the level and pattern filters.
// Lines that are not JSON are only filtered by pattern.
func (v *Viewer) Matches(e LogEntry) bool {
	if e.IsValid && int(LevelFromString(e.Level)) < v.minLevel {
		return false
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// ParseLine decodes a slog JSON line.
func ParseLine(line string) LogEntry {
	e := LogEntry{Raw: line}

	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return e
	}

	e.IsValid = true
	if s, ok := m["time"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339Nano, s)
	}
	e.Level, _ = m["level"].(string)
	e.Msg, _ = m["msg"].(string)
	delete(m, "time")
	delete(m, "level")
	delete(m, "msg")
	if len(m) > 0 {
		e.Attrs = m
	}
	return e
}

// Format renders e as one human-readable line: "15:04:05.000 LEVEL msg k=v ...".
func Format(e LogEntry) string {
	if !e.IsValid {
		return e.Raw
	}

	var sb strings.Builder
	sb.WriteString(e.Time.Local().Format("15:04:05.000"))
	sb.WriteByte(' ')
	fmt.Fprintf(&sb, "%-5s ", e.Level)
	sb.WriteString(e.Msg)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}
