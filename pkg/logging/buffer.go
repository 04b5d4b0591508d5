package logging

import (
	"strings"
	"sync"
)

// RecentLines is a thread-safe writer that keeps the last few log lines.
type RecentLines struct {
	mu    sync.RWMutex
	lines []string
	size  int
}

// Recent holds the most recent server log lines (INFO and up).
var Recent = NewRecentLines(50)

// NewRecentLines creates a buffer holding at most size lines.
func NewRecentLines(size int) *RecentLines {
	if size < 1 {
		size = 1
	}
	return &RecentLines{size: size}
}

// Write implements io.Writer. Each call is treated as one record.
func (w *RecentLines) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	if len(w.lines) > w.size {
		w.lines = w.lines[len(w.lines)-w.size:]
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (w *RecentLines) Lines() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// Last returns the most recent line, or "" when nothing was logged.
func (w *RecentLines) Last() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.lines) == 0 {
		return ""
	}
	return w.lines[len(w.lines)-1]
}
