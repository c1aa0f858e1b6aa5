package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TranscriptWriter keeps a human-readable markdown copy of each interview
// transcript, one file per interview.
type TranscriptWriter struct {
	dir string
	mu  sync.Mutex
}

func NewTranscriptWriter(dir string) *TranscriptWriter {
	return &TranscriptWriter{dir: dir}
}

// Write replaces the transcript file for interviewID.
func (w *TranscriptWriter) Write(interviewID string, at time.Time, lines []TranscriptLine) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.Path(interviewID)
	var b strings.Builder
	fmt.Fprintf(&b, "# Interview %s\n\n_%s_\n\n", interviewID, at.UTC().Format(time.RFC3339))
	for _, line := range lines {
		fmt.Fprintln(&b, FormatLine(line))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *TranscriptWriter) Path(interviewID string) string {
	return filepath.Join(w.dir, filepath.Base(interviewID)+".md")
}

func FormatLine(line TranscriptLine) string {
	return fmt.Sprintf("**%s:** %s", line.Role, strings.TrimSpace(line.Content))
}
