package voice

import (
	"strings"
	"sync"
)

// utteranceBuffer accumulates is_final fragments until the speaker finishes.
type utteranceBuffer struct {
	mu        sync.Mutex
	fragments []string
}

func (b *utteranceBuffer) Add(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, fragment)
}

// Flush returns the joined utterance and resets the buffer. It returns ""
// when nothing was buffered.
func (b *utteranceBuffer) Flush() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.fragments) == 0 {
		return ""
	}
	out := strings.Join(b.fragments, " ")
	b.fragments = nil
	return out
}

func (b *utteranceBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}
