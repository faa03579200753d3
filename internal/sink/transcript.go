package sink

import (
	"sync"

	"github.com/skypro1111/live-translator/internal/pipeline"
)

// Entry is a result with its position in the transcript
type Entry struct {
	Index uint64 `json:"index"`
	pipeline.Result
}

// Transcript keeps the most recent results and the last status in memory.
// Indexes start at 1 and keep increasing as old entries are evicted, so
// pollers can ask for everything after the last index they saw.
type Transcript struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	nextIndex  uint64
	lastStatus pipeline.Status
	hasStatus  bool
}

// NewTranscript creates a transcript holding at most maxEntries results
func NewTranscript(maxEntries int) *Transcript {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Transcript{
		entries:    make([]Entry, 0, min(maxEntries, 64)),
		maxEntries: maxEntries,
		nextIndex:  1,
	}
}

func (t *Transcript) OnStatus(status pipeline.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastStatus = status
	t.hasStatus = true
}

func (t *Transcript) OnResult(result pipeline.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Entry{Index: t.nextIndex, Result: result})
	t.nextIndex++

	if excess := len(t.entries) - t.maxEntries; excess > 0 {
		t.entries = append(t.entries[:0], t.entries[excess:]...)
	}
}

// Since returns the entries with an index greater than index, oldest first
func (t *Transcript) Since(index uint64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0)
	for _, entry := range t.entries {
		if entry.Index > index {
			out = append(out, entry)
		}
	}
	return out
}

// LastIndex returns the index of the newest entry, or zero if empty
func (t *Transcript) LastIndex() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextIndex - 1
}

// LastStatus returns the most recent status, if any was received
func (t *Transcript) LastStatus() (pipeline.Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastStatus, t.hasStatus
}

// Len returns the number of retained entries
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
