package outcome

import "sync"

// Buffer holds outcomes that have not yet been reported in a delivered envelope.
//
// The send protocol is Add → Take → (optionally) Restore. Restore merges the
// taken snapshot back, so anything added between Take and Restore is kept
// alongside it rather than overwritten.
type Buffer struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add merges outcomes into the buffer and returns a copy of the new contents.
func (b *Buffer) Add(outcomes []Outcome) []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = Merge(b.outcomes, outcomes)
	return append([]Outcome(nil), b.outcomes...)
}

// Take returns the current contents and leaves the buffer empty.
func (b *Buffer) Take() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	taken := b.outcomes
	b.outcomes = nil
	return taken
}

// Restore merges a previously taken snapshot back into the buffer.
func (b *Buffer) Restore(snapshot []Outcome) {
	if len(snapshot) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = Merge(snapshot, b.outcomes)
}

// Snapshot returns a copy of the current contents.
func (b *Buffer) Snapshot() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Outcome(nil), b.outcomes...)
}

// Len returns the number of distinct buckets held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outcomes)
}
