package download

import "sync"

// Board is the shared progress map: task id → rendered status line. Progress
// observers write entries from worker goroutines while the tracker reads
// snapshots; last write wins.
type Board struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{entries: make(map[string]string)}
}

// Set stores the status line for a task id.
func (b *Board) Set(id, line string) {
	b.mu.Lock()
	b.entries[id] = line
	b.mu.Unlock()
}

// Get returns the status line for a task id.
func (b *Board) Get(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	line, ok := b.entries[id]
	return line, ok
}

// Snapshot returns a copy of all entries.
func (b *Board) Snapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.entries))
	for id, line := range b.entries {
		out[id] = line
	}
	return out
}

// Len returns the number of tracked tasks.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
