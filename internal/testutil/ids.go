package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable, lexically increasing UUID-shaped
// version ids: 00000000-0000-7000-8000-000000000001, ...000002, ...
//
// This enables deterministic test execution and golden trace comparison.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu sync.Mutex
	n  int
}

// NewSequentialIDs creates a generator whose first id ends in 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return SequentialID(g.n)
}

// Reset restarts the sequence. After Reset, the next id ends in 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// SequentialID returns the n-th id produced by SequentialIDs.
func SequentialID(n int) string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", n)
}
