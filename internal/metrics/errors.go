// Package metrics holds counters owned by the components that increment them.
package metrics

import (
	"sort"
	"sync"
)

// ErrorSink receives one call per classified error.
type ErrorSink interface {
	Record(kind string)
}

// Discard is an ErrorSink that drops everything.
var Discard ErrorSink = discard{}

type discard struct{}

func (discard) Record(string) {}

// ErrorCounter counts errors by kind. Safe for concurrent use.
type ErrorCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewErrorCounter creates an empty counter.
func NewErrorCounter() *ErrorCounter {
	return &ErrorCounter{counts: make(map[string]int)}
}

// Record increments the counter for kind.
func (c *ErrorCounter) Record(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind]++
}

// Count returns the current count for kind.
func (c *ErrorCounter) Count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Snapshot returns a copy of all counts.
func (c *ErrorCounter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Kinds returns the recorded kinds in sorted order.
func (c *ErrorCounter) Kinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]string, 0, len(c.counts))
	for k := range c.counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Reset clears all counts.
func (c *ErrorCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}
