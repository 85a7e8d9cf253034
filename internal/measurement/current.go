package measurement

import "sync"

// Current owns the one record that is "current" at any time. Readers get a
// copy, so they see either the old or the new record, never a mix.
type Current struct {
	mu     sync.RWMutex
	record Record
}

func NewCurrent(initial Record) *Current {
	return &Current{record: initial}
}

func (c *Current) Get() Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record
}

// Replace swaps in r and returns the previous record.
func (c *Current) Replace(r Record) Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.record
	c.record = r
	return prev
}
