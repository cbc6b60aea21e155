package scanner

import (
	"sync"
	"time"
)

// Metric is one symbol's snapshot state as of a poll. Entries are replaced
// wholesale on every cycle so stale and fresh fields are never mixed.
type Metric struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	MinuteTradeCount int64     `json:"minute_trade_count"`
	MinuteVolume     int64     `json:"minute_volume"`
	PreviousClose    float64   `json:"previous_close"`
	DailyClose       float64   `json:"daily_close"`
	PolledAt         time.Time `json:"polled_at"`
}

// Cache memoizes the previous poll's metric per symbol for the differential
// scanner. In-memory only; entries leave the cache only by explicit removal
// when a symbol drops out of the scan universe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Metric
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Metric)}
}

func (c *Cache) Get(symbol string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[symbol]
	return m, ok
}

// Put replaces the entry for a symbol wholesale.
func (c *Cache) Put(symbol string, m Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = m
}

func (c *Cache) Remove(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
}

// SnapshotAll returns a copy of the whole cache so a scan cycle can diff a
// batch atomically against one consistent prior view.
func (c *Cache) SnapshotAll() map[string]Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Metric, len(c.entries))
	for sym, m := range c.entries {
		out[sym] = m
	}
	return out
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
