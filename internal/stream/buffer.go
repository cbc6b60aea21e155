package stream

import (
	"sync"
	"time"
)

// DefaultBufferCapacity bounds per-buffer memory when no capacity is configured.
const DefaultBufferCapacity = 10000

// Buffer is a fixed-capacity FIFO store of records for one (symbol, dataType)
// pair. When full, the oldest record is evicted. Appends are serialized by a
// per-buffer mutex; reads copy out so callers never share backing storage.
type Buffer struct {
	mu         sync.Mutex
	records    []Record
	start      int
	count      int
	totalAdded int64
	lastUpdate time.Time
}

// BufferStats is a point-in-time view of a buffer.
type BufferStats struct {
	Count      int       `json:"count"`
	Capacity   int       `json:"capacity"`
	TotalAdded int64     `json:"total_added"`
	LastUpdate time.Time `json:"last_update"` // zero when nothing was ever appended
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{records: make([]Record, capacity)}
}

// Append stores the record, evicting the oldest entry if the buffer is full.
// A record whose timestamp failed normalization never reaches the buffer;
// Append rejects a zero timestamp as a second line of defense and reports
// ErrUnparsableTimestamp so the caller can count the drop.
func (b *Buffer) Append(r Record) error {
	if r.Timestamp.IsZero() {
		return ErrUnparsableTimestamp
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cap := len(b.records)
	if b.count == cap {
		// overwrite the oldest slot
		b.records[b.start] = r
		b.start = (b.start + 1) % cap
	} else {
		b.records[(b.start+b.count)%cap] = r
		b.count++
	}
	b.totalAdded++
	b.lastUpdate = time.Now()
	return nil
}

// All returns every retained record in arrival order.
func (b *Buffer) All() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

// Recent returns the retained records whose normalized timestamp is strictly
// newer than now minus the window, in arrival order. It is a filter over the
// retained sequence, never a separate store.
func (b *Buffer) Recent(window time.Duration) []Record {
	cutoff := time.Now().Add(-window)

	b.mu.Lock()
	all := b.copyLocked()
	b.mu.Unlock()

	// Records arrive roughly in time order, so the matching suffix starts at
	// the first record past the cutoff.
	idx := len(all)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Timestamp.After(cutoff) {
			idx = i
		} else {
			break
		}
	}
	return all[idx:]
}

// Stats reports the current size and last update instant.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:      b.count,
		Capacity:   len(b.records),
		TotalAdded: b.totalAdded,
		LastUpdate: b.lastUpdate,
	}
}

func (b *Buffer) copyLocked() []Record {
	out := make([]Record, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.records[(b.start+i)%len(b.records)]
	}
	return out
}
