package stream

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyActive is returned by Start when a session is running.
	// Starting a new stream session never silently replaces the old one.
	ErrAlreadyActive = errors.New("stream session already active")
	// ErrNotActive is returned by operations that require a running session.
	ErrNotActive = errors.New("no active stream session")
)

// StartOptions configures a stream session.
type StartOptions struct {
	Symbols        []string
	DataTypes      []DataType
	Feed           string
	Duration       time.Duration // 0 = no limit
	BufferCapacity int           // 0 = DefaultBufferCapacity
}

// SessionInfo describes the active (or last) session.
type SessionInfo struct {
	Active    bool                  `json:"active"`
	Feed      string                `json:"feed"`
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration,omitempty"`
	Symbols   map[DataType][]string `json:"symbols"`
}

type bufferKey struct {
	symbol   string
	dataType DataType
}

// Registry routes push-feed records into per-(symbol, dataType) buffers and
// owns subscription and session state. Routing is synchronous on the delivery
// goroutine; Append is O(1), so no worker is needed.
type Registry struct {
	mu sync.RWMutex

	active    bool
	startedAt time.Time
	feed      string
	duration  time.Duration
	capacity  int

	buffers map[bufferKey]*Buffer
	subs    map[DataType]map[string]struct{}

	processed map[DataType]*atomic.Int64
	unrouted  atomic.Int64
	dropped   atomic.Int64

	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		buffers:   make(map[bufferKey]*Buffer),
		subs:      make(map[DataType]map[string]struct{}),
		processed: make(map[DataType]*atomic.Int64),
		logger:    logger,
	}
}

// Start opens a session and allocates one buffer per (symbol, dataType) pair.
// It fails with ErrAlreadyActive while a session is running.
func (r *Registry) Start(opts StartOptions) error {
	if len(opts.Symbols) == 0 {
		return errors.New("no symbols to subscribe")
	}
	if len(opts.DataTypes) == 0 {
		opts.DataTypes = []DataType{DataTypeTrade, DataTypeQuote}
	}
	for _, dt := range opts.DataTypes {
		if !validDataTypes[dt] {
			return errors.New("invalid data type: " + string(dt))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyActive
	}

	r.active = true
	r.startedAt = time.Now()
	r.feed = opts.Feed
	r.duration = opts.Duration
	r.capacity = opts.BufferCapacity
	r.buffers = make(map[bufferKey]*Buffer)
	r.subs = make(map[DataType]map[string]struct{})
	r.processed = make(map[DataType]*atomic.Int64)
	r.unrouted.Store(0)
	r.dropped.Store(0)

	for _, dt := range opts.DataTypes {
		r.subs[dt] = make(map[string]struct{})
		r.processed[dt] = &atomic.Int64{}
		for _, sym := range opts.Symbols {
			sym = normalizeSymbol(sym)
			r.subs[dt][sym] = struct{}{}
			r.buffers[bufferKey{sym, dt}] = NewBuffer(opts.BufferCapacity)
		}
	}

	r.logger.Info("stream session started",
		zap.Int("symbols", len(opts.Symbols)),
		zap.Int("data_types", len(opts.DataTypes)),
		zap.String("feed", opts.Feed))
	return nil
}

// AddSymbols extends the active session. Symbols already subscribed are a
// no-op, not an error. When dataTypes is empty, the session's existing data
// types are used.
func (r *Registry) AddSymbols(symbols []string, dataTypes []DataType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return ErrNotActive
	}
	if len(dataTypes) == 0 {
		for dt := range r.subs {
			dataTypes = append(dataTypes, dt)
		}
	}

	added := 0
	for _, dt := range dataTypes {
		set, ok := r.subs[dt]
		if !ok {
			set = make(map[string]struct{})
			r.subs[dt] = set
			r.processed[dt] = &atomic.Int64{}
		}
		for _, sym := range symbols {
			sym = normalizeSymbol(sym)
			if _, exists := set[sym]; exists {
				continue
			}
			set[sym] = struct{}{}
			r.buffers[bufferKey{sym, dt}] = NewBuffer(r.capacity)
			added++
		}
	}

	r.logger.Info("symbols added to stream session", zap.Int("new_buffers", added))
	return nil
}

// Route delivers a record to its buffer. Records for unsubscribed symbols or
// for a stopped session are dropped and counted, never an error: the feed may
// legitimately deliver data across a subscription change. Records whose
// timestamp failed to normalize are dropped and counted separately.
//
// The append happens under the session read lock, so once Stop returns no
// further record can land in a buffer.
func (r *Registry) Route(rec Record) {
	r.mu.RLock()
	buf := r.buffers[bufferKey{normalizeSymbol(rec.Symbol), rec.DataType}]
	if !r.active || buf == nil {
		r.mu.RUnlock()
		r.unrouted.Add(1)
		return
	}
	counter := r.processed[rec.DataType]
	err := buf.Append(rec)
	r.mu.RUnlock()

	if err != nil {
		r.dropped.Add(1)
		r.logger.Warn("record dropped",
			zap.String("symbol", rec.Symbol),
			zap.String("data_type", string(rec.DataType)),
			zap.Error(err))
		return
	}
	if counter != nil {
		counter.Add(1)
	}
}

// Stop marks the session inactive and halts routing. Buffers are retained so
// callers can still drain final values. Stopping twice is a no-op.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	r.active = false
	r.logger.Info("stream session stopped",
		zap.Duration("runtime", time.Since(r.startedAt)),
		zap.Int64("unrouted", r.unrouted.Load()),
		zap.Int64("dropped", r.dropped.Load()))
}

// Active reports whether a session is running.
func (r *Registry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// StartedAt returns the start instant of the current or last session.
func (r *Registry) StartedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startedAt
}

// ListActive describes the current session and its subscriptions.
func (r *Registry) ListActive() SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := SessionInfo{
		Active:    r.active,
		Feed:      r.feed,
		StartedAt: r.startedAt,
		Duration:  r.duration,
		Symbols:   make(map[DataType][]string, len(r.subs)),
	}
	for dt, set := range r.subs {
		syms := make([]string, 0, len(set))
		for sym := range set {
			syms = append(syms, sym)
		}
		info.Symbols[dt] = syms
	}
	return info
}

// Buffer returns the buffer for a (symbol, dataType) pair, or nil.
func (r *Registry) Buffer(symbol string, dt DataType) *Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffers[bufferKey{normalizeSymbol(symbol), dt}]
}

// BufferStats returns stats for every allocated buffer keyed "SYMBOL_datatype".
func (r *Registry) BufferStats() map[string]BufferStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]BufferStats, len(r.buffers))
	for key, buf := range r.buffers {
		out[key.symbol+"_"+string(key.dataType)] = buf.Stats()
	}
	return out
}

// TotalProcessed is the number of records routed successfully since Start.
func (r *Registry) TotalProcessed() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, c := range r.processed {
		total += c.Load()
	}
	return total
}

// Unrouted is the number of records dropped for missing subscriptions.
func (r *Registry) Unrouted() int64 { return r.unrouted.Load() }

// Dropped is the number of records dropped for unparsable timestamps.
func (r *Registry) Dropped() int64 { return r.dropped.Load() }

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
