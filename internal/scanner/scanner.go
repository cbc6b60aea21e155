package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher is the snapshot-fetch collaborator. A partial or empty result map
// means "no fresh data this cycle for the missing symbols", not an error.
type Fetcher interface {
	FetchSnapshots(ctx context.Context, symbols []string) (map[string]Metric, error)
}

// ResultSink receives each cycle's qualifying rows. Sinks are optional
// side-channels (database, message bus); failures are logged, never fatal.
type ResultSink interface {
	PublishResults(ctx context.Context, cycleTime time.Time, rows []Result) error
}

// SortKey selects the descending ranking order of scan results.
type SortKey string

const (
	SortByTradesDelta   SortKey = "trades_delta"
	SortByPercentChange SortKey = "percent_change"
	SortByVolumeDelta   SortKey = "volume_delta"
)

// ParseSortKey validates a sort key string, defaulting to trades delta.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByTradesDelta:
		return SortByTradesDelta, nil
	case SortByPercentChange:
		return SortByPercentChange, nil
	case SortByVolumeDelta:
		return SortByVolumeDelta, nil
	default:
		return "", fmt.Errorf("invalid sort key: %q", s)
	}
}

// Result is one qualifying row of a scan cycle. Recomputed every cycle; only
// the latest full set is retained.
type Result struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	TradesDelta   int64   `json:"trades_delta"`
	CurrentTrades int64   `json:"current_trades"`
	VolumeDelta   int64   `json:"volume_delta"`
	PercentChange float64 `json:"percent_change"`
	Gradient2     float64 `json:"gradient2"` // percent change halved, legacy ranking figure
	PrevClose     float64 `json:"prev_close"`
}

// Params configures one scan run.
type Params struct {
	Symbols          []string
	MinTradesDelta   int64
	MinPercentChange float64
	MaxResults       int
	SortKey          SortKey
	Interval         time.Duration
	BatchSize        int
}

func (p *Params) normalize() error {
	cleaned := p.Symbols[:0]
	seen := make(map[string]struct{}, len(p.Symbols))
	for _, s := range p.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	p.Symbols = cleaned
	if len(p.Symbols) == 0 {
		return errors.New("no symbols to scan")
	}
	if p.Interval <= 0 {
		// The snapshot endpoint's minute-bar fields change once per minute, so
		// polling faster cannot observe a new delta.
		p.Interval = time.Minute
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 500
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 20
	}
	if p.SortKey == "" {
		p.SortKey = SortByTradesDelta
	}
	return nil
}

// Status reports the scanner's observable state.
type Status struct {
	Running         bool      `json:"running"`
	LastCycleTime   time.Time `json:"last_cycle_time"` // zero until the first cycle completes
	CacheSize       int       `json:"cache_size"`
	LastResultCount int       `json:"last_result_count"`
	TotalScanned    int       `json:"total_scanned"`
}

type publishedResults struct {
	rows         []Result
	cycleTime    time.Time
	totalScanned int
}

// Scanner polls the snapshot collaborator on a fixed cadence and computes
// exact per-symbol deltas against the previous poll. Two states: stopped and
// running. Start replaces a running scan; Stop cancels the loop outright.
type Scanner struct {
	fetcher Fetcher
	cache   *Cache
	sinks   []ResultSink
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	resMu  sync.RWMutex
	latest publishedResults
}

func New(fetcher Fetcher, logger *zap.Logger, sinks ...ResultSink) *Scanner {
	return &Scanner{
		fetcher: fetcher,
		cache:   NewCache(),
		sinks:   sinks,
		logger:  logger,
	}
}

// ErrMissingCredentials is surfaced at Start when no fetcher is wired, i.e.
// the snapshot collaborator could not be constructed for lack of credentials.
var ErrMissingCredentials = errors.New("snapshot fetcher unavailable: missing credentials")

// Start launches the polling loop and returns immediately; it does not block
// for the first result. A running scan is stopped and replaced, not rejected:
// re-parameterizing an existing scan is a common operation. This deliberately
// differs from the stream registry, which rejects a second session.
func (s *Scanner) Start(p Params) error {
	if s.fetcher == nil {
		return ErrMissingCredentials
	}
	if err := p.normalize(); err != nil {
		return err
	}

	s.mu.Lock()
	// Another Start may have installed a new loop while the mutex was released
	// for the wait, so re-check until no loop is running.
	for s.running {
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	// Symbols that left the universe no longer have a meaningful prior.
	s.pruneCache(p.Symbols)

	go s.run(ctx, p, done)

	s.logger.Info("differential scanner started",
		zap.Int("symbols", len(p.Symbols)),
		zap.Duration("interval", p.Interval),
		zap.Int64("min_trades_delta", p.MinTradesDelta),
		zap.Float64("min_percent_change", p.MinPercentChange))
	return nil
}

// Stop cancels the loop and awaits its exit. The cache and the last published
// result set stay intact for inspection. Idempotent.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("differential scanner stopped")
}

// Running reports whether the polling loop is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the scanner's current observable state.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	s.resMu.RLock()
	defer s.resMu.RUnlock()
	return Status{
		Running:         running,
		LastCycleTime:   s.latest.cycleTime,
		CacheSize:       s.cache.Size(),
		LastResultCount: len(s.latest.rows),
		TotalScanned:    s.latest.totalScanned,
	}
}

// LatestResults re-sorts and truncates the already-published set on read; it
// never re-fetches.
func (s *Scanner) LatestResults(key SortKey, limit int) []Result {
	s.resMu.RLock()
	rows := make([]Result, len(s.latest.rows))
	copy(rows, s.latest.rows)
	s.resMu.RUnlock()

	if key != "" {
		sortResults(rows, key)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (s *Scanner) run(ctx context.Context, p Params, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		// A replacing Start may already own the state; only clear it if this
		// loop is still the active one.
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(0) // first cycle runs immediately
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.cycle(ctx, p)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(p.Interval)
	}
}

// cycle runs one fetch → diff → filter → publish → cache-update pass. All
// cache reads happen before any cache write, so the diff is always against
// the pre-cycle state.
func (s *Scanner) cycle(ctx context.Context, p Params) {
	fresh := s.fetchAll(ctx, p)
	if ctx.Err() != nil {
		return
	}
	if len(fresh) == 0 {
		s.logger.Warn("no snapshot data this cycle, retrying on next tick")
		return
	}

	prior := s.cache.SnapshotAll()
	cycleTime := time.Now()

	var rows []Result
	for _, sym := range p.Symbols {
		cur, ok := fresh[sym]
		if !ok {
			continue
		}
		prev, ok := prior[sym]
		if !ok {
			continue // first observation, nothing to diff against
		}

		tradesDelta := cur.MinuteTradeCount - prev.MinuteTradeCount
		volumeDelta := cur.MinuteVolume - prev.MinuteVolume
		pct := percentChange(cur)

		// A day rollover can reset minute counters, producing negative deltas.
		// The >= filter below would already reject them, but a negative delta
		// must never surface as a high-activity row, so guard explicitly.
		if tradesDelta < 0 {
			continue
		}
		if tradesDelta >= p.MinTradesDelta && pct >= p.MinPercentChange && cur.Price > 0 {
			rows = append(rows, Result{
				Symbol:        sym,
				Price:         cur.Price,
				TradesDelta:   tradesDelta,
				CurrentTrades: cur.MinuteTradeCount,
				VolumeDelta:   volumeDelta,
				PercentChange: pct,
				Gradient2:     pct / 2.0,
				PrevClose:     cur.PreviousClose,
			})
		}
	}

	// Every fetched symbol replaces its cache entry, qualifying or not, so the
	// next cycle always diffs against the most recent observation.
	for sym, m := range fresh {
		s.cache.Put(sym, m)
	}

	sortResults(rows, p.SortKey)
	if len(rows) > p.MaxResults {
		rows = rows[:p.MaxResults]
	}

	s.resMu.Lock()
	s.latest = publishedResults{rows: rows, cycleTime: cycleTime, totalScanned: len(p.Symbols)}
	s.resMu.Unlock()

	s.logger.Info("scan cycle complete",
		zap.Int("scanned", len(p.Symbols)),
		zap.Int("fetched", len(fresh)),
		zap.Int("qualifying", len(rows)))

	for _, sink := range s.sinks {
		if err := sink.PublishResults(ctx, cycleTime, rows); err != nil {
			s.logger.Warn("result sink failed", zap.Error(err))
		}
	}
}

// fetchAll fetches the universe in batches. A failed batch is logged and its
// symbols are simply absent this cycle; the next tick is the retry.
func (s *Scanner) fetchAll(ctx context.Context, p Params) map[string]Metric {
	fresh := make(map[string]Metric, len(p.Symbols))
	for start := 0; start < len(p.Symbols); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(p.Symbols) {
			end = len(p.Symbols)
		}
		batch := p.Symbols[start:end]

		metrics, err := s.fetcher.FetchSnapshots(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return fresh
			}
			s.logger.Warn("snapshot batch failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			continue
		}
		for sym, m := range metrics {
			fresh[sym] = m
		}
	}
	return fresh
}

func (s *Scanner) pruneCache(universe []string) {
	keep := make(map[string]struct{}, len(universe))
	for _, sym := range universe {
		keep[sym] = struct{}{}
	}
	for sym := range s.cache.SnapshotAll() {
		if _, ok := keep[sym]; !ok {
			s.cache.Remove(sym)
		}
	}
}

// percentChange is the absolute move from the previous close. When the
// previous close is missing the daily-bar close stands in, understating the
// signal; kept as-is rather than corrected.
func percentChange(m Metric) float64 {
	if m.PreviousClose > 0 {
		return math.Abs(m.Price-m.PreviousClose) / m.PreviousClose * 100
	}
	return m.DailyClose
}

func sortResults(rows []Result, key SortKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		switch key {
		case SortByPercentChange:
			return rows[i].PercentChange > rows[j].PercentChange
		case SortByVolumeDelta:
			return rows[i].VolumeDelta > rows[j].VolumeDelta
		default:
			return rows[i].TradesDelta > rows[j].TradesDelta
		}
	})
}
