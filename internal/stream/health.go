package stream

import (
	"fmt"
	"time"
)

// HealthStatus classifies the freshness of an active stream session.
type HealthStatus string

const (
	StatusInactive HealthStatus = "inactive"
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusCritical HealthStatus = "critical"
)

// HealthConfig holds the staleness thresholds. Zero values fall back to the
// defaults below.
type HealthConfig struct {
	CriticalAfter   time.Duration `mapstructure:"critical_after"`
	DegradedAfter   time.Duration `mapstructure:"degraded_after"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	LowActivityRate float64       `mapstructure:"low_activity_rate"`
}

func (c HealthConfig) withDefaults() HealthConfig {
	if c.CriticalAfter <= 0 {
		c.CriticalAfter = 60 * time.Second
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = 30 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.LowActivityRate <= 0 {
		c.LowActivityRate = 0.1
	}
	return c
}

// HealthSnapshot is computed on demand and never stored.
type HealthSnapshot struct {
	Status                HealthStatus `json:"status"`
	OverallLatencySeconds *float64     `json:"overall_latency_seconds"` // nil when no buffer ever received data
	EventsPerSecond       float64      `json:"events_per_second"`
	StaleBufferCount      int          `json:"stale_buffer_count"`
	HealthyBufferCount    int          `json:"healthy_buffer_count"`
	Alerts                []string     `json:"alerts"`
	Recommendations       []string     `json:"recommendations"`
}

// HealthMonitor derives stream health from registry and buffer statistics.
// It is a pure read over shared state and runs no background work of its own.
type HealthMonitor struct {
	registry *Registry
	cfg      HealthConfig
}

func NewHealthMonitor(registry *Registry, cfg HealthConfig) *HealthMonitor {
	return &HealthMonitor{registry: registry, cfg: cfg.withDefaults()}
}

// Snapshot classifies the current session.
//
// Latency over CriticalAfter is critical, over DegradedAfter degraded.
// Even with acceptable overall latency the session degrades when stale
// buffers outnumber fresh ones: one hot symbol can mask many dead ones.
func (m *HealthMonitor) Snapshot() HealthSnapshot {
	return m.snapshotAt(time.Now())
}

func (m *HealthMonitor) snapshotAt(now time.Time) HealthSnapshot {
	if !m.registry.Active() {
		return HealthSnapshot{
			Status:          StatusInactive,
			Alerts:          []string{},
			Recommendations: []string{"no stream session; start one to begin monitoring"},
		}
	}

	stats := m.registry.BufferStats()

	var newest time.Time
	stale, fresh := 0, 0
	for _, st := range stats {
		if st.LastUpdate.IsZero() {
			continue
		}
		if st.LastUpdate.After(newest) {
			newest = st.LastUpdate
		}
		if now.Sub(st.LastUpdate) > m.cfg.StaleAfter {
			stale++
		} else {
			fresh++
		}
	}

	snap := HealthSnapshot{
		StaleBufferCount:   stale,
		HealthyBufferCount: fresh,
		Alerts:             []string{},
	}

	sessionAge := now.Sub(m.registry.StartedAt())
	if sessionAge > 0 {
		snap.EventsPerSecond = float64(m.registry.TotalProcessed()) / sessionAge.Seconds()
	}

	switch {
	case newest.IsZero():
		// Session started, but no buffer has ever received data: latency is
		// effectively infinite.
		snap.Status = StatusCritical
		snap.Alerts = append(snap.Alerts,
			"no data received since session start")
	default:
		latency := now.Sub(newest).Seconds()
		snap.OverallLatencySeconds = &latency

		switch {
		case latency > m.cfg.CriticalAfter.Seconds():
			snap.Status = StatusCritical
			snap.Alerts = append(snap.Alerts, fmt.Sprintf(
				"no data for %.0fs, over the %.0fs critical threshold",
				latency, m.cfg.CriticalAfter.Seconds()))
		case latency > m.cfg.DegradedAfter.Seconds():
			snap.Status = StatusDegraded
			snap.Alerts = append(snap.Alerts, fmt.Sprintf(
				"no data for %.0fs, over the %.0fs degraded threshold",
				latency, m.cfg.DegradedAfter.Seconds()))
		case stale > fresh:
			snap.Status = StatusDegraded
			snap.Alerts = append(snap.Alerts, fmt.Sprintf(
				"%d of %d buffers are stale (older than %.0fs)",
				stale, stale+fresh, m.cfg.StaleAfter.Seconds()))
		default:
			snap.Status = StatusHealthy
		}
	}

	if snap.EventsPerSecond < m.cfg.LowActivityRate {
		// Advisory only; low activity alone never forces critical.
		snap.Alerts = append(snap.Alerts, fmt.Sprintf(
			"event rate %.2f/s below the %.2f/s low-activity threshold",
			snap.EventsPerSecond, m.cfg.LowActivityRate))
	}

	snap.Recommendations = recommendationsFor(snap.Status)
	return snap
}

// recommendationsFor is deterministic text generation from the classification.
func recommendationsFor(status HealthStatus) []string {
	switch status {
	case StatusCritical:
		return []string{
			"restart the stream session",
			"verify feed connectivity and subscriptions",
		}
	case StatusDegraded:
		return []string{
			"monitor closely; restart the stream if staleness persists",
		}
	case StatusHealthy:
		return []string{"stream is operating normally"}
	default:
		return []string{"no stream session; start one to begin monitoring"}
	}
}
