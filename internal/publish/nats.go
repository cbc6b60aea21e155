package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketscan/internal/scanner"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the scan-result publisher.
type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ClientID       string        `mapstructure:"client_id"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// NATSPublisher publishes qualifying scan rows to a NATS subject per symbol.
// Delivery is fire-and-forget; a publish failure is logged by the scanner and
// never aborts a cycle.
type NATSPublisher struct {
	cfg    NATSConfig
	nc     *nats.Conn
	logger *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "marketscan.scan"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientID),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSPublisher{cfg: cfg, nc: nc, logger: logger}, nil
}

type scanEvent struct {
	CycleTime time.Time      `json:"cycle_time"`
	Result    scanner.Result `json:"result"`
}

// PublishResults sends each qualifying row to "<prefix>.<SYMBOL>".
func (p *NATSPublisher) PublishResults(_ context.Context, cycleTime time.Time, rows []scanner.Result) error {
	var firstErr error
	for _, row := range rows {
		payload, err := json.Marshal(scanEvent{CycleTime: cycleTime, Result: row})
		if err != nil {
			p.logger.Error("failed to serialize scan result",
				zap.String("symbol", row.Symbol), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		subject := fmt.Sprintf("%s.%s", p.cfg.SubjectPrefix, row.Symbol)
		if err := p.nc.Publish(subject, payload); err != nil {
			p.logger.Error("failed to publish scan result",
				zap.String("subject", subject), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Flush(); err != nil {
		p.logger.Warn("nats flush on close", zap.Error(err))
	}
	p.nc.Close()
}
