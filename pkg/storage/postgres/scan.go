package postgres

import (
	"context"
	"time"

	"marketscan/internal/scanner"

	"gorm.io/gorm/clause"
)

// InsertScanResults persists one cycle's qualifying rows. A conflict on
// (symbol, cycle time) is skipped silently so a replayed cycle is idempotent.
func (p *PostgresClient) InsertScanResults(ctx context.Context, cycleTime time.Time, rows []scanner.Result) error {
	if len(rows) == 0 {
		return nil
	}

	records := make([]ScanRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, ScanRecord{
			Symbol:        r.Symbol,
			CycleTime:     cycleTime,
			Price:         r.Price,
			TradesDelta:   r.TradesDelta,
			CurrentTrades: r.CurrentTrades,
			VolumeDelta:   r.VolumeDelta,
			PercentChange: r.PercentChange,
			PrevClose:     r.PrevClose,
		})
	}

	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "cycle_time"},
		},
		DoNothing: true,
	}).Create(&records).Error
}

// PublishResults makes the client usable as a scanner result sink.
func (p *PostgresClient) PublishResults(ctx context.Context, cycleTime time.Time, rows []scanner.Result) error {
	return p.InsertScanResults(ctx, cycleTime, rows)
}

// GetScanResults returns persisted rows for a symbol within a time range,
// newest first.
func (p *PostgresClient) GetScanResults(ctx context.Context, symbol string, since time.Time, limit int) ([]ScanRecord, error) {
	var records []ScanRecord
	q := p.DB.WithContext(ctx).
		Where("symbol = ? AND cycle_time >= ?", symbol, since).
		Order("cycle_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteOldScanResults removes rows older than the cutoff.
func (p *PostgresClient) DeleteOldScanResults(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("cycle_time < ?", before).
		Delete(&ScanRecord{}).Error
}
