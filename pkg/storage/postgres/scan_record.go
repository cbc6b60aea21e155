package postgres

import "time"

// ScanRecord is one qualifying differential-scan row persisted per cycle.
type ScanRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index: one row per symbol per cycle
	Symbol    string    `gorm:"type:text;not null;index:idx_scan_symbol;index:idx_symbol_cycle,unique"`
	CycleTime time.Time `gorm:"not null;index:idx_symbol_cycle,unique;index:idx_scan_cycle_time"`

	Price         float64 `gorm:"type:numeric;not null"`
	TradesDelta   int64   `gorm:"not null"`
	CurrentTrades int64   `gorm:"not null"`
	VolumeDelta   int64   `gorm:"not null"`
	PercentChange float64 `gorm:"type:numeric;not null"`
	PrevClose     float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (ScanRecord) TableName() string {
	return "scan_record"
}
