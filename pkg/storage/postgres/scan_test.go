package postgres_test

import (
	"context"
	"testing"
	"time"

	"marketscan/config"
	"marketscan/internal/scanner"
	"marketscan/pkg/storage/postgres"
)

// Requires a local Postgres; skipped otherwise.
// go test -v --run TestScanRecordCRUD
func TestScanRecordCRUD(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "yourpw",
		DBName:   "marketscan",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	client, err := postgres.NewClient(cfg.DSN("dev"))
	if err != nil {
		t.Skipf("no local postgres: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if !client.IsHealthy(ctx) {
		t.Skip("postgres not reachable")
	}

	if err := client.AutoMigrateScanRecord(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cycleTime := time.Now().Truncate(time.Second)
	rows := []scanner.Result{
		{
			Symbol:        "AAPL",
			Price:         187.15,
			TradesDelta:   570,
			CurrentTrades: 1000,
			VolumeDelta:   70000,
			PercentChange: 8.0,
			PrevClose:     173.3,
		},
	}

	// Insert
	if err := client.InsertScanResults(ctx, cycleTime, rows); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Replaying the same cycle must not error or duplicate.
	if err := client.InsertScanResults(ctx, cycleTime, rows); err != nil {
		t.Fatalf("idempotent re-insert failed: %v", err)
	}

	// Read
	got, err := client.GetScanResults(ctx, "AAPL", cycleTime.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].TradesDelta != 570 || got[0].PercentChange != 8.0 {
		t.Errorf("unexpected row values: %+v", got[0])
	}

	// Delete
	if err := client.DeleteOldScanResults(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Errorf("delete failed: %v", err)
	}
	remaining, err := client.GetScanResults(ctx, "AAPL", cycleTime.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no rows after delete, got %d", len(remaining))
	}
}
