package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const snapshotsBody = `{
	"AAPL": {
		"latestTrade": {"p": 187.15, "s": 100, "t": "2026-03-15T14:30:05.123Z"},
		"minuteBar":   {"o": 187.0, "h": 187.3, "l": 186.9, "c": 187.1, "v": 54000, "n": 812, "vw": 187.1, "t": "2026-03-15T14:30:00Z"},
		"dailyBar":    {"o": 185.0, "h": 188.0, "l": 184.5, "c": 187.1, "v": 9100000, "n": 60231, "vw": 186.4, "t": "2026-03-15T05:00:00Z"},
		"prevDailyBar":{"o": 183.0, "h": 185.5, "l": 182.9, "c": 185.2, "v": 8800000, "n": 58110, "vw": 184.3, "t": "2026-03-14T05:00:00Z"}
	},
	"THIN": {
		"minuteBar": {"o": 4.0, "h": 4.1, "l": 4.0, "c": 4.05, "v": 300, "n": 7, "vw": 4.04, "t": "2026-03-15T14:30:00Z"}
	},
	"GONE": null
}`

// go test -v --run TestFetchSnapshots
func TestFetchSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/stocks/snapshots" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL,THIN,GONE" {
			t.Errorf("unexpected symbols param: %s", got)
		}
		if r.Header.Get("APCA-API-KEY-ID") != "key" || r.Header.Get("APCA-API-SECRET-KEY") != "secret" {
			t.Error("credential headers missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(snapshotsBody))
	}))
	defer srv.Close()

	client, err := NewRESTClient(srv.URL, "key", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}

	metrics, err := client.FetchSnapshots(context.Background(), []string{"AAPL", "THIN", "GONE"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	aapl, ok := metrics["AAPL"]
	if !ok {
		t.Fatal("AAPL missing from result")
	}
	if aapl.Price != 187.15 {
		t.Errorf("Price = %f, want latest trade price 187.15", aapl.Price)
	}
	if aapl.MinuteTradeCount != 812 || aapl.MinuteVolume != 54000 {
		t.Errorf("minute bar fields wrong: %+v", aapl)
	}
	if aapl.PreviousClose != 185.2 || aapl.DailyClose != 187.1 {
		t.Errorf("close fields wrong: %+v", aapl)
	}

	// No latest trade: minute-bar close stands in for the price.
	thin, ok := metrics["THIN"]
	if !ok {
		t.Fatal("THIN missing from result")
	}
	if thin.Price != 4.05 {
		t.Errorf("Price = %f, want minute bar close 4.05", thin.Price)
	}

	// Null snapshots are omitted, not zero-filled.
	if _, ok := metrics["GONE"]; ok {
		t.Error("null snapshot produced a metric")
	}
}

// go test -v --run TestFetchSnapshotsUpstreamError
func TestFetchSnapshotsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"too many requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewRESTClient(srv.URL, "key", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}

	if _, err := client.FetchSnapshots(context.Background(), []string{"AAPL"}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

// go test -v --run TestFetchSnapshotsEmptyBatch
func TestFetchSnapshotsEmptyBatch(t *testing.T) {
	client, err := NewRESTClient("https://example.invalid", "key", "secret", time.Second)
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	metrics, err := client.FetchSnapshots(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch errored: %v", err)
	}
	if len(metrics) != 0 {
		t.Errorf("expected empty result, got %d", len(metrics))
	}
}

// go test -v --run TestNewRESTClientRequiresCredentials
func TestNewRESTClientRequiresCredentials(t *testing.T) {
	if _, err := NewRESTClient("https://example.invalid", "", "secret", time.Second); err != ErrMissingCredentials {
		t.Errorf("missing key: got %v", err)
	}
	if _, err := NewRESTClient("https://example.invalid", "key", "", time.Second); err != ErrMissingCredentials {
		t.Errorf("missing secret: got %v", err)
	}
}
