package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketscan/internal/scanner"
)

// ErrMissingCredentials means the API key pair was not configured. This is a
// construction-time failure so a scan can never start without credentials.
var ErrMissingCredentials = errors.New("alpaca api credentials not set")

// RESTClient calls the Alpaca market data REST API.
type RESTClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

func NewRESTClient(baseURL, apiKey, apiSecret string, timeout time.Duration) (*RESTClient, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// FetchSnapshots fetches snapshots for a batch of symbols in one call and
// reduces each to the metrics the differential scanner diffs on. Symbols with
// an empty snapshot are omitted from the result, which callers treat as "no
// fresh data this cycle".
func (c *RESTClient) FetchSnapshots(ctx context.Context, symbols []string) (map[string]scanner.Metric, error) {
	if len(symbols) == 0 {
		return map[string]scanner.Metric{}, nil
	}

	endpoint := fmt.Sprintf("%s/v2/stocks/snapshots?symbols=%s",
		c.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("alpaca error (%d): %s", resp.StatusCode, body)
	}

	var snapshots map[string]*Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshots); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	polledAt := time.Now()
	metrics := make(map[string]scanner.Metric, len(snapshots))
	for symbol, snap := range snapshots {
		if snap == nil {
			continue
		}
		metrics[symbol] = toMetric(symbol, snap, polledAt)
	}
	return metrics, nil
}

// toMetric extracts the scanner's metric fields from a snapshot. The latest
// trade price is preferred; the minute-bar close stands in when no trade has
// printed yet.
func toMetric(symbol string, snap *Snapshot, polledAt time.Time) scanner.Metric {
	m := scanner.Metric{Symbol: symbol, PolledAt: polledAt}

	if snap.LatestTrade != nil {
		m.Price = snap.LatestTrade.Price
	}
	if snap.MinuteBar != nil {
		if m.Price == 0 {
			m.Price = snap.MinuteBar.Close
		}
		m.MinuteTradeCount = snap.MinuteBar.TradeCount
		m.MinuteVolume = snap.MinuteBar.Volume
	}
	if snap.DailyBar != nil {
		m.DailyClose = snap.DailyBar.Close
	}
	if snap.PrevDailyBar != nil {
		m.PreviousClose = snap.PrevDailyBar.Close
	}
	return m
}
