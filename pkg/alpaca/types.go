package alpaca

// Trade is the latest trade inside a snapshot.
type Trade struct {
	Price     float64 `json:"p"` // trade price
	Size      int64   `json:"s"` // trade size
	Timestamp string  `json:"t"` // RFC3339 trade time
}

// Quote is the latest NBBO quote inside a snapshot.
type Quote struct {
	BidPrice  float64 `json:"bp"`
	BidSize   int64   `json:"bs"`
	AskPrice  float64 `json:"ap"`
	AskSize   int64   `json:"as"`
	Timestamp string  `json:"t"`
}

// Bar is an aggregate of all trades within one interval (minute or day).
type Bar struct {
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     int64   `json:"v"`
	TradeCount int64   `json:"n"` // number of trades in the bar
	VWAP       float64 `json:"vw"`
	Timestamp  string  `json:"t"`
}

// Snapshot is one symbol's entry in the /v2/stocks/snapshots response.
// Any section may be absent for thinly traded symbols.
type Snapshot struct {
	LatestTrade  *Trade `json:"latestTrade"`
	LatestQuote  *Quote `json:"latestQuote"`
	MinuteBar    *Bar   `json:"minuteBar"`
	DailyBar     *Bar   `json:"dailyBar"`
	PrevDailyBar *Bar   `json:"prevDailyBar"`
}
