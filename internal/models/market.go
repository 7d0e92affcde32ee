package models

import "time"

// ClosePoint is a single daily closing price.
type ClosePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Quote is the raw intraday quote a market data provider returns. The
// market service folds it together with a close series into a snapshot.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePct     float64   `json:"change_pct"`
	Volume        int64     `json:"volume"`
	AsOf          time.Time `json:"as_of"`
}

// MarketSnapshot holds the per-symbol market state used for scoring.
// A snapshot only exists for a successful fetch: CurrentPrice is always > 0.
type MarketSnapshot struct {
	Symbol        string       `json:"symbol"`
	CurrentPrice  float64      `json:"current_price"`
	PreviousClose float64      `json:"previous_close"`
	DayChangePct  float64      `json:"day_change_pct"`
	Volume        int64        `json:"volume"`
	RecentCloses  []ClosePoint `json:"recent_closes,omitempty"` // date-ascending
	AsOf          time.Time    `json:"as_of"`
	Source        string       `json:"source"` // "eodhd" or "yahoo"
	Fresh         bool         `json:"fresh"`  // AsOf within the staleness window when served
}

// Age returns the snapshot age relative to now.
func (s *MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.AsOf)
}
