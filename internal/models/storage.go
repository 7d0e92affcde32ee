package models

import "time"

// SnapshotRecord is the cached market snapshot for one symbol. StoredAt
// drives the quote TTL check; the snapshot inside keeps its own AsOf.
type SnapshotRecord struct {
	Symbol   string         `badgerhold:"key" json:"symbol"`
	Snapshot MarketSnapshot `json:"snapshot"`
	StoredAt time.Time      `json:"stored_at"`
}

// CloseSeriesRecord is the cached recent-close series for one symbol.
// Closes age on a slower TTL than quotes, so they are cached separately
// and re-attached to fresh quotes without a historical refetch.
type CloseSeriesRecord struct {
	Symbol   string       `badgerhold:"key" json:"symbol"`
	Source   string       `json:"source"`
	Points   []ClosePoint `json:"points"`
	StoredAt time.Time    `json:"stored_at"`
}

// SentimentRecord is the cached sentiment signal for one symbol, along with
// the scored articles it was aggregated from, most relevant first.
type SentimentRecord struct {
	Symbol   string          `badgerhold:"key" json:"symbol"`
	Signal   SentimentSignal `json:"signal"`
	Articles []NewsArticle   `json:"articles,omitempty"`
	StoredAt time.Time       `json:"stored_at"`
}

// ReviewRecord is the persisted form of one full analysis cycle.
type ReviewRecord struct {
	CycleID  string          `badgerhold:"key" json:"cycle_id"`
	Review   PortfolioReview `json:"review"`
	StoredAt time.Time       `json:"stored_at"`
}
