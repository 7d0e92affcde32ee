package models

import "time"

// Action is the advisory verdict for a holding.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	// ActionWatch means the engine lacks the data or the conviction to
	// advise a position change.
	ActionWatch Action = "WATCH"
)

// Factor names emitted by the fusion engine.
const (
	FactorUnrealizedPnL    = "unrealized_pnl"
	FactorMomentum         = "momentum"
	FactorSentiment        = "sentiment"
	FactorInsufficientData = "insufficient_data"
)

// Factor is one scored input to a recommendation. Weight is the
// renormalized weight actually applied, so the factors on a
// recommendation always explain its score.
type Factor struct {
	Name            string  `json:"name"`
	Weight          float64 `json:"weight"`
	NormalizedValue float64 `json:"normalized_value"` // -1..+1
	Confidence      float64 `json:"confidence"`       // 0..1
}

// Contribution returns the factor's signed share of the fused score.
func (f Factor) Contribution() float64 {
	return f.Weight * f.NormalizedValue
}

// Recommendation is the engine's structured output for one symbol.
// Narration renders it downstream; nothing here is free text.
type Recommendation struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Action         Action     `json:"action"`
	Score          float64    `json:"score"`      // fused composite, -1..+1
	Confidence     float64    `json:"confidence"` // 0..1
	Factors        []Factor   `json:"factors"`    // ordered by |weight*value| desc
	UnrealizedPnL  *float64   `json:"unrealized_pnl_pct,omitempty"`
	GeneratedAt    time.Time  `json:"generated_at"`
	SnapshotSource string     `json:"snapshot_source,omitempty"`
	SnapshotAsOf   time.Time  `json:"snapshot_as_of,omitempty"`
	SentimentAsOf  *time.Time `json:"sentiment_as_of,omitempty"`
}

// InsufficientData reports whether the engine declined to score for lack
// of inputs.
func (r *Recommendation) InsufficientData() bool {
	for _, f := range r.Factors {
		if f.Name == FactorInsufficientData {
			return true
		}
	}
	return false
}

// PortfolioReview is the output of one full analysis cycle.
type PortfolioReview struct {
	CycleID         string             `json:"cycle_id"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Recommendations []*Recommendation  `json:"recommendations"`
	Summary         *PortfolioSummary  `json:"summary,omitempty"`
	RowErrors       []ValidationError  `json:"row_errors,omitempty"`
	FetchErrors     map[string]string  `json:"fetch_errors,omitempty"` // symbol -> message
	Narratives      map[string]string  `json:"narratives,omitempty"`   // symbol -> rendered text
}

// RecommendationRecord is the audit-trail row persisted for each
// generated recommendation.
type RecommendationRecord struct {
	ID             string         `json:"id" badgerhold:"key"`
	CycleID        string         `json:"cycle_id"`
	Symbol         string         `json:"symbol"`
	Recommendation Recommendation `json:"recommendation"`
	StoredAt       time.Time      `json:"stored_at"`
}
