package models

import "time"

// NewsArticle is one headline fetched for a symbol.
type NewsArticle struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Polarity    *float64  `json:"polarity,omitempty"`  // provider-scored, -1..+1; nil when unscored
	Relevance   float64   `json:"relevance,omitempty"` // 0..1, set by the aggregator
}

// SentimentSignal is the aggregated news sentiment for a symbol over a window.
// Polarity is nil when SampleSize is zero: no articles means no opinion,
// never a neutral 0.0.
type SentimentSignal struct {
	Symbol     string        `json:"symbol"`
	Polarity   *float64      `json:"polarity,omitempty"` // weighted mean, -1..+1
	SampleSize int           `json:"sample_size"`
	Variance   float64       `json:"variance"`
	Confidence float64       `json:"confidence"` // 0..1; grows with samples, shrinks with variance
	Window     time.Duration `json:"window"`
	AsOf       time.Time     `json:"as_of"`
}

// HasPolarity reports whether the signal carries a usable polarity.
func (s *SentimentSignal) HasPolarity() bool {
	return s != nil && s.Polarity != nil && s.SampleSize > 0
}

// PolarityValue returns the polarity, or 0 with ok=false when absent.
func (s *SentimentSignal) PolarityValue() (float64, bool) {
	if !s.HasPolarity() {
		return 0, false
	}
	return *s.Polarity, true
}
