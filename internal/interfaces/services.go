// Package interfaces defines service contracts for the advisor engine
package interfaces

import (
	"context"

	"github.com/stockbuddy/advisor/internal/models"
)

// MarketService serves market snapshots with caching, coalescing, retry,
// and provider fallback behind one call.
type MarketService interface {
	// GetSnapshot returns the current snapshot for a symbol. A non-nil
	// snapshot always has a usable price; a failed fetch returns an error,
	// never a zeroed snapshot.
	GetSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error)

	// RefreshSymbols pre-warms the snapshot cache for a set of symbols.
	// Per-symbol failures are logged and skipped.
	RefreshSymbols(ctx context.Context, symbols []string)
}

// SentimentService aggregates recent news into a per-symbol signal.
type SentimentService interface {
	// GetSentiment returns the aggregated signal for a symbol. Zero usable
	// articles yields SampleSize 0 and a nil polarity, not an error.
	GetSentiment(ctx context.Context, symbol string) (*models.SentimentSignal, error)

	// GetArticles returns the scored, deduplicated articles behind the
	// signal, most relevant first.
	GetArticles(ctx context.Context, symbol string, limit int) ([]*models.NewsArticle, error)
}

// AdvisorService orchestrates the analysis cycle.
type AdvisorService interface {
	// AnalyzePortfolio runs a full cycle over the portfolio CSV
	AnalyzePortfolio(ctx context.Context, options ReviewOptions) (*models.PortfolioReview, error)

	// AnalyzeSymbol analyzes a single symbol, whether or not it is held
	AnalyzeSymbol(ctx context.Context, symbol string) (*models.Recommendation, error)

	// Summarize computes portfolio totals and per-position weights
	Summarize(ctx context.Context) (*models.PortfolioSummary, error)
}

// ReviewOptions configures a portfolio analysis cycle
type ReviewOptions struct {
	Symbols []string // restrict the cycle to these symbols; empty = all
	Narrate bool     // attach prose narratives to recommendations
}

// Narrator renders a structured recommendation as prose. Implementations
// must not alter the decision, only phrase it.
type Narrator interface {
	Render(ctx context.Context, rec *models.Recommendation) (string, error)
}
