// Package interfaces defines service contracts for the advisor engine
package interfaces

import (
	"context"
	"time"

	"github.com/stockbuddy/advisor/internal/models"
)

// MarketDataClient provides quotes and recent close history from one
// provider. Failures surface as models.FetchFailure so callers can decide
// retry vs fallback.
type MarketDataClient interface {
	// Name identifies the provider ("eodhd", "yahoo") for snapshot sourcing
	Name() string

	// GetQuote retrieves the latest quote for a symbol
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetCloses retrieves recent daily closes, date-ascending
	GetCloses(ctx context.Context, symbol string, opts ...ClosesOption) ([]models.ClosePoint, error)
}

// ClosesOption configures close-history requests
type ClosesOption func(*ClosesParams)

// ClosesParams holds close-history query parameters
type ClosesParams struct {
	From  time.Time
	To    time.Time
	Limit int
}

// WithCloseRange sets the date range for the close query
func WithCloseRange(from, to time.Time) ClosesOption {
	return func(p *ClosesParams) {
		p.From = from
		p.To = to
	}
}

// WithCloseLimit caps the number of returned closes
func WithCloseLimit(limit int) ClosesOption {
	return func(p *ClosesParams) {
		p.Limit = limit
	}
}

// NewsClient provides recent headlines for a symbol.
type NewsClient interface {
	// Name identifies the provider ("newswire", "eodhd")
	Name() string

	// GetNews retrieves recent articles for a symbol, newest first
	GetNews(ctx context.Context, symbol string, opts ...NewsOption) ([]*models.NewsArticle, error)
}

// NewsOption configures news requests
type NewsOption func(*NewsParams)

// NewsParams holds news query parameters
type NewsParams struct {
	From  time.Time
	Limit int
}

// WithNewsSince sets the oldest publish date to include
func WithNewsSince(from time.Time) NewsOption {
	return func(p *NewsParams) {
		p.From = from
	}
}

// WithNewsLimit caps the number of returned articles
func WithNewsLimit(limit int) NewsOption {
	return func(p *NewsParams) {
		p.Limit = limit
	}
}

// GeminiClient provides access to the Gemini API
type GeminiClient interface {
	// GenerateContent generates text from a prompt
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
