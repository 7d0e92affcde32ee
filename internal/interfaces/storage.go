// Package interfaces defines service contracts for the advisor engine
package interfaces

import (
	"context"
	"time"

	"github.com/stockbuddy/advisor/internal/models"
)

// PortfolioStore reads and writes the holdings CSV.
type PortfolioStore interface {
	// Load parses the CSV. Malformed rows are returned as row errors and
	// never silently coerced; valid rows still load.
	Load(ctx context.Context) ([]models.Holding, []models.ValidationError, error)

	// Save writes holdings back in canonical column order, atomically.
	Save(ctx context.Context, holdings []models.Holding) error

	// Path returns the backing file path
	Path() string
}

// StorageManager coordinates the embedded store's facades.
type StorageManager interface {
	MarketDataStorage() MarketDataStorage
	RecommendationStorage() RecommendationStorage

	// DataPath returns the base data directory path
	DataPath() string

	Close() error
}

// MarketDataStorage caches fetched market state per symbol. Gets return a
// descriptive error on miss; cache readers treat a nil record as a miss.
type MarketDataStorage interface {
	GetSnapshot(ctx context.Context, symbol string) (*models.SnapshotRecord, error)
	SaveSnapshot(ctx context.Context, rec *models.SnapshotRecord) error

	GetCloses(ctx context.Context, symbol string) (*models.CloseSeriesRecord, error)
	SaveCloses(ctx context.Context, rec *models.CloseSeriesRecord) error

	GetSentiment(ctx context.Context, symbol string) (*models.SentimentRecord, error)
	SaveSentiment(ctx context.Context, rec *models.SentimentRecord) error
}

// RecommendationStorage is the append-only audit trail of what the engine
// decided and the reviews those decisions rolled up into.
type RecommendationStorage interface {
	SaveRecommendation(ctx context.Context, rec *models.RecommendationRecord) error

	// ListRecent returns records for a symbol, newest first
	ListRecent(ctx context.Context, symbol string, limit int) ([]*models.RecommendationRecord, error)

	SaveReview(ctx context.Context, review *models.PortfolioReview) error

	// LatestReview returns the most recently stored review
	LatestReview(ctx context.Context) (*models.PortfolioReview, error)

	// PurgeOlderThan removes audit records stored before the cutoff
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
