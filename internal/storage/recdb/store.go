// Package recdb persists the recommendation audit trail using BadgerHold.
// Every generated recommendation and every full review cycle is kept until
// purged, so past advice stays explainable.
package recdb

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/models"
)

// Store implements interfaces.RecommendationStorage using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore opens the audit store at path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recdb path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open recdb at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Audit store opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) SaveRecommendation(_ context.Context, rec *models.RecommendationRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("recommendation record needs an ID")
	}
	if err := s.db.Upsert(rec.ID, rec); err != nil {
		return fmt.Errorf("failed to save recommendation '%s': %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns audit records for a symbol, newest first.
func (s *Store) ListRecent(_ context.Context, symbol string, limit int) ([]*models.RecommendationRecord, error) {
	var all []models.RecommendationRecord
	if err := s.db.Find(&all, badgerhold.Where("Symbol").Eq(symbol)); err != nil {
		return nil, fmt.Errorf("failed to list recommendations for '%s': %w", symbol, err)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StoredAt.After(all[j].StoredAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	result := make([]*models.RecommendationRecord, len(all))
	for i := range all {
		result[i] = &all[i]
	}
	return result, nil
}

func (s *Store) SaveReview(_ context.Context, review *models.PortfolioReview) error {
	if review.CycleID == "" {
		return fmt.Errorf("review needs a cycle ID")
	}
	rec := &models.ReviewRecord{
		CycleID:  review.CycleID,
		Review:   *review,
		StoredAt: time.Now(),
	}
	if err := s.db.Upsert(rec.CycleID, rec); err != nil {
		return fmt.Errorf("failed to save review '%s': %w", rec.CycleID, err)
	}
	return nil
}

// LatestReview returns the most recently stored review cycle.
func (s *Store) LatestReview(_ context.Context) (*models.PortfolioReview, error) {
	var all []models.ReviewRecord
	if err := s.db.Find(&all, nil); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no reviews stored yet")
	}

	latest := all[0]
	for _, rec := range all[1:] {
		if rec.StoredAt.After(latest.StoredAt) {
			latest = rec
		}
	}
	return &latest.Review, nil
}

// PurgeOlderThan removes recommendations and reviews stored before the
// cutoff. Returns the number of records removed.
func (s *Store) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	count := 0

	var recs []models.RecommendationRecord
	if err := s.db.Find(&recs, badgerhold.Where("StoredAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale recommendations: %w", err)
	}
	for _, rec := range recs {
		if err := s.db.Delete(rec.ID, models.RecommendationRecord{}); err == nil {
			count++
		}
	}

	var reviews []models.ReviewRecord
	if err := s.db.Find(&reviews, badgerhold.Where("StoredAt").Lt(cutoff)); err != nil {
		return count, fmt.Errorf("failed to find stale reviews: %w", err)
	}
	for _, rec := range reviews {
		if err := s.db.Delete(rec.CycleID, models.ReviewRecord{}); err == nil {
			count++
		}
	}

	if count > 0 {
		s.logger.Debug().Int("purged", count).Time("cutoff", cutoff).Msg("Purged audit records")
	}
	return count, nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
