// Package marketdb caches fetched market state per symbol using BadgerHold.
// Snapshots, close series and sentiment signals age on their own TTLs, so
// each lives under its own record type keyed by symbol.
package marketdb

import (
	"context"
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/models"
)

// Store implements interfaces.MarketDataStorage using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore opens the market cache at path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create marketdb path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open marketdb at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("Market cache opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) GetSnapshot(_ context.Context, symbol string) (*models.SnapshotRecord, error) {
	var rec models.SnapshotRecord
	if err := s.db.Get(symbol, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no cached snapshot for '%s'", symbol)
		}
		return nil, fmt.Errorf("failed to get snapshot for '%s': %w", symbol, err)
	}
	return &rec, nil
}

func (s *Store) SaveSnapshot(_ context.Context, rec *models.SnapshotRecord) error {
	if err := s.db.Upsert(rec.Symbol, rec); err != nil {
		return fmt.Errorf("failed to save snapshot for '%s': %w", rec.Symbol, err)
	}
	return nil
}

func (s *Store) GetCloses(_ context.Context, symbol string) (*models.CloseSeriesRecord, error) {
	var rec models.CloseSeriesRecord
	if err := s.db.Get(symbol, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no cached closes for '%s'", symbol)
		}
		return nil, fmt.Errorf("failed to get closes for '%s': %w", symbol, err)
	}
	return &rec, nil
}

func (s *Store) SaveCloses(_ context.Context, rec *models.CloseSeriesRecord) error {
	if err := s.db.Upsert(rec.Symbol, rec); err != nil {
		return fmt.Errorf("failed to save closes for '%s': %w", rec.Symbol, err)
	}
	return nil
}

func (s *Store) GetSentiment(_ context.Context, symbol string) (*models.SentimentRecord, error) {
	var rec models.SentimentRecord
	if err := s.db.Get(symbol, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no cached sentiment for '%s'", symbol)
		}
		return nil, fmt.Errorf("failed to get sentiment for '%s': %w", symbol, err)
	}
	return &rec, nil
}

func (s *Store) SaveSentiment(_ context.Context, rec *models.SentimentRecord) error {
	if err := s.db.Upsert(rec.Symbol, rec); err != nil {
		return fmt.Errorf("failed to save sentiment for '%s': %w", rec.Symbol, err)
	}
	return nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
