// Package market provides the cached market snapshot service
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// DefaultCloseWindowDays is how many daily closes a snapshot carries.
// Wide enough for the momentum window with a chartable tail left over.
const DefaultCloseWindowDays = 30

// FetchBudget bounds one coalesced fetch pipeline. The pipeline runs
// detached from every caller's context, so this is the only thing that
// stops a hung fetch; it must outlast a full retry envelope against a
// slow provider.
var FetchBudget = 90 * time.Second

// fetchCall is one in-flight coalesced fetch. Waiters block on done and
// then read the result fields.
type fetchCall struct {
	done   chan struct{}
	snap   *models.MarketSnapshot
	points []models.ClosePoint
	err    error
}

// Service implements MarketService with a primary/fallback provider pair
// in front of the snapshot cache. Duplicate in-flight fetches for the same
// symbol share one outbound call.
type Service struct {
	cache    interfaces.MarketDataStorage
	primary  interfaces.MarketDataClient
	fallback interfaces.MarketDataClient

	retrier    common.Retrier
	quoteTTL   time.Duration
	closesTTL  time.Duration
	softWindow time.Duration
	hardWindow time.Duration

	// semaphore bounds concurrent outbound provider calls
	semaphore chan struct{}

	mu       sync.Mutex
	inflight map[string]*fetchCall

	logger *common.Logger
	now    func() time.Time // injectable clock for testing
}

// NewService creates a market snapshot service. fallback may be nil, in
// which case provider fallback is skipped.
func NewService(cache interfaces.MarketDataStorage, primary, fallback interfaces.MarketDataClient, cfg *common.Config, logger *common.Logger) *Service {
	maxConcurrent := cfg.Engine.MaxConcurrentSymbols
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		cache:      cache,
		primary:    primary,
		fallback:   fallback,
		retrier:    common.NewRetrier(cfg.Engine.Retry),
		quoteTTL:   cfg.Engine.Freshness.GetQuoteTTL(),
		closesTTL:  cfg.Engine.Freshness.GetClosesTTL(),
		softWindow: cfg.Engine.Staleness.GetSoftWindow(),
		hardWindow: cfg.Engine.Staleness.GetHardWindow(),
		semaphore:  make(chan struct{}, maxConcurrent),
		inflight:   make(map[string]*fetchCall),
		logger:     logger,
		now:        time.Now,
	}
}

// GetSnapshot returns the current snapshot for a symbol, serving from the
// cache under the quote TTL and refetching otherwise. When every provider
// fails, a cached snapshot still inside the hard staleness window is served
// with Fresh=false rather than failing the symbol.
func (s *Service) GetSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	cached, _ := s.cache.GetSnapshot(ctx, symbol)
	if cached != nil && common.IsFreshAt(cached.StoredAt, s.quoteTTL, s.now()) {
		return s.serve(&cached.Snapshot), nil
	}

	c, err := s.coalesce(ctx, "quote:"+symbol, func(fetchCtx context.Context) (*models.MarketSnapshot, []models.ClosePoint, error) {
		snap, ferr := s.fetchSnapshot(fetchCtx, symbol)
		return snap, nil, ferr
	})
	if err != nil {
		return nil, err
	}
	if c.err != nil {
		// Provider outage: a cached snapshot inside the hard window beats
		// no answer at all.
		if cached != nil && s.withinHardWindow(cached.Snapshot.AsOf) {
			s.logger.Warn().
				Str("symbol", symbol).
				Err(c.err).
				Time("as_of", cached.Snapshot.AsOf).
				Msg("Quote refetch failed, serving stale cached snapshot")
			return s.serve(&cached.Snapshot), nil
		}
		return nil, c.err
	}
	return s.serve(c.snap), nil
}

// GetRecentCloses returns up to days daily closes for a symbol,
// date-ascending, serving from the cache under the closes TTL. A refetch
// failure falls back to whatever series is cached; closes move slowly
// enough that an aged series still beats none.
func (s *Service) GetRecentCloses(ctx context.Context, symbol string, days int) ([]models.ClosePoint, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if days <= 0 {
		days = DefaultCloseWindowDays
	}

	cached, _ := s.cache.GetCloses(ctx, symbol)
	if cached != nil && len(cached.Points) > 0 && common.IsFreshAt(cached.StoredAt, s.closesTTL, s.now()) {
		return tail(cached.Points, days), nil
	}

	// Fetch the default window even for smaller asks so the cached series
	// serves every later caller.
	window := days
	if window < DefaultCloseWindowDays {
		window = DefaultCloseWindowDays
	}

	c, err := s.coalesce(ctx, "closes:"+symbol, func(fetchCtx context.Context) (*models.MarketSnapshot, []models.ClosePoint, error) {
		points, ferr := s.fetchCloses(fetchCtx, symbol, window)
		return nil, points, ferr
	})
	if err != nil {
		return nil, err
	}
	if c.err != nil {
		if cached != nil && len(cached.Points) > 0 {
			s.logger.Warn().
				Str("symbol", symbol).
				Err(c.err).
				Msg("Close refetch failed, serving cached series")
			return tail(cached.Points, days), nil
		}
		return nil, c.err
	}
	return tail(c.points, days), nil
}

// RefreshSymbols pre-warms the snapshot cache for a set of symbols.
// Failures are logged and skipped so one bad symbol never blocks the rest.
func (s *Service) RefreshSymbols(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			if _, err := s.GetSnapshot(ctx, sym); err != nil {
				s.logger.Warn().Str("symbol", sym).Err(err).Msg("Snapshot refresh failed")
			}
		}(symbol)
	}
	wg.Wait()

	s.logger.Debug().Int("symbols", len(symbols)).Msg("Snapshot cache refreshed")
}

// coalesce funnels concurrent fetches that share a key into a single run.
// The run is detached (Background plus FetchBudget) so one waiter's
// cancellation cannot disturb the others; each waiter still honors its own
// context while waiting.
func (s *Service) coalesce(ctx context.Context, key string, run func(context.Context) (*models.MarketSnapshot, []models.ClosePoint, error)) (*fetchCall, error) {
	s.mu.Lock()
	if c, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &fetchCall{done: make(chan struct{})}
	s.inflight[key] = c
	s.mu.Unlock()

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), FetchBudget)
		defer cancel()
		c.snap, c.points, c.err = run(fetchCtx)

		// Drop the entry before signalling so late arrivals start a fresh
		// fetch instead of joining a finished one.
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		close(c.done)
	}()

	select {
	case <-c.done:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchSnapshot is the outbound pipeline: quote with retry and fallback,
// close history on its own TTL, then the cache write.
func (s *Service) fetchSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	quote, source, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	snap := &models.MarketSnapshot{
		Symbol:        symbol,
		CurrentPrice:  quote.Price,
		PreviousClose: quote.PreviousClose,
		DayChangePct:  quote.ChangePct,
		Volume:        quote.Volume,
		AsOf:          quote.AsOf,
		Source:        source,
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = s.now()
	}

	// Losing the close series degrades the momentum factor, not the snapshot.
	closes, err := s.GetRecentCloses(ctx, symbol, DefaultCloseWindowDays)
	if err != nil {
		s.logger.Warn().Str("symbol", symbol).Err(err).Msg("No close history for snapshot")
	} else {
		snap.RecentCloses = closes
	}

	rec := &models.SnapshotRecord{Symbol: symbol, Snapshot: *snap, StoredAt: s.now()}
	if err := s.cache.SaveSnapshot(ctx, rec); err != nil {
		s.logger.Warn().Str("symbol", symbol).Err(err).Msg("Failed to cache snapshot")
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Str("source", source).
		Float64("price", snap.CurrentPrice).
		Msg("Market snapshot fetched")

	return snap, nil
}

// fetchQuote tries the primary provider with retries, then the fallback.
// The returned quote always has a usable price.
func (s *Service) fetchQuote(ctx context.Context, symbol string) (*models.Quote, string, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, "", err
	}
	defer s.release()

	quote, primaryErr := common.RetryWithResult(ctx, s.retrier, func() (*models.Quote, error) {
		return s.primary.GetQuote(ctx, symbol)
	})
	if primaryErr == nil {
		if quote != nil && quote.Price > 0 {
			return quote, s.primary.Name(), nil
		}
		primaryErr = fmt.Errorf("%s returned no usable price for %s", s.primary.Name(), symbol)
	}

	if s.fallback == nil {
		return nil, "", primaryErr
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("fallback", s.fallback.Name()).
		Err(primaryErr).
		Msg("Primary quote failed, attempting fallback")

	fbQuote, fbErr := common.RetryWithResult(ctx, s.retrier, func() (*models.Quote, error) {
		return s.fallback.GetQuote(ctx, symbol)
	})
	if fbErr == nil {
		if fbQuote != nil && fbQuote.Price > 0 {
			s.logger.Info().
				Str("symbol", symbol).
				Str("source", s.fallback.Name()).
				Float64("price", fbQuote.Price).
				Msg("Fallback quote succeeded")
			return fbQuote, s.fallback.Name(), nil
		}
		fbErr = fmt.Errorf("%s returned no usable price for %s", s.fallback.Name(), symbol)
	}

	s.logger.Warn().Str("symbol", symbol).Err(fbErr).Msg("Fallback quote failed")
	return nil, "", primaryErr
}

// fetchCloses pulls a close series with the same retry and fallback
// treatment as quotes, and caches what it gets.
func (s *Service) fetchCloses(ctx context.Context, symbol string, days int) ([]models.ClosePoint, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	now := s.now()
	// Calendar span needs padding: markets close on weekends.
	from := now.AddDate(0, 0, -(days*2 + 5))
	opts := []interfaces.ClosesOption{
		interfaces.WithCloseRange(from, now),
		interfaces.WithCloseLimit(days),
	}

	points, primaryErr := common.RetryWithResult(ctx, s.retrier, func() ([]models.ClosePoint, error) {
		return s.primary.GetCloses(ctx, symbol, opts...)
	})
	if primaryErr == nil {
		if len(points) > 0 {
			s.storeCloses(ctx, symbol, s.primary.Name(), points)
			return points, nil
		}
		primaryErr = fmt.Errorf("%s returned no close history for %s", s.primary.Name(), symbol)
	}

	if s.fallback == nil {
		return nil, primaryErr
	}

	s.logger.Info().
		Str("symbol", symbol).
		Str("fallback", s.fallback.Name()).
		Err(primaryErr).
		Msg("Primary close fetch failed, attempting fallback")

	fbPoints, fbErr := common.RetryWithResult(ctx, s.retrier, func() ([]models.ClosePoint, error) {
		return s.fallback.GetCloses(ctx, symbol, opts...)
	})
	if fbErr == nil && len(fbPoints) > 0 {
		s.storeCloses(ctx, symbol, s.fallback.Name(), fbPoints)
		return fbPoints, nil
	}

	s.logger.Warn().Str("symbol", symbol).Err(fbErr).Msg("Fallback close fetch failed")
	return nil, primaryErr
}

// storeCloses caches a fetched close series. Cache write failures are
// logged, never propagated.
func (s *Service) storeCloses(ctx context.Context, symbol, source string, points []models.ClosePoint) {
	rec := &models.CloseSeriesRecord{Symbol: symbol, Source: source, Points: points, StoredAt: s.now()}
	if err := s.cache.SaveCloses(ctx, rec); err != nil {
		s.logger.Warn().Str("symbol", symbol).Err(err).Msg("Failed to cache close series")
	}
}

// acquire takes a semaphore slot, honoring cancellation while waiting.
func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() {
	<-s.semaphore
}

// serve stamps the freshness flag for this delivery. Fresh is relative to
// the moment of serving, not the moment of caching.
func (s *Service) serve(snap *models.MarketSnapshot) *models.MarketSnapshot {
	out := *snap
	out.Fresh = common.IsFreshAt(out.AsOf, s.softWindow, s.now())
	return &out
}

// withinHardWindow reports whether a cached snapshot is still servable at
// all; beyond the hard window it is treated as missing.
func (s *Service) withinHardWindow(asOf time.Time) bool {
	if asOf.IsZero() {
		return false
	}
	return s.now().Sub(asOf) <= s.hardWindow
}

// tail returns the most recent n points of a date-ascending series.
func tail(points []models.ClosePoint, n int) []models.ClosePoint {
	if n <= 0 || len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

// normalizeSymbol canonicalizes a symbol for cache keys and provider calls.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Ensure Service implements MarketService
var _ interfaces.MarketService = (*Service)(nil)
