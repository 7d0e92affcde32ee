// Package sentiment aggregates recent headlines into per-symbol signals
package sentiment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// FetchBudget bounds one coalesced news fetch. The fetch runs detached from
// every caller's context and must outlast a full retry envelope against both
// providers.
var FetchBudget = 90 * time.Second

// fetchCall is one in-flight coalesced fetch. Waiters block on done and then
// read the result fields.
type fetchCall struct {
	done chan struct{}
	rec  *models.SentimentRecord
	err  error
}

// Service implements SentimentService: headlines from a primary/fallback
// provider pair, scored for relevance, deduplicated, and folded into one
// cached signal per symbol. Duplicate in-flight fetches for the same symbol
// share one outbound call.
type Service struct {
	cache    interfaces.MarketDataStorage
	primary  interfaces.NewsClient
	fallback interfaces.NewsClient

	retrier      common.Retrier
	newsTTL      time.Duration
	lookback     time.Duration
	maxArticles  int
	minRelevance float64
	dedupJaccard float64
	smoothingK   float64

	// semaphore bounds concurrent outbound provider calls
	semaphore chan struct{}

	mu       sync.Mutex
	inflight map[string]*fetchCall

	logger *common.Logger
	now    func() time.Time // injectable clock for testing
}

// NewService creates a sentiment service. fallback may be nil, in which case
// provider fallback is skipped.
func NewService(cache interfaces.MarketDataStorage, primary, fallback interfaces.NewsClient, cfg *common.Config, logger *common.Logger) *Service {
	maxConcurrent := cfg.Engine.MaxConcurrentSymbols
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	maxArticles := cfg.Sentiment.MaxArticles
	if maxArticles < 1 {
		maxArticles = 50
	}
	jaccardFloor := cfg.Sentiment.DedupJaccard
	if jaccardFloor <= 0 || jaccardFloor > 1 {
		jaccardFloor = 0.8
	}
	smoothingK := cfg.Sentiment.SmoothingK
	if smoothingK <= 0 {
		smoothingK = 3
	}
	return &Service{
		cache:        cache,
		primary:      primary,
		fallback:     fallback,
		retrier:      common.NewRetrier(cfg.Engine.Retry),
		newsTTL:      cfg.Engine.Freshness.GetNewsTTL(),
		lookback:     cfg.Sentiment.GetLookback(),
		maxArticles:  maxArticles,
		minRelevance: cfg.Sentiment.MinRelevance,
		dedupJaccard: jaccardFloor,
		smoothingK:   smoothingK,
		semaphore:    make(chan struct{}, maxConcurrent),
		inflight:     make(map[string]*fetchCall),
		logger:       logger,
		now:          time.Now,
	}
}

// GetSentiment returns the aggregated signal for a symbol. A symbol with no
// usable articles gets a signal with SampleSize 0 and nil polarity, never an
// error and never a fabricated neutral 0.0.
func (s *Service) GetSentiment(ctx context.Context, symbol string) (*models.SentimentSignal, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	rec, err := s.loadRecord(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sig := rec.Signal
	return &sig, nil
}

// GetArticles returns the scored, deduplicated articles behind the signal,
// most relevant first. limit <= 0 returns them all.
func (s *Service) GetArticles(ctx context.Context, symbol string, limit int) ([]*models.NewsArticle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	rec, err := s.loadRecord(ctx, symbol)
	if err != nil {
		return nil, err
	}

	articles := rec.Articles
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	out := make([]*models.NewsArticle, len(articles))
	for i := range articles {
		a := articles[i]
		out[i] = &a
	}
	return out, nil
}

// loadRecord serves the cached record under the news TTL and refetches
// otherwise. When every provider fails, a cached signal whose window still
// overlaps the one being asked about stands in rather than failing the
// symbol.
func (s *Service) loadRecord(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	cached, _ := s.cache.GetSentiment(ctx, symbol)
	if cached != nil && common.IsFreshAt(cached.StoredAt, s.newsTTL, s.now()) {
		return cached, nil
	}

	c, err := s.coalesce(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if c.err != nil {
		if cached != nil && s.servableOnFailure(cached.Signal.AsOf) {
			s.logger.Warn().
				Str("symbol", symbol).
				Err(c.err).
				Time("as_of", cached.Signal.AsOf).
				Msg("News refetch failed, serving cached sentiment")
			return cached, nil
		}
		return nil, c.err
	}
	return c.rec, nil
}

// coalesce funnels concurrent fetches for a symbol into a single run. The
// run is detached (Background plus FetchBudget) so one waiter's cancellation
// cannot disturb the others; each waiter still honors its own context while
// waiting.
func (s *Service) coalesce(ctx context.Context, symbol string) (*fetchCall, error) {
	s.mu.Lock()
	if c, ok := s.inflight[symbol]; ok {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &fetchCall{done: make(chan struct{})}
	s.inflight[symbol] = c
	s.mu.Unlock()

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.Background(), FetchBudget)
		defer cancel()
		c.rec, c.err = s.fetchAndAggregate(fetchCtx, symbol)

		// Drop the entry before signalling so late arrivals start a fresh
		// fetch instead of joining a finished one.
		s.mu.Lock()
		delete(s.inflight, symbol)
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

// fetchAndAggregate is the outbound pipeline: headlines with retry and
// fallback, relevance scoring, dedup, polarity, aggregation, then the cache
// write. An empty signal is cached like any other so quiet symbols don't
// hammer the providers every cycle.
func (s *Service) fetchAndAggregate(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	now := s.now()
	articles, source, err := s.fetchArticles(ctx, symbol, now)
	if err != nil {
		return nil, err
	}

	kept := scoreArticles(symbol, articles, s.minRelevance, now.Add(-s.lookback))
	kept = dedupe(kept, s.dedupJaccard)

	// Most relevant first; the freshest copy breaks ties.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Relevance != kept[j].Relevance {
			return kept[i].Relevance > kept[j].Relevance
		}
		return kept[i].PublishedAt.After(kept[j].PublishedAt)
	})
	if len(kept) > s.maxArticles {
		kept = kept[:s.maxArticles]
	}

	sig := aggregate(symbol, kept, s.lookback, s.smoothingK, now)

	stored := make([]models.NewsArticle, len(kept))
	for i, a := range kept {
		stored[i] = *a
	}
	rec := &models.SentimentRecord{Symbol: symbol, Signal: *sig, Articles: stored, StoredAt: now}
	if err := s.cache.SaveSentiment(ctx, rec); err != nil {
		s.logger.Warn().Str("symbol", symbol).Err(err).Msg("Failed to cache sentiment")
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Str("source", source).
		Int("fetched", len(articles)).
		Int("kept", len(kept)).
		Msg("Sentiment aggregated")

	return rec, nil
}

// fetchArticles tries the primary provider with retries, then the fallback.
// The fallback also covers an empty primary result: the providers index
// different outlets, and a quiet symbol deserves a second opinion before the
// engine records no news. An authoritative empty answer from either provider
// is a result, not a failure.
func (s *Service) fetchArticles(ctx context.Context, symbol string, now time.Time) ([]*models.NewsArticle, string, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, "", err
	}
	defer s.release()

	opts := []interfaces.NewsOption{
		interfaces.WithNewsSince(now.Add(-s.lookback)),
		interfaces.WithNewsLimit(s.maxArticles),
	}

	articles, primaryErr := common.RetryWithResult(ctx, s.retrier, func() ([]*models.NewsArticle, error) {
		return s.primary.GetNews(ctx, symbol, opts...)
	})
	if primaryErr == nil && len(articles) > 0 {
		return articles, s.primary.Name(), nil
	}

	if s.fallback == nil {
		if primaryErr != nil {
			return nil, "", primaryErr
		}
		return nil, s.primary.Name(), nil
	}

	if primaryErr != nil {
		s.logger.Info().
			Str("symbol", symbol).
			Str("fallback", s.fallback.Name()).
			Err(primaryErr).
			Msg("Primary news fetch failed, attempting fallback")
	} else {
		s.logger.Debug().
			Str("symbol", symbol).
			Str("fallback", s.fallback.Name()).
			Msg("No primary headlines, trying fallback")
	}

	fbArticles, fbErr := common.RetryWithResult(ctx, s.retrier, func() ([]*models.NewsArticle, error) {
		return s.fallback.GetNews(ctx, symbol, opts...)
	})
	if fbErr == nil {
		if len(fbArticles) > 0 {
			s.logger.Info().
				Str("symbol", symbol).
				Str("source", s.fallback.Name()).
				Int("articles", len(fbArticles)).
				Msg("Fallback news fetch succeeded")
			return fbArticles, s.fallback.Name(), nil
		}
		return nil, s.primary.Name(), nil
	}

	if primaryErr != nil {
		s.logger.Warn().Str("symbol", symbol).Err(fbErr).Msg("Fallback news fetch failed")
		return nil, "", primaryErr
	}
	return nil, s.primary.Name(), nil
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

// servableOnFailure reports whether a cached signal can stand in when the
// refetch fails outright. Past one full lookback the window it summarizes no
// longer overlaps the current one, so it reads as missing.
func (s *Service) servableOnFailure(asOf time.Time) bool {
	if asOf.IsZero() {
		return false
	}
	return s.now().Sub(asOf) <= s.lookback
}

// normalizeSymbol canonicalizes a symbol for cache keys and provider calls.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Ensure Service implements SentimentService
var _ interfaces.SentimentService = (*Service)(nil)
