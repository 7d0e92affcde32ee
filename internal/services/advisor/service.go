// Package advisor orchestrates the per-symbol analysis cycle: portfolio
// load, concurrent market and sentiment fetches, fusion, and the audit
// trail. Failures isolate per symbol; one bad fetch never aborts a cycle.
package advisor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
	"github.com/stockbuddy/advisor/internal/services/fusion"
)

// Service implements AdvisorService.
type Service struct {
	store     interfaces.PortfolioStore
	market    interfaces.MarketService
	sentiment interfaces.SentimentService
	engine    *fusion.Engine
	audit     interfaces.RecommendationStorage
	narrator  interfaces.Narrator

	maxConcurrent int
	logger        *common.Logger

	now   func() time.Time // injectable clock for testing
	newID func() string
}

// NewService creates the cycle orchestrator. narrator may be nil, in which
// case narration requests are skipped.
func NewService(store interfaces.PortfolioStore, market interfaces.MarketService, sentiment interfaces.SentimentService, engine *fusion.Engine, audit interfaces.RecommendationStorage, narrator interfaces.Narrator, cfg *common.Config, logger *common.Logger) *Service {
	maxConcurrent := cfg.Engine.MaxConcurrentSymbols
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		store:         store,
		market:        market,
		sentiment:     sentiment,
		engine:        engine,
		audit:         audit,
		narrator:      narrator,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// symbolResult is what one symbol's analysis produced. Only the
// recommendation is guaranteed; snap may be nil and fetchErr non-empty.
type symbolResult struct {
	rec      *models.Recommendation
	snap     *models.MarketSnapshot
	fetchErr string
}

// AnalyzePortfolio runs a full analysis cycle: fresh CSV read, bounded
// per-symbol fan-out, fusion, audit write. Row errors and per-symbol fetch
// errors are reported on the review, never raised.
func (s *Service) AnalyzePortfolio(ctx context.Context, options interfaces.ReviewOptions) (*models.PortfolioReview, error) {
	start := s.now()
	holdings, rowErrs, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	holdings = filterHoldings(holdings, options.Symbols)

	review := &models.PortfolioReview{
		CycleID:     s.newID(),
		GeneratedAt: start,
		RowErrors:   rowErrs,
	}

	results := make([]symbolResult, len(holdings))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for i, h := range holdings {
		wg.Add(1)
		go func(i int, h models.Holding) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.analyzeHolding(ctx, h, review.CycleID)
		}(i, h)
	}
	wg.Wait()

	snapshots := make(map[string]*models.MarketSnapshot, len(holdings))
	for i, res := range results {
		review.Recommendations = append(review.Recommendations, res.rec)
		if res.snap != nil {
			snapshots[holdings[i].Symbol] = res.snap
		}
		if res.fetchErr != "" {
			if review.FetchErrors == nil {
				review.FetchErrors = make(map[string]string)
			}
			review.FetchErrors[holdings[i].Symbol] = res.fetchErr
		}
	}
	review.Summary = buildSummary(holdings, snapshots, start)

	if options.Narrate && s.narrator != nil {
		review.Narratives = s.narrate(ctx, review.Recommendations)
	}

	if err := s.audit.SaveReview(ctx, review); err != nil {
		s.logger.Warn().Err(err).Str("cycle_id", review.CycleID).Msg("Failed to persist review")
	}

	s.logger.Info().
		Str("cycle_id", review.CycleID).
		Int("holdings", len(holdings)).
		Int("row_errors", len(rowErrs)).
		Int("fetch_errors", len(review.FetchErrors)).
		Dur("elapsed", time.Since(start)).
		Msg("Portfolio analysis complete")

	return review, nil
}

// AnalyzeSymbol analyzes one symbol. When the symbol is not held a
// zero-quantity holding is synthesized, so the P&L factor is simply absent
// and the verdict rests on momentum and sentiment.
func (s *Service) AnalyzeSymbol(ctx context.Context, symbol string) (*models.Recommendation, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Message: "symbol is required"}
	}

	holding := models.Holding{Symbol: symbol}
	if holdings, _, err := s.store.Load(ctx); err == nil {
		for _, h := range holdings {
			if h.Symbol == symbol {
				holding = h
				break
			}
		}
	}

	res := s.analyzeHolding(ctx, holding, s.newID())
	return res.rec, nil
}

// analyzeHolding runs one symbol's pipeline. The snapshot and sentiment
// fetches run concurrently; fusion waits only on this symbol's own pair.
func (s *Service) analyzeHolding(ctx context.Context, holding models.Holding, cycleID string) symbolResult {
	var (
		wg      sync.WaitGroup
		snap    *models.MarketSnapshot
		snapErr error
		sent    *models.SentimentSignal
		sentErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, snapErr = s.market.GetSnapshot(ctx, holding.Symbol)
	}()
	go func() {
		defer wg.Done()
		sent, sentErr = s.sentiment.GetSentiment(ctx, holding.Symbol)
	}()
	wg.Wait()

	var failures []string
	if snapErr != nil {
		s.logger.Warn().Err(snapErr).Str("symbol", holding.Symbol).Msg("Snapshot unavailable for analysis")
		failures = append(failures, snapErr.Error())
		snap = nil
	}
	if sentErr != nil {
		s.logger.Warn().Err(sentErr).Str("symbol", holding.Symbol).Msg("Sentiment unavailable for analysis")
		failures = append(failures, sentErr.Error())
		sent = nil
	}

	rec := s.engine.Recommend(fusion.Inputs{
		Holding:     holding,
		Snapshot:    snap,
		Sentiment:   sent,
		GeneratedAt: s.now(),
		ID:          s.newID(),
	})

	record := &models.RecommendationRecord{
		ID:             rec.ID,
		CycleID:        cycleID,
		Symbol:         rec.Symbol,
		Recommendation: *rec,
		StoredAt:       s.now(),
	}
	if err := s.audit.SaveRecommendation(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Failed to persist recommendation")
	}

	return symbolResult{rec: rec, snap: snap, fetchErr: strings.Join(failures, "; ")}
}

// Summarize values the portfolio at current prices. Positions without a
// price fall back to cost basis and are excluded from top/worst ranking.
func (s *Service) Summarize(ctx context.Context) (*models.PortfolioSummary, error) {
	holdings, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*models.MarketSnapshot, len(holdings))
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for i, h := range holdings {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			snap, err := s.market.GetSnapshot(ctx, symbol)
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("No price for summary position")
				return
			}
			snapshots[i] = snap
		}(i, h.Symbol)
	}
	wg.Wait()

	bySymbol := make(map[string]*models.MarketSnapshot, len(holdings))
	for i, snap := range snapshots {
		if snap != nil {
			bySymbol[holdings[i].Symbol] = snap
		}
	}
	return buildSummary(holdings, bySymbol, s.now()), nil
}

// narrate renders prose for each recommendation. A narration failure drops
// that symbol's text, never the cycle.
func (s *Service) narrate(ctx context.Context, recs []*models.Recommendation) map[string]string {
	narratives := make(map[string]string, len(recs))
	for _, rec := range recs {
		text, err := s.narrator.Render(ctx, rec)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Narration failed")
			continue
		}
		narratives[rec.Symbol] = text
	}
	return narratives
}

// buildSummary totals holdings against the snapshots gathered this cycle.
func buildSummary(holdings []models.Holding, snapshots map[string]*models.MarketSnapshot, asOf time.Time) *models.PortfolioSummary {
	summary := &models.PortfolioSummary{AsOf: asOf}
	if len(holdings) == 0 {
		return summary
	}

	positions := make([]models.PositionSummary, 0, len(holdings))
	for _, h := range holdings {
		pos := models.PositionSummary{
			Symbol:    h.Symbol,
			Quantity:  h.Quantity,
			CostBasis: h.CostBasis(),
		}
		if snap, ok := snapshots[h.Symbol]; ok {
			pos.Value = h.Quantity.Mul(decimal.NewFromFloat(snap.CurrentPrice))
			pos.PriceFresh = snap.Fresh
			if avgCost := h.AvgCost.InexactFloat64(); avgCost > 0 {
				pos.PnLPct = (snap.CurrentPrice - avgCost) / avgCost * 100
			}
		} else {
			// No price at all: carry the position at cost so totals stay
			// meaningful, and keep it out of the performer ranking.
			pos.Value = pos.CostBasis
		}
		summary.TotalValue = summary.TotalValue.Add(pos.Value)
		summary.TotalCost = summary.TotalCost.Add(pos.CostBasis)
		positions = append(positions, pos)
	}

	summary.TotalPnL = summary.TotalValue.Sub(summary.TotalCost)
	if summary.TotalCost.IsPositive() {
		pct, _ := summary.TotalPnL.Div(summary.TotalCost).Float64()
		summary.TotalPnLPct = pct * 100
	}

	for i := range positions {
		if summary.TotalValue.IsPositive() {
			w, _ := positions[i].Value.Div(summary.TotalValue).Float64()
			positions[i].WeightPct = w * 100
		}
		_, priced := snapshots[positions[i].Symbol]
		if !priced {
			continue
		}
		if summary.TopPerformer == "" || positions[i].PnLPct > pnlOf(positions, summary.TopPerformer) {
			summary.TopPerformer = positions[i].Symbol
		}
		if summary.WorstPerformer == "" || positions[i].PnLPct < pnlOf(positions, summary.WorstPerformer) {
			summary.WorstPerformer = positions[i].Symbol
		}
	}
	summary.Positions = positions
	return summary
}

func pnlOf(positions []models.PositionSummary, symbol string) float64 {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.PnLPct
		}
	}
	return 0
}

// filterHoldings restricts a cycle to the requested symbols. An empty
// filter keeps everything.
func filterHoldings(holdings []models.Holding, symbols []string) []models.Holding {
	if len(symbols) == 0 {
		return holdings
	}
	want := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		want[strings.ToUpper(strings.TrimSpace(sym))] = true
	}
	filtered := holdings[:0]
	for _, h := range holdings {
		if want[h.Symbol] {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

// Ensure Service implements AdvisorService
var _ interfaces.AdvisorService = (*Service)(nil)
