// Package fusion folds position, momentum, and sentiment readings into one
// structured recommendation. The engine is pure: no I/O, no clock reads, no
// randomness. Identical inputs and config produce identical output.
package fusion

import (
	"math"
	"sort"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/models"
	"github.com/stockbuddy/advisor/internal/signals"
)

// Inputs carries everything one recommendation is scored from. Snapshot and
// Sentiment may be nil; the engine scores whatever is available and caps
// confidence accordingly. GeneratedAt and ID are injected so the engine
// never reads a clock.
type Inputs struct {
	Holding     models.Holding
	Snapshot    *models.MarketSnapshot
	Sentiment   *models.SentimentSignal
	GeneratedAt time.Time
	ID          string
}

// Engine scores holdings against fusion weights and thresholds.
type Engine struct {
	fusion    common.FusionConfig
	staleness common.StalenessConfig
}

// NewEngine creates a fusion engine from the engine config section.
func NewEngine(cfg *common.Config) *Engine {
	return &Engine{
		fusion:    cfg.Engine.Fusion,
		staleness: cfg.Engine.Staleness,
	}
}

// Recommend scores one symbol. Missing inputs never error: with nothing to
// score the result is a WATCH carrying the insufficient_data factor, and
// with partial inputs the configured weights renormalize over the factors
// that exist, so a missing factor is redistributed rather than read as a
// zero vote.
func (e *Engine) Recommend(in Inputs) *models.Recommendation {
	rec := &models.Recommendation{
		ID:          in.ID,
		Symbol:      symbolOf(in),
		GeneratedAt: in.GeneratedAt,
	}
	if in.Snapshot != nil {
		rec.SnapshotSource = in.Snapshot.Source
		rec.SnapshotAsOf = in.Snapshot.AsOf
	}

	var factors []models.Factor

	pnl, pnlPct, ok := e.pnlFactor(in.Holding, in.Snapshot)
	if ok {
		factors = append(factors, pnl)
		rec.UnrealizedPnL = &pnlPct
	}
	if momentum, ok := e.momentumFactor(in.Snapshot); ok {
		factors = append(factors, momentum)
	}
	if sent, ok := e.sentimentFactor(in.Sentiment); ok {
		factors = append(factors, sent)
		asOf := in.Sentiment.AsOf
		rec.SentimentAsOf = &asOf
	}

	if len(factors) == 0 {
		rec.Action = models.ActionWatch
		rec.Factors = []models.Factor{{Name: models.FactorInsufficientData}}
		return rec
	}

	var weightSum float64
	for _, f := range factors {
		weightSum += f.Weight
	}
	if weightSum <= 0 {
		// Degenerate all-zero weights: a factor that exists still votes.
		for i := range factors {
			factors[i].Weight = 1
		}
		weightSum = float64(len(factors))
	}

	var score, confidence float64
	for i := range factors {
		factors[i].Weight /= weightSum
		score += factors[i].Weight * factors[i].NormalizedValue
		confidence += factors[i].Weight * factors[i].Confidence
	}
	score = signals.Clamp(score, -1, 1)
	confidence = signals.Clamp(confidence*e.availabilityCap(len(factors)), 0, 1)

	action := models.ActionHold
	switch {
	case score >= e.fusion.BuyThreshold:
		action = models.ActionBuy
	case score <= e.fusion.SellThreshold:
		action = models.ActionSell
	}
	if confidence < e.fusion.MinActionConfidence {
		action = models.ActionWatch
	}
	// A winner that has already run past the take-profit line is a position
	// to sit on, not add to.
	if action == models.ActionBuy && e.fusion.TakeProfitPct > 0 && rec.UnrealizedPnL != nil && *rec.UnrealizedPnL > e.fusion.TakeProfitPct {
		action = models.ActionHold
	}

	sortFactors(factors)

	rec.Action = action
	rec.Score = score
	rec.Confidence = confidence
	rec.Factors = factors
	return rec
}

// pnlFactor reads the position against the current price. Gains score
// positive and losses negative (trend-following); the take-profit guard in
// Recommend handles overextension. Requires a priced snapshot and a real
// cost basis.
func (e *Engine) pnlFactor(h models.Holding, snap *models.MarketSnapshot) (models.Factor, float64, bool) {
	if snap == nil || snap.CurrentPrice <= 0 {
		return models.Factor{}, 0, false
	}
	avgCost := h.AvgCost.InexactFloat64()
	if avgCost <= 0 {
		return models.Factor{}, 0, false
	}

	confidence := 1.0
	if !snap.Fresh {
		if e.staleness.ExcludeWhenStale {
			return models.Factor{}, 0, false
		}
		confidence = e.staleness.Penalty
	}

	pnlPct := (snap.CurrentPrice - avgCost) / avgCost * 100
	return models.Factor{
		Name:            models.FactorUnrealizedPnL,
		Weight:          e.fusion.Weights.UnrealizedPnL,
		NormalizedValue: signals.Clamp(pnlPct/e.fusion.PnLFullScalePct, -1, 1),
		Confidence:      confidence,
	}, pnlPct, true
}

// momentumFactor reads the short-term trend from the snapshot's close
// series. Confidence scales with window completeness and takes the same
// staleness treatment as the price factor.
func (e *Engine) momentumFactor(snap *models.MarketSnapshot) (models.Factor, bool) {
	if snap == nil {
		return models.Factor{}, false
	}
	m, ok := signals.NormalizedMomentum(snap.RecentCloses, e.fusion.MomentumWindowDays, e.fusion.MomentumFullScalePct)
	if !ok {
		return models.Factor{}, false
	}

	confidence := m.Completeness
	if !snap.Fresh {
		if e.staleness.ExcludeWhenStale {
			return models.Factor{}, false
		}
		confidence *= e.staleness.Penalty
	}

	return models.Factor{
		Name:            models.FactorMomentum,
		Weight:          e.fusion.Weights.Momentum,
		NormalizedValue: m.Value,
		Confidence:      confidence,
	}, true
}

// sentimentFactor admits a news signal only when it carries a polarity with
// enough confidence to mean something. An empty or too-uncertain signal is
// a missing factor, not a neutral vote.
func (e *Engine) sentimentFactor(sig *models.SentimentSignal) (models.Factor, bool) {
	if !sig.HasPolarity() || sig.Confidence < e.fusion.SentimentMinConfidence {
		return models.Factor{}, false
	}
	return models.Factor{
		Name:            models.FactorSentiment,
		Weight:          e.fusion.Weights.Sentiment,
		NormalizedValue: signals.Clamp(*sig.Polarity, -1, 1),
		Confidence:      signals.Clamp(sig.Confidence, 0, 1),
	}, true
}

// availabilityCap is the confidence ceiling for a factor count: fewer
// inputs, lower ceiling. The table is validated at config load.
func (e *Engine) availabilityCap(n int) float64 {
	caps := e.fusion.AvailabilityCaps
	if len(caps) != 4 {
		caps = []float64{0, 0.5, 0.8, 1.0}
	}
	if n < 0 {
		n = 0
	}
	if n > 3 {
		n = 3
	}
	return caps[n]
}

// sortFactors orders by absolute contribution to the score, strongest
// first, names breaking ties so equal contributions order the same way
// every run.
func sortFactors(factors []models.Factor) {
	sort.SliceStable(factors, func(i, j int) bool {
		ci, cj := math.Abs(factors[i].Contribution()), math.Abs(factors[j].Contribution())
		if ci != cj {
			return ci > cj
		}
		return factors[i].Name < factors[j].Name
	})
}

func symbolOf(in Inputs) string {
	if in.Holding.Symbol != "" {
		return in.Holding.Symbol
	}
	if in.Snapshot != nil && in.Snapshot.Symbol != "" {
		return in.Snapshot.Symbol
	}
	if in.Sentiment != nil {
		return in.Sentiment.Symbol
	}
	return ""
}
