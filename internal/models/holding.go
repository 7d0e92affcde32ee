// Package models defines data structures for the advisor engine
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a single portfolio position loaded from the CSV store.
// Money fields are decimals so parsed values survive round-trips exactly;
// scoring math converts at the boundary.
type Holding struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	Notes       string          `json:"notes,omitempty"`
	LastUpdated time.Time       `json:"last_updated,omitempty"`
}

// CostBasis returns quantity x average cost.
func (h Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AvgCost)
}

// PositionSummary is one row of a portfolio summary: a holding valued at
// the latest known price.
type PositionSummary struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
	WeightPct  float64         `json:"weight_pct"`
	PnLPct     float64         `json:"pnl_pct"`
	PriceFresh bool            `json:"price_fresh"`
}

// PortfolioSummary aggregates current value, cost, and P&L across holdings.
type PortfolioSummary struct {
	TotalValue     decimal.Decimal   `json:"total_value"`
	TotalCost      decimal.Decimal   `json:"total_cost"`
	TotalPnL       decimal.Decimal   `json:"total_pnl"`
	TotalPnLPct    float64           `json:"total_pnl_pct"`
	Positions      []PositionSummary `json:"positions"`
	TopPerformer   string            `json:"top_performer,omitempty"`
	WorstPerformer string            `json:"worst_performer,omitempty"`
	AsOf           time.Time         `json:"as_of"`
}
