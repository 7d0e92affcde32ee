package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stockbuddy/advisor/internal/models"
)

// formatPortfolioReview renders a review as markdown for the MCP client.
func formatPortfolioReview(review *models.PortfolioReview) string {
	var sb strings.Builder

	sb.WriteString("# Portfolio Review\n\n")
	sb.WriteString(fmt.Sprintf("**Date:** %s\n", review.GeneratedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("**Cycle:** %s\n\n", review.CycleID))

	recs := make([]*models.Recommendation, len(review.Recommendations))
	copy(recs, review.Recommendations)
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Symbol < recs[j].Symbol
	})

	sb.WriteString("## Recommendations\n\n")
	if len(recs) == 0 {
		sb.WriteString("No holdings to analyze.\n\n")
	} else {
		sb.WriteString("| Symbol | Action | Score | Confidence | P&L |\n")
		sb.WriteString("|--------|--------|-------|------------|-----|\n")
		for _, rec := range recs {
			pnl := "-"
			if rec.UnrealizedPnL != nil {
				pnl = formatSignedPct(*rec.UnrealizedPnL)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %+.2f | %.0f%% | %s |\n",
				rec.Symbol, rec.Action, rec.Score, rec.Confidence*100, pnl))
		}
		sb.WriteString("\n")
	}

	for _, rec := range recs {
		if text, ok := review.Narratives[rec.Symbol]; ok && text != "" {
			sb.WriteString(fmt.Sprintf("**%s:** %s\n\n", rec.Symbol, text))
		}
	}

	if review.Summary != nil {
		sb.WriteString(formatSummary(review.Summary))
		sb.WriteString("\n")
	}

	if len(review.FetchErrors) > 0 {
		sb.WriteString("## Fetch Errors\n\n")
		symbols := make([]string, 0, len(review.FetchErrors))
		for symbol := range review.FetchErrors {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			sb.WriteString(fmt.Sprintf("- **%s:** %s\n", symbol, review.FetchErrors[symbol]))
		}
		sb.WriteString("\n")
	}

	if len(review.RowErrors) > 0 {
		sb.WriteString("## Skipped CSV Rows\n\n")
		for _, re := range review.RowErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", re.Error()))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatRecommendation renders one recommendation as markdown.
func formatRecommendation(rec *models.Recommendation) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s: %s\n\n", rec.Symbol, rec.Action))
	sb.WriteString(fmt.Sprintf("**Score:** %+.2f\n", rec.Score))
	sb.WriteString(fmt.Sprintf("**Confidence:** %.0f%%\n", rec.Confidence*100))
	if rec.UnrealizedPnL != nil {
		sb.WriteString(fmt.Sprintf("**Unrealized P&L:** %s\n", formatSignedPct(*rec.UnrealizedPnL)))
	}
	if rec.SnapshotSource != "" {
		sb.WriteString(fmt.Sprintf("**Price Source:** %s (as of %s)\n",
			rec.SnapshotSource, rec.SnapshotAsOf.Format("2006-01-02 15:04")))
	}
	sb.WriteString("\n")

	if rec.InsufficientData() {
		sb.WriteString("Not enough market or news data to score this symbol.\n")
		return sb.String()
	}

	sb.WriteString("## Factors\n\n")
	sb.WriteString("| Factor | Weight | Value | Confidence |\n")
	sb.WriteString("|--------|--------|-------|------------|\n")
	for _, f := range rec.Factors {
		sb.WriteString(fmt.Sprintf("| %s | %.2f | %+.2f | %.0f%% |\n",
			f.Name, f.Weight, f.NormalizedValue, f.Confidence*100))
	}

	return sb.String()
}

// formatSummary renders portfolio totals as markdown.
func formatSummary(summary *models.PortfolioSummary) string {
	var sb strings.Builder

	sb.WriteString("## Portfolio Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Total Value:** %s\n", summary.TotalValue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("**Total Cost:** %s\n", summary.TotalCost.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("**Unrealized P&L:** %s (%s)\n",
		summary.TotalPnL.StringFixed(2), formatSignedPct(summary.TotalPnLPct)))
	if summary.TopPerformer != "" {
		sb.WriteString(fmt.Sprintf("**Top Performer:** %s\n", summary.TopPerformer))
	}
	if summary.WorstPerformer != "" {
		sb.WriteString(fmt.Sprintf("**Worst Performer:** %s\n", summary.WorstPerformer))
	}
	sb.WriteString("\n")

	if len(summary.Positions) > 0 {
		sb.WriteString("| Symbol | Quantity | Value | Weight | P&L |\n")
		sb.WriteString("|--------|----------|-------|--------|-----|\n")
		for _, pos := range summary.Positions {
			marker := ""
			if !pos.PriceFresh {
				marker = " *"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s%s | %.1f%% | %s |\n",
				pos.Symbol, pos.Quantity.String(), pos.Value.StringFixed(2), marker,
				pos.WeightPct, formatSignedPct(pos.PnLPct)))
		}
		sb.WriteString("\n_* valued at cost basis; no current price available_\n")
	}

	return sb.String()
}

// formatSnapshot renders a market snapshot as markdown.
func formatSnapshot(snap *models.MarketSnapshot) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", snap.Symbol))
	sb.WriteString(fmt.Sprintf("**Price:** %.2f\n", snap.CurrentPrice))
	sb.WriteString(fmt.Sprintf("**Previous Close:** %.2f\n", snap.PreviousClose))
	sb.WriteString(fmt.Sprintf("**Day Change:** %s\n", formatSignedPct(snap.DayChangePct)))
	if snap.Volume > 0 {
		sb.WriteString(fmt.Sprintf("**Volume:** %d\n", snap.Volume))
	}
	sb.WriteString(fmt.Sprintf("**Source:** %s (as of %s)\n",
		snap.Source, snap.AsOf.Format("2006-01-02 15:04")))
	if !snap.Fresh {
		sb.WriteString("\n_Data is stale; providers were unreachable on the last refresh._\n")
	}

	return sb.String()
}

// formatSentiment renders a sentiment signal as markdown.
func formatSentiment(signal *models.SentimentSignal) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# News Sentiment: %s\n\n", signal.Symbol))
	if !signal.HasPolarity() {
		sb.WriteString("No usable news articles in the lookback window.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**Polarity:** %+.2f\n", *signal.Polarity))
	sb.WriteString(fmt.Sprintf("**Articles:** %d\n", signal.SampleSize))
	sb.WriteString(fmt.Sprintf("**Confidence:** %.0f%%\n", signal.Confidence*100))
	sb.WriteString(fmt.Sprintf("**Window:** %s (as of %s)\n",
		signal.Window, signal.AsOf.Format("2006-01-02 15:04")))

	return sb.String()
}

// formatSignedPct formats a percentage with an explicit sign.
func formatSignedPct(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}
