package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/stockbuddy/advisor/internal/models"
)

// printReview renders a portfolio review as aligned terminal text.
func printReview(w io.Writer, review *models.PortfolioReview) {
	fmt.Fprintf(w, "Portfolio review %s (%s)\n\n", review.CycleID, review.GeneratedAt.Format("2006-01-02 15:04"))

	recs := make([]*models.Recommendation, len(review.Recommendations))
	copy(recs, review.Recommendations)
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Symbol < recs[j].Symbol
	})

	if len(recs) == 0 {
		fmt.Fprintln(w, "No holdings to analyze.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tACTION\tSCORE\tCONF\tP&L")
		for _, rec := range recs {
			pnl := "-"
			if rec.UnrealizedPnL != nil {
				pnl = fmt.Sprintf("%+.1f%%", *rec.UnrealizedPnL)
			}
			fmt.Fprintf(tw, "%s\t%s\t%+.2f\t%.0f%%\t%s\n",
				rec.Symbol, rec.Action, rec.Score, rec.Confidence*100, pnl)
		}
		tw.Flush()
	}

	for _, rec := range recs {
		if text, ok := review.Narratives[rec.Symbol]; ok && text != "" {
			fmt.Fprintf(w, "\n%s\n", text)
		}
	}

	if len(review.FetchErrors) > 0 {
		fmt.Fprintln(w, "\nFetch errors:")
		symbols := make([]string, 0, len(review.FetchErrors))
		for symbol := range review.FetchErrors {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			fmt.Fprintf(w, "  %s: %s\n", symbol, review.FetchErrors[symbol])
		}
	}

	if len(review.RowErrors) > 0 {
		fmt.Fprintln(w, "\nSkipped CSV rows:")
		for _, re := range review.RowErrors {
			fmt.Fprintf(w, "  %s\n", re.Error())
		}
	}
}

// printSummary renders portfolio totals as aligned terminal text.
func printSummary(w io.Writer, summary *models.PortfolioSummary) {
	fmt.Fprintf(w, "Total value: %s\n", summary.TotalValue.StringFixed(2))
	fmt.Fprintf(w, "Total cost:  %s\n", summary.TotalCost.StringFixed(2))
	fmt.Fprintf(w, "P&L:         %s (%+.1f%%)\n", summary.TotalPnL.StringFixed(2), summary.TotalPnLPct)
	if summary.TopPerformer != "" {
		fmt.Fprintf(w, "Best:  %s\n", summary.TopPerformer)
	}
	if summary.WorstPerformer != "" {
		fmt.Fprintf(w, "Worst: %s\n", summary.WorstPerformer)
	}

	if len(summary.Positions) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tQTY\tVALUE\tWEIGHT\tP&L")
	stale := false
	for _, pos := range summary.Positions {
		marker := ""
		if !pos.PriceFresh {
			marker = "*"
			stale = true
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%.1f%%\t%+.1f%%\n",
			pos.Symbol, pos.Quantity.String(), pos.Value.StringFixed(2), marker,
			pos.WeightPct, pos.PnLPct)
	}
	tw.Flush()
	if stale {
		fmt.Fprintln(w, "* valued at cost basis; no current price available")
	}
}
