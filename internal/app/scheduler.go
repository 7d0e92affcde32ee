package app

import (
	"context"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
)

// StartScheduler launches the background refresh loop. Each tick re-runs a
// full analysis cycle so cached snapshots, sentiment, and recommendations
// stay warm. A refresh_interval of "" or "0" disables it.
func (a *App) StartScheduler() {
	raw := a.Config.Engine.RefreshInterval
	if raw == "" || raw == "0" {
		a.Logger.Info().Msg("Refresh scheduler disabled")
		return
	}
	interval := a.Config.Engine.GetRefreshInterval()
	if interval <= 0 {
		a.Logger.Info().Msg("Refresh scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	go runScheduler(ctx, a.AdvisorService, a.Logger, interval)
}

func runScheduler(ctx context.Context, advisorService interfaces.AdvisorService, logger *common.Logger, interval time.Duration) {
	logger.Info().Dur("interval", interval).Msg("Refresh scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Refresh scheduler: stopped")
			return
		case <-ticker.C:
			refreshCycle(ctx, advisorService, logger)
		}
	}
}

func refreshCycle(ctx context.Context, advisorService interfaces.AdvisorService, logger *common.Logger) {
	start := time.Now()

	review, err := advisorService.AnalyzePortfolio(ctx, interfaces.ReviewOptions{})
	if err != nil {
		logger.Warn().Err(err).Msg("Scheduled refresh: analysis cycle failed")
		return
	}

	logger.Info().
		Str("cycle_id", review.CycleID).
		Int("recommendations", len(review.Recommendations)).
		Int("fetch_errors", len(review.FetchErrors)).
		Dur("duration", time.Since(start)).
		Msg("Scheduled refresh complete")
}
