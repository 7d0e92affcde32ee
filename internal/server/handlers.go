package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
	"github.com/stockbuddy/advisor/internal/narrator"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleConfig handles GET /api/config. Secrets are redacted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, redactConfig(s.app.Config))
}

// redactConfig returns a copy of the config safe to expose over the API.
func redactConfig(cfg *common.Config) *common.Config {
	redacted := *cfg
	if redacted.Clients.EODHD.APIKey != "" {
		redacted.Clients.EODHD.APIKey = "[redacted]"
	}
	if redacted.Clients.Newswire.APIKey != "" {
		redacted.Clients.Newswire.APIKey = "[redacted]"
	}
	if redacted.Clients.Gemini.APIKey != "" {
		redacted.Clients.Gemini.APIKey = "[redacted]"
	}
	if redacted.Auth.JWTSecret != "" {
		redacted.Auth.JWTSecret = "[redacted]"
	}
	return &redacted
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// portfolioResponse pairs loaded holdings with the rows that failed
// validation.
type portfolioResponse struct {
	Holdings  []models.Holding         `json:"holdings"`
	RowErrors []models.ValidationError `json:"row_errors,omitempty"`
}

// handlePortfolio handles GET /api/portfolio.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	holdings, rowErrs, err := s.app.PortfolioStore.Load(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, portfolioResponse{Holdings: holdings, RowErrors: rowErrs})
}

// handlePortfolioSummary handles GET /api/portfolio/summary.
func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	summary, err := s.app.AdvisorService.Summarize(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// analyzeRequest is the optional body for POST /api/portfolio/analyze.
type analyzeRequest struct {
	Symbols []string `json:"symbols,omitempty"`
	Narrate bool     `json:"narrate,omitempty"`
}

// handleAnalyze handles POST /api/portfolio/analyze: a full analysis cycle.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req analyzeRequest
	if r.ContentLength > 0 {
		if !DecodeJSON(w, r, &req) {
			return
		}
	}

	review, err := s.app.AdvisorService.AnalyzePortfolio(r.Context(), interfaces.ReviewOptions{
		Symbols: req.Symbols,
		Narrate: req.Narrate,
	})
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, review)
}

// handleLatestReview handles GET /api/recommendations: the most recent
// stored review.
func (s *Server) handleLatestReview(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	review, err := s.app.Storage.RecommendationStorage().LatestReview(r.Context())
	if err != nil {
		WriteError(w, http.StatusNotFound, "no reviews stored yet; run POST /api/portfolio/analyze first")
		return
	}
	WriteJSON(w, http.StatusOK, review)
}

// handleRecommendationHistory handles GET /api/recommendations/{symbol}.
func (s *Server) handleRecommendationHistory(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := PathParam(r, "/api/recommendations/", "")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.app.Storage.RecommendationStorage().ListRecent(r.Context(), symbol, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// handleMarketQuote handles GET /api/market/quote/{symbol}.
func (s *Server) handleMarketQuote(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := PathParam(r, "/api/market/quote/", "")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	snap, err := s.app.MarketService.GetSnapshot(r.Context(), symbol)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// handleMarketSentiment handles GET /api/market/sentiment/{symbol}.
func (s *Server) handleMarketSentiment(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := PathParam(r, "/api/market/sentiment/", "")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	signal, err := s.app.SentimentService.GetSentiment(r.Context(), symbol)
	if err != nil {
		writeFetchError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, signal)
}

// handleMarketChart handles GET /api/market/chart/{symbol}: a PNG of the
// symbol's recent closes.
func (s *Server) handleMarketChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := PathParam(r, "/api/market/chart/", "")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	snap, err := s.app.MarketService.GetSnapshot(r.Context(), symbol)
	if err != nil {
		writeFetchError(w, err)
		return
	}

	png, err := narrator.RenderPriceChart(snap.RecentCloses, snap.Symbol)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// writeFetchError maps the fetch-failure taxonomy onto HTTP statuses.
func writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case models.IsNotFound(err):
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), string(models.FailureNotFound))
	case models.IsRateLimited(err):
		WriteErrorWithCode(w, http.StatusTooManyRequests, err.Error(), string(models.FailureRateLimited))
	default:
		WriteErrorWithCode(w, http.StatusBadGateway, err.Error(), string(models.FailureTransient))
	}
}
