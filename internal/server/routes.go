package server

import (
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// MCP over Streamable HTTP
	httpMCP := mcpserver.NewStreamableHTTPServer(s.app.MCPServer,
		mcpserver.WithStateLess(true),
	)
	mux.Handle("/mcp", httpMCP)

	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Portfolio
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/portfolio/summary", s.handlePortfolioSummary)
	mux.HandleFunc("/api/portfolio/analyze", s.handleAnalyze)

	// Recommendations
	mux.HandleFunc("/api/recommendations", s.handleLatestReview)
	mux.HandleFunc("/api/recommendations/", s.handleRecommendationHistory)

	// Market data
	mux.HandleFunc("/api/market/quote/", s.handleMarketQuote)
	mux.HandleFunc("/api/market/sentiment/", s.handleMarketSentiment)
	mux.HandleFunc("/api/market/chart/", s.handleMarketChart)
}
