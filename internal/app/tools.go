package app

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers all MCP tools on the App's MCPServer.
func (a *App) registerTools() {
	s := a.MCPServer
	logger := a.Logger

	s.AddTool(createGetVersionTool(), handleGetVersion())
	s.AddTool(createPortfolioReviewTool(), handlePortfolioReview(a.AdvisorService, logger))
	s.AddTool(createGetSymbolTool(), handleGetSymbol(a.AdvisorService, logger))
	s.AddTool(createGetPortfolioSummaryTool(), handleGetPortfolioSummary(a.AdvisorService, logger))
	s.AddTool(createGetQuoteTool(), handleGetQuote(a.MarketService, logger))
	s.AddTool(createGetSentimentTool(), handleGetSentiment(a.SentimentService, logger))
}

// createGetVersionTool returns the get_version tool definition
func createGetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the advisor server version and status. Use this to verify connectivity."),
	)
}

// createPortfolioReviewTool returns the portfolio_review tool definition
func createPortfolioReviewTool() mcp.Tool {
	return mcp.NewTool("portfolio_review",
		mcp.WithDescription("Run a full analysis cycle over the portfolio and return buy/sell/hold/watch recommendations for every holding, with the factors behind each one."),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Description("Restrict the review to these symbols (default: all holdings)"),
		),
		mcp.WithBoolean("include_narrative",
			mcp.Description("Attach a prose narrative to each recommendation (default: false)"),
		),
	)
}

// createGetSymbolTool returns the get_symbol tool definition
func createGetSymbolTool() mcp.Tool {
	return mcp.NewTool("get_symbol",
		mcp.WithDescription("Analyze a single symbol, whether or not it is held. Returns the recommendation with its score, confidence, and contributing factors."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock symbol to analyze (e.g., 'AAPL')"),
		),
	)
}

// createGetPortfolioSummaryTool returns the get_portfolio_summary tool definition
func createGetPortfolioSummaryTool() mcp.Tool {
	return mcp.NewTool("get_portfolio_summary",
		mcp.WithDescription("Get portfolio totals: current value, cost basis, unrealized P&L, per-position weights, and the best and worst performers."),
	)
}

// createGetQuoteTool returns the get_quote tool definition
func createGetQuoteTool() mcp.Tool {
	return mcp.NewTool("get_quote",
		mcp.WithDescription("Get the latest market snapshot for a symbol: price, day change, volume, and data freshness."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock symbol to quote (e.g., 'AAPL')"),
		),
	)
}

// createGetSentimentTool returns the get_sentiment tool definition
func createGetSentimentTool() mcp.Tool {
	return mcp.NewTool("get_sentiment",
		mcp.WithDescription("Get the aggregated news sentiment signal for a symbol: polarity, sample size, and confidence."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Stock symbol to look up (e.g., 'AAPL')"),
		),
	)
}
