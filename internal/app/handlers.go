package app

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
)

// handleGetVersion implements the get_version tool
func handleGetVersion() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := fmt.Sprintf("Advisor MCP Server\nVersion: %s\nBuild: %s\nCommit: %s\nStatus: OK",
			common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		return textResult(result), nil
	}
}

// handlePortfolioReview implements the portfolio_review tool
func handlePortfolioReview(advisorService interfaces.AdvisorService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbols := request.GetStringSlice("symbols", nil)
		includeNarrative := request.GetBool("include_narrative", false)

		review, err := advisorService.AnalyzePortfolio(ctx, interfaces.ReviewOptions{
			Symbols: symbols,
			Narrate: includeNarrative,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Portfolio review failed")
			return errorResult(fmt.Sprintf("Review error: %v", err)), nil
		}

		return textResult(formatPortfolioReview(review)), nil
	}
}

// handleGetSymbol implements the get_symbol tool
func handleGetSymbol(advisorService interfaces.AdvisorService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := request.RequireString("symbol")
		if err != nil || symbol == "" {
			return errorResult("Error: symbol parameter is required"), nil
		}

		rec, err := advisorService.AnalyzeSymbol(ctx, symbol)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Symbol analysis failed")
			return errorResult(fmt.Sprintf("Analysis error: %v", err)), nil
		}

		return textResult(formatRecommendation(rec)), nil
	}
}

// handleGetPortfolioSummary implements the get_portfolio_summary tool
func handleGetPortfolioSummary(advisorService interfaces.AdvisorService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := advisorService.Summarize(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Portfolio summary failed")
			return errorResult(fmt.Sprintf("Summary error: %v", err)), nil
		}

		return textResult(formatSummary(summary)), nil
	}
}

// handleGetQuote implements the get_quote tool
func handleGetQuote(marketService interfaces.MarketService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := request.RequireString("symbol")
		if err != nil || symbol == "" {
			return errorResult("Error: symbol parameter is required"), nil
		}

		snap, err := marketService.GetSnapshot(ctx, symbol)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Quote fetch failed")
			return errorResult(fmt.Sprintf("Quote error: %v", err)), nil
		}

		return textResult(formatSnapshot(snap)), nil
	}
}

// handleGetSentiment implements the get_sentiment tool
func handleGetSentiment(sentimentService interfaces.SentimentService, logger *common.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol, err := request.RequireString("symbol")
		if err != nil || symbol == "" {
			return errorResult("Error: symbol parameter is required"), nil
		}

		signal, err := sentimentService.GetSentiment(ctx, symbol)
		if err != nil {
			logger.Error().Err(err).Str("symbol", symbol).Msg("Sentiment fetch failed")
			return errorResult(fmt.Sprintf("Sentiment error: %v", err)), nil
		}

		return textResult(formatSentiment(signal)), nil
	}
}

// textResult wraps plain text in an MCP tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// errorResult wraps an error message in an MCP tool result
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}
