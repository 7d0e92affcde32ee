// Package app wires configuration, clients, storage, and services into the
// shared core used by cmd/advisor-server and the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/stockbuddy/advisor/internal/clients/eodhd"
	"github.com/stockbuddy/advisor/internal/clients/gemini"
	"github.com/stockbuddy/advisor/internal/clients/newswire"
	"github.com/stockbuddy/advisor/internal/clients/yahoo"
	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/narrator"
	"github.com/stockbuddy/advisor/internal/portfolio"
	"github.com/stockbuddy/advisor/internal/services/advisor"
	"github.com/stockbuddy/advisor/internal/services/fusion"
	"github.com/stockbuddy/advisor/internal/services/market"
	"github.com/stockbuddy/advisor/internal/services/sentiment"
	"github.com/stockbuddy/advisor/internal/storage"
)

// App holds all initialized services, clients, and the MCP server.
// It is the shared core used by cmd/advisor-server and cmd/advisor.
type App struct {
	Config           *common.Config
	Logger           *common.Logger
	Storage          interfaces.StorageManager
	PortfolioStore   interfaces.PortfolioStore
	MarketService    interfaces.MarketService
	SentimentService interfaces.SentimentService
	AdvisorService   interfaces.AdvisorService
	Narrator         interfaces.Narrator
	MCPServer        *server.MCPServer
	StartupTime      time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes all services, clients, storage, and the MCP server.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	// Get binary directory for self-contained operation
	binDir := getBinaryDir()

	// Load configuration - check provided path, ADVISOR_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("ADVISOR_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "advisor.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/advisor.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative paths to the binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Portfolio.CSVPath != "" && !filepath.IsAbs(config.Portfolio.CSVPath) {
		config.Portfolio.CSVPath = filepath.Join(binDir, config.Portfolio.CSVPath)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	// Initialize logger
	logger := common.NewLoggerFromConfig(config.Logging)

	for _, key := range config.ValidateRequired() {
		logger.Warn().Str("key", key).Msg("Config value not set - running degraded")
	}

	// Initialize storage
	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize API clients. Every provider is optional; the engine only
	// refuses to start when an entire pipeline has no provider at all.
	var eodhdClient *eodhd.Client
	if config.Clients.EODHD.APIKey != "" {
		opts := []eodhd.ClientOption{
			eodhd.WithLogger(logger),
			eodhd.WithRateLimit(config.Clients.EODHD.RateLimit),
			eodhd.WithTimeout(config.Clients.EODHD.GetTimeout()),
		}
		if config.Clients.EODHD.BaseURL != "" {
			opts = append(opts, eodhd.WithBaseURL(config.Clients.EODHD.BaseURL))
		}
		eodhdClient = eodhd.NewClient(config.Clients.EODHD.APIKey, opts...)
	}

	var yahooClient *yahoo.Client
	if config.Clients.Yahoo.Enabled {
		yahooClient = yahoo.NewClient(yahoo.WithLogger(logger))
	}

	var newswireClient *newswire.Client
	if config.Clients.Newswire.APIKey != "" {
		opts := []newswire.ClientOption{
			newswire.WithLogger(logger),
			newswire.WithRateLimit(config.Clients.Newswire.RateLimit),
			newswire.WithTimeout(config.Clients.Newswire.GetTimeout()),
			newswire.WithPageSize(config.Clients.Newswire.PageSize),
		}
		if config.Clients.Newswire.BaseURL != "" {
			opts = append(opts, newswire.WithBaseURL(config.Clients.Newswire.BaseURL))
		}
		newswireClient = newswire.NewClient(config.Clients.Newswire.APIKey, opts...)
	}

	var geminiClient *gemini.Client
	if config.Clients.Gemini.APIKey != "" {
		geminiClient, err = gemini.NewClient(context.Background(), config.Clients.Gemini.APIKey,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client - falling back to template narration")
			geminiClient = nil
		}
	}

	// Market pipeline: EODHD primary with Yahoo fallback, Yahoo alone
	// when no EODHD key is configured.
	var marketPrimary, marketFallback interfaces.MarketDataClient
	switch {
	case eodhdClient != nil && yahooClient != nil:
		marketPrimary, marketFallback = eodhdClient, yahooClient
	case eodhdClient != nil:
		marketPrimary = eodhdClient
	case yahooClient != nil:
		marketPrimary = yahooClient
		logger.Warn().Msg("No EODHD API key - serving quotes from Yahoo Finance only")
	default:
		storageManager.Close()
		return nil, fmt.Errorf("no market data provider configured: set clients.eodhd.api_key or enable clients.yahoo")
	}

	// News pipeline: newswire primary with EODHD's news endpoint as fallback.
	var newsPrimary, newsFallback interfaces.NewsClient
	switch {
	case newswireClient != nil && eodhdClient != nil:
		newsPrimary, newsFallback = newswireClient, eodhdClient
	case newswireClient != nil:
		newsPrimary = newswireClient
	case eodhdClient != nil:
		newsPrimary = eodhdClient
		logger.Warn().Msg("No newswire API key - serving headlines from EODHD only")
	default:
		storageManager.Close()
		return nil, fmt.Errorf("no news provider configured: set clients.newswire.api_key or clients.eodhd.api_key")
	}

	// Narration: Gemini when available, deterministic templates otherwise.
	var narr interfaces.Narrator
	if geminiClient != nil {
		narr = narrator.NewGemini(geminiClient, logger)
	} else {
		narr = narrator.NewTemplate()
	}

	// Initialize services
	marketService := market.NewService(storageManager.MarketDataStorage(), marketPrimary, marketFallback, config, logger)
	sentimentService := sentiment.NewService(storageManager.MarketDataStorage(), newsPrimary, newsFallback, config, logger)
	fusionEngine := fusion.NewEngine(config)
	portfolioStore := portfolio.NewStore(config.Portfolio.CSVPath, logger)
	advisorService := advisor.NewService(portfolioStore, marketService, sentimentService, fusionEngine,
		storageManager.RecommendationStorage(), narr, config, logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"advisor",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	a := &App{
		Config:           config,
		Logger:           logger,
		Storage:          storageManager,
		PortfolioStore:   portfolioStore,
		MarketService:    marketService,
		SentimentService: sentimentService,
		AdvisorService:   advisorService,
		Narrator:         narr,
		MCPServer:        mcpServer,
		StartupTime:      startupStart,
	}

	// Register all MCP tools
	a.registerTools()

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, close storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
