// Package common provides shared utilities for the advisor engine
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the advisor engine
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Portfolio   PortfolioConfig `toml:"portfolio"`
	Clients     ClientsConfig   `toml:"clients"`
	Engine      EngineConfig    `toml:"engine"`
	Sentiment   SentimentConfig `toml:"sentiment"`
	Logging     LoggingConfig   `toml:"logging"`
	Auth        AuthConfig      `toml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the path for the embedded store (market cache,
// recommendation audit trail).
type StorageConfig struct {
	Path string `toml:"path"`
}

// PortfolioConfig holds the portfolio CSV location.
type PortfolioConfig struct {
	CSVPath string `toml:"csv_path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD    EODHDConfig    `toml:"eodhd"`
	Newswire NewswireConfig `toml:"newswire"`
	Yahoo    YahooConfig    `toml:"yahoo"`
	Gemini   GeminiConfig   `toml:"gemini"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// NewswireConfig holds the news provider API configuration
type NewswireConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
	PageSize  int    `toml:"page_size"`
}

// GetTimeout parses and returns the timeout duration
func (c *NewswireConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// YahooConfig holds the Yahoo Finance fallback configuration
type YahooConfig struct {
	Enabled bool   `toml:"enabled"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// EngineConfig holds analysis engine tuning.
type EngineConfig struct {
	MaxConcurrentSymbols int             `toml:"max_concurrent_symbols"`
	RefreshInterval      string          `toml:"refresh_interval"`
	Retry                RetryConfig     `toml:"retry"`
	Staleness            StalenessConfig `toml:"staleness"`
	Freshness            FreshnessConfig `toml:"freshness"`
	Fusion               FusionConfig    `toml:"fusion"`
}

// GetRefreshInterval parses and returns the background refresh interval.
func (c *EngineConfig) GetRefreshInterval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// RetryConfig holds retry/backoff tuning for market and news fetches.
type RetryConfig struct {
	MaxAttempts   int     `toml:"max_attempts"`
	InitialDelay  string  `toml:"initial_delay"`
	MaxDelay      string  `toml:"max_delay"`
	BackoffFactor float64 `toml:"backoff_factor"`
	JitterPct     float64 `toml:"jitter_pct"`
}

// GetInitialDelay parses and returns the first retry delay.
func (c *RetryConfig) GetInitialDelay() time.Duration {
	d, err := time.ParseDuration(c.InitialDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetMaxDelay parses and returns the backoff ceiling.
func (c *RetryConfig) GetMaxDelay() time.Duration {
	d, err := time.ParseDuration(c.MaxDelay)
	if err != nil {
		return 8 * time.Second
	}
	return d
}

// StalenessConfig controls how aged snapshots are treated.
type StalenessConfig struct {
	SoftWindow       string  `toml:"soft_window"`
	HardWindow       string  `toml:"hard_window"`
	Penalty          float64 `toml:"penalty"`
	ExcludeWhenStale bool    `toml:"exclude_when_stale"`
}

// GetSoftWindow parses and returns the freshness window. Snapshots older
// than this are served with Fresh=false.
func (c *StalenessConfig) GetSoftWindow() time.Duration {
	d, err := time.ParseDuration(c.SoftWindow)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetHardWindow parses and returns the hard staleness cutoff. Snapshots
// older than this are not served at all.
func (c *StalenessConfig) GetHardWindow() time.Duration {
	d, err := time.ParseDuration(c.HardWindow)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// FreshnessConfig holds cache TTLs per data kind.
type FreshnessConfig struct {
	QuoteTTL  string `toml:"quote_ttl"`
	ClosesTTL string `toml:"closes_ttl"`
	NewsTTL   string `toml:"news_ttl"`
}

// GetQuoteTTL parses and returns the quote cache TTL.
func (c *FreshnessConfig) GetQuoteTTL() time.Duration {
	d, err := time.ParseDuration(c.QuoteTTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetClosesTTL parses and returns the historical closes cache TTL.
func (c *FreshnessConfig) GetClosesTTL() time.Duration {
	d, err := time.ParseDuration(c.ClosesTTL)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// GetNewsTTL parses and returns the sentiment cache TTL.
func (c *FreshnessConfig) GetNewsTTL() time.Duration {
	d, err := time.ParseDuration(c.NewsTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// FusionConfig holds signal fusion weights and thresholds.
type FusionConfig struct {
	Weights                FusionWeights `toml:"weights"`
	BuyThreshold           float64       `toml:"buy_threshold"`
	SellThreshold          float64       `toml:"sell_threshold"`
	MinActionConfidence    float64       `toml:"min_action_confidence"`
	SentimentMinConfidence float64       `toml:"sentiment_min_confidence"`
	MomentumWindowDays     int           `toml:"momentum_window_days"`
	MomentumFullScalePct   float64       `toml:"momentum_full_scale_pct"`
	PnLFullScalePct        float64       `toml:"pnl_full_scale_pct"`
	TakeProfitPct          float64       `toml:"take_profit_pct"`
	AvailabilityCaps       []float64     `toml:"availability_caps"`
}

// FusionWeights holds the base factor weights before renormalization.
type FusionWeights struct {
	UnrealizedPnL float64 `toml:"unrealized_pnl"`
	Momentum      float64 `toml:"momentum"`
	Sentiment     float64 `toml:"sentiment"`
}

// SentimentConfig holds news aggregation tuning.
type SentimentConfig struct {
	Lookback     string  `toml:"lookback"`
	MaxArticles  int     `toml:"max_articles"`
	MinRelevance float64 `toml:"min_relevance"`
	DedupJaccard float64 `toml:"dedup_jaccard"`
	SmoothingK   float64 `toml:"smoothing_k"`
}

// GetLookback parses and returns the news lookback window.
func (c *SentimentConfig) GetLookback() time.Duration {
	d, err := time.ParseDuration(c.Lookback)
	if err != nil {
		return 72 * time.Hour
	}
	return d
}

// AuthConfig holds JWT authentication configuration.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
	MaxAgeDays int      `toml:"max_age_days"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 4242,
		},
		Storage: StorageConfig{
			Path: "data/advisor",
		},
		Portfolio: PortfolioConfig{
			CSVPath: "data/holdings.csv",
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
			Newswire: NewswireConfig{
				BaseURL:   "https://newsapi.org/v2",
				RateLimit: 5,
				Timeout:   "20s",
				PageSize:  50,
			},
			Yahoo: YahooConfig{
				Enabled: true,
				Timeout: "20s",
			},
			Gemini: GeminiConfig{
				Model:   "gemini-2.0-flash",
				Timeout: "60s",
			},
		},
		Engine: EngineConfig{
			MaxConcurrentSymbols: 4,
			RefreshInterval:      "15m",
			Retry: RetryConfig{
				MaxAttempts:   3,
				InitialDelay:  "500ms",
				MaxDelay:      "8s",
				BackoffFactor: 2.0,
				JitterPct:     0.2,
			},
			Staleness: StalenessConfig{
				SoftWindow:       "15m",
				HardWindow:       "24h",
				Penalty:          0.5,
				ExcludeWhenStale: false,
			},
			Freshness: FreshnessConfig{
				QuoteTTL:  "5m",
				ClosesTTL: "6h",
				NewsTTL:   "30m",
			},
			Fusion: FusionConfig{
				Weights: FusionWeights{
					UnrealizedPnL: 0.25,
					Momentum:      0.35,
					Sentiment:     0.40,
				},
				BuyThreshold:           0.5,
				SellThreshold:          -0.5,
				MinActionConfidence:    0.35,
				SentimentMinConfidence: 0.2,
				MomentumWindowDays:     5,
				MomentumFullScalePct:   10.0,
				PnLFullScalePct:        20.0,
				TakeProfitPct:          20.0,
				AvailabilityCaps:       []float64{0, 0.5, 0.8, 1.0},
			},
		},
		Sentiment: SentimentConfig{
			Lookback:     "72h",
			MaxArticles:  50,
			MinRelevance: 0.25,
			DedupJaccard: 0.8,
			SmoothingK:   3,
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/advisor.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	// Validate fusion tuning
	validateFusion(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ADVISOR_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("ADVISOR_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("ADVISOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ADVISOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("ADVISOR_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}

	if path := os.Getenv("ADVISOR_PORTFOLIO_CSV"); path != "" {
		config.Portfolio.CSVPath = path
	}

	if v := os.Getenv("ADVISOR_REFRESH_INTERVAL"); v != "" {
		config.Engine.RefreshInterval = v
	}

	if v := os.Getenv("ADVISOR_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Engine.MaxConcurrentSymbols = n
		}
	}

	// Auth overrides
	if v := os.Getenv("ADVISOR_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("ADVISOR_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}

	// API keys come from the environment so they never need to live on
	// disk. Provider-conventional names win over the ADVISOR_ prefix.
	if v := firstEnv("EODHD_API_KEY", "ADVISOR_EODHD_API_KEY"); v != "" {
		config.Clients.EODHD.APIKey = v
	}
	if v := firstEnv("NEWS_API_KEY", "ADVISOR_NEWSWIRE_API_KEY"); v != "" {
		config.Clients.Newswire.APIKey = v
	}
	if v := firstEnv("GEMINI_API_KEY", "ADVISOR_GEMINI_API_KEY", "GOOGLE_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired reports config the engine cannot do real work without.
// Missing entries are warnings, not fatal: every provider has a degraded
// path (Yahoo quotes, lexicon sentiment, template narration).
func (c *Config) ValidateRequired() []string {
	var missing []string

	if c.Clients.EODHD.APIKey == "" {
		missing = append(missing, "clients.eodhd.api_key")
	}
	if c.Clients.Newswire.APIKey == "" {
		missing = append(missing, "clients.newswire.api_key")
	}
	if c.Clients.Gemini.APIKey == "" {
		missing = append(missing, "clients.gemini.api_key")
	}
	if c.IsProduction() && strings.Contains(c.Auth.JWTSecret, "change-in-production") {
		missing = append(missing, "auth.jwt_secret")
	}

	return missing
}

// validateFusion resets unusable fusion tuning back to defaults. The
// engine requires buy > sell and four ascending availability caps.
func validateFusion(config *Config) {
	f := &config.Engine.Fusion
	def := NewDefaultConfig().Engine.Fusion

	if f.BuyThreshold <= f.SellThreshold {
		f.BuyThreshold = def.BuyThreshold
		f.SellThreshold = def.SellThreshold
	}
	if f.Weights.UnrealizedPnL < 0 || f.Weights.Momentum < 0 || f.Weights.Sentiment < 0 {
		f.Weights = def.Weights
	}
	if len(f.AvailabilityCaps) != 4 {
		f.AvailabilityCaps = def.AvailabilityCaps
	}
	if f.PnLFullScalePct <= 0 {
		f.PnLFullScalePct = def.PnLFullScalePct
	}
	if f.MomentumFullScalePct <= 0 {
		f.MomentumFullScalePct = def.MomentumFullScalePct
	}
	if f.MomentumWindowDays < 2 {
		f.MomentumWindowDays = def.MomentumWindowDays
	}
}
