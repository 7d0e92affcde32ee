// Package eodhd provides a client for the EODHD market data API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// flexInt64 handles JSON values that may be either a number or a string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexInt64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into int64", string(data))
}

const (
	SourceName       = "eodhd"
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
	DefaultNewsLimit = 50
)

// Client talks to EODHD for quotes, daily closes and tagged news.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name identifies this provider in snapshots and failures.
func (c *Client) Name() string {
	return SourceName
}

// get performs a rate-limited GET request. Non-200 responses and transport
// errors come back as *models.FetchFailure so the retry layer can pick the
// right verdict per status.
func (c *Client) get(ctx context.Context, symbol, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	// Add API key
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Str("symbol", symbol).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &models.FetchFailure{
			Kind:       classifyStatus(resp.StatusCode),
			Source:     SourceName,
			Symbol:     symbol,
			StatusCode: resp.StatusCode,
			Err: &models.APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Endpoint:   path,
			},
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return nil
}

// classifyStatus maps an HTTP status to a retry verdict. Anything that is
// not a hard miss or a throttle gets another attempt.
func classifyStatus(status int) models.FailureKind {
	switch status {
	case http.StatusNotFound:
		return models.FailureNotFound
	case http.StatusTooManyRequests:
		return models.FailureRateLimited
	default:
		return models.FailureTransient
	}
}

// realTimeResponse is the wire shape of /real-time. Numeric fields arrive
// as numbers or strings depending on the exchange feed.
type realTimeResponse struct {
	Code          string      `json:"code"`
	Timestamp     flexInt64   `json:"timestamp"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	Volume        flexInt64   `json:"volume"`
	PreviousClose flexFloat64 `json:"previousClose"`
	ChangePct     flexFloat64 `json:"change_p"`
}

// GetQuote retrieves the delayed real-time quote for a symbol. A zero Price
// means the feed had nothing for the session; callers decide what that is
// worth before building a snapshot from it.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	path := fmt.Sprintf("/real-time/%s", symbol)

	var resp realTimeResponse
	if err := c.get(ctx, symbol, path, nil, &resp); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Price:         float64(resp.Close),
		PreviousClose: float64(resp.PreviousClose),
		ChangePct:     float64(resp.ChangePct),
		Volume:        int64(resp.Volume),
	}
	if resp.Timestamp > 0 {
		quote.AsOf = time.Unix(int64(resp.Timestamp), 0).UTC()
	}

	return quote, nil
}

// eodBarResponse represents the API response for EOD data
type eodBarResponse struct {
	Date          string      `json:"date"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
	Volume        flexInt64   `json:"volume"`
}

// GetCloses retrieves daily closes for a symbol, date-ascending. Adjusted
// closes are preferred so splits do not show up as price moves.
func (c *Client) GetCloses(ctx context.Context, symbol string, opts ...interfaces.ClosesOption) ([]models.ClosePoint, error) {
	params := &interfaces.ClosesParams{}
	for _, opt := range opts {
		opt(params)
	}

	urlParams := url.Values{}
	urlParams.Set("period", "d")
	urlParams.Set("order", "a")
	if !params.From.IsZero() {
		urlParams.Set("from", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		urlParams.Set("to", params.To.Format("2006-01-02"))
	}

	path := fmt.Sprintf("/eod/%s", symbol)

	var bars []eodBarResponse
	if err := c.get(ctx, symbol, path, urlParams, &bars); err != nil {
		return nil, err
	}

	points := make([]models.ClosePoint, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		price := float64(bar.AdjustedClose)
		if price <= 0 {
			price = float64(bar.Close)
		}
		if price <= 0 {
			continue
		}
		points = append(points, models.ClosePoint{Date: date, Close: price})
	}

	if params.Limit > 0 && len(points) > params.Limit {
		points = points[len(points)-params.Limit:]
	}

	return points, nil
}

type newsSentiment struct {
	Polarity flexFloat64 `json:"polarity"`
	Neg      flexFloat64 `json:"neg"`
	Neu      flexFloat64 `json:"neu"`
	Pos      flexFloat64 `json:"pos"`
}

type newsResponse struct {
	Date      string         `json:"date"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Link      string         `json:"link"`
	Source    string         `json:"source"`
	Sentiment *newsSentiment `json:"sentiment"`
}

// GetNews retrieves recent articles tagged to a symbol, newest first.
// EODHD scores articles itself; the polarity carries through when present
// so the aggregator can skip its own scoring.
func (c *Client) GetNews(ctx context.Context, symbol string, opts ...interfaces.NewsOption) ([]*models.NewsArticle, error) {
	params := &interfaces.NewsParams{Limit: DefaultNewsLimit}
	for _, opt := range opts {
		opt(params)
	}

	urlParams := url.Values{}
	urlParams.Set("s", symbol)
	urlParams.Set("limit", strconv.Itoa(params.Limit))
	if !params.From.IsZero() {
		urlParams.Set("from", params.From.Format("2006-01-02"))
	}

	var items []newsResponse
	if err := c.get(ctx, symbol, "/news", urlParams, &items); err != nil {
		return nil, err
	}

	articles := make([]*models.NewsArticle, 0, len(items))
	for _, item := range items {
		publishedAt, _ := time.Parse(time.RFC3339, item.Date)
		article := &models.NewsArticle{
			Title:       item.Title,
			URL:         item.Link,
			Source:      item.Source,
			Summary:     item.Content,
			PublishedAt: publishedAt,
		}
		if item.Sentiment != nil {
			p := float64(item.Sentiment.Polarity)
			if p > 1 {
				p = 1
			} else if p < -1 {
				p = -1
			}
			article.Polarity = &p
		}
		articles = append(articles, article)
	}

	return articles, nil
}

// Ensure Client implements the provider interfaces
var (
	_ interfaces.MarketDataClient = (*Client)(nil)
	_ interfaces.NewsClient       = (*Client)(nil)
)
