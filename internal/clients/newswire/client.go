// Package newswire provides the primary headline client, backed by the
// NewsAPI.org v2 endpoints.
package newswire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

const (
	SourceName       = "newswire"
	DefaultBaseURL   = "https://newsapi.org/v2"
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 5 // requests per second
	DefaultPageSize  = 50

	// MaxPageSize is the upstream cap on pageSize.
	MaxPageSize = 100
)

// Client talks to the news API for symbol-tagged headlines. Articles come
// back unscored; polarity is the aggregator's job.
type Client struct {
	client   *resty.Client
	apiKey   string
	pageSize int
	logger   *common.Logger
	limiter  *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.client.SetBaseURL(baseURL)
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
		c.client.SetTimeout(timeout)
	}
}

// WithPageSize sets the default page size for news requests
func WithPageSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// NewClient creates a new newswire client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := resty.New()
	client.SetBaseURL(DefaultBaseURL)
	client.SetTimeout(DefaultTimeout)

	c := &Client{
		client:   client,
		apiKey:   apiKey,
		pageSize: DefaultPageSize,
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:   common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name identifies this provider in signals and failures.
func (c *Client) Name() string {
	return SourceName
}

type articleResponse struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

// everythingResponse is the wire shape of /everything. The API reports
// some failures inside a 200 body, so Code and Message ride along.
type everythingResponse struct {
	Status       string            `json:"status"`
	TotalResults int               `json:"totalResults"`
	Articles     []articleResponse `json:"articles"`
	Code         string            `json:"code"`
	Message      string            `json:"message"`
}

// GetNews retrieves recent articles mentioning a symbol, newest first.
func (c *Client) GetNews(ctx context.Context, symbol string, opts ...interfaces.NewsOption) ([]*models.NewsArticle, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := &interfaces.NewsParams{Limit: c.pageSize}
	for _, opt := range opts {
		opt(params)
	}
	if params.Limit <= 0 {
		params.Limit = c.pageSize
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}

	query := map[string]string{
		"q":        searchQuery(symbol),
		"language": "en",
		"sortBy":   "publishedAt",
		"pageSize": strconv.Itoa(params.Limit),
		"apiKey":   c.apiKey,
	}
	if !params.From.IsZero() {
		query["from"] = params.From.UTC().Format(time.RFC3339)
	}

	c.logger.Debug().Str("symbol", symbol).Msg("newswire request")

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get("/everything")
	if err != nil {
		return nil, &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    err,
		}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &models.FetchFailure{
			Kind:       classifyStatus(resp.StatusCode()),
			Source:     SourceName,
			Symbol:     symbol,
			StatusCode: resp.StatusCode(),
			Err: &models.APIError{
				StatusCode: resp.StatusCode(),
				Message:    resp.String(),
				Endpoint:   "/everything",
			},
		}
	}

	var body everythingResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    fmt.Errorf("failed to parse news response: %w", err),
		}
	}
	if body.Status != "ok" {
		return nil, &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    fmt.Errorf("news API error %s: %s", body.Code, body.Message),
		}
	}

	articles := make([]*models.NewsArticle, 0, len(body.Articles))
	for _, item := range body.Articles {
		publishedAt, _ := time.Parse(time.RFC3339, item.PublishedAt)
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		articles = append(articles, &models.NewsArticle{
			Title:       item.Title,
			URL:         item.URL,
			Source:      item.Source.Name,
			Summary:     summary,
			PublishedAt: publishedAt,
		})
	}

	return articles, nil
}

// searchQuery builds the free-text query for a symbol. The exchange suffix
// is dropped ("BHP.AU" searches as BHP) and the finance terms keep the
// quoted ticker from matching unrelated uses of the word.
func searchQuery(symbol string) string {
	base := symbol
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%q stock OR shares OR trading", base)
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

// Ensure Client implements the provider interface
var _ interfaces.NewsClient = (*Client)(nil)
