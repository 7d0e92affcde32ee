// Package yahoo provides a fallback market data client backed by the
// public Yahoo Finance endpoints.
package yahoo

import (
	"context"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

const (
	SourceName = "yahoo"

	// DefaultWindowDays is the history span requested when the caller
	// gives no range. Padded for weekends before the request goes out.
	DefaultWindowDays = 30
)

// Client is the fallback market data provider. The upstream library has no
// context support, so cancellation is only checked between calls.
type Client struct {
	logger *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		logger: common.NewSilentLogger(),
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

// GetQuote retrieves the latest quote. Yahoo errors carry no HTTP status,
// so everything except an empty result maps to transient; an empty result
// means the symbol is unknown there.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("symbol", symbol).Msg("Yahoo quote request")

	q, err := quote.Get(symbol)
	if err != nil {
		return nil, &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    err,
		}
	}
	if q == nil {
		return nil, &models.FetchFailure{
			Kind:   models.FailureNotFound,
			Source: SourceName,
			Symbol: symbol,
		}
	}

	result := &models.Quote{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		PreviousClose: q.RegularMarketPreviousClose,
		ChangePct:     q.RegularMarketChangePercent,
		Volume:        int64(q.RegularMarketVolume),
	}
	if q.RegularMarketTime > 0 {
		result.AsOf = time.Unix(int64(q.RegularMarketTime), 0).UTC()
	}

	return result, nil
}

// GetCloses retrieves daily bars via the chart endpoint, date-ascending.
// Adjusted closes are preferred so splits do not show up as price moves.
func (c *Client) GetCloses(ctx context.Context, symbol string, opts ...interfaces.ClosesOption) ([]models.ClosePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &interfaces.ClosesParams{}
	for _, opt := range opts {
		opt(params)
	}

	end := params.To
	if end.IsZero() {
		end = time.Now()
	}
	start := params.From
	if start.IsZero() {
		days := params.Limit
		if days <= 0 {
			days = DefaultWindowDays
		}
		// Calendar span needs padding: markets close on weekends
		start = end.AddDate(0, 0, -(days*2 + 5))
	}

	c.logger.Debug().Str("symbol", symbol).Msg("Yahoo chart request")

	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	points := make([]models.ClosePoint, 0)
	for iter.Next() {
		bar := iter.Bar()
		price, _ := bar.AdjClose.Float64()
		if price <= 0 {
			price, _ = bar.Close.Float64()
		}
		if price <= 0 {
			continue
		}
		points = append(points, models.ClosePoint{
			Date:  time.Unix(int64(bar.Timestamp), 0).UTC(),
			Close: price,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, &models.FetchFailure{
			Kind:   models.FailureTransient,
			Source: SourceName,
			Symbol: symbol,
			Err:    err,
		}
	}

	if params.Limit > 0 && len(points) > params.Limit {
		points = points[len(points)-params.Limit:]
	}

	return points, nil
}

// Ensure Client implements the provider interface
var _ interfaces.MarketDataClient = (*Client)(nil)
