package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbuddy/advisor/internal/app"
	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// --- Mocks ---

type mockStore struct {
	holdings []models.Holding
	rowErrs  []models.ValidationError
	loadErr  error
}

func (m *mockStore) Load(_ context.Context) ([]models.Holding, []models.ValidationError, error) {
	if m.loadErr != nil {
		return nil, nil, m.loadErr
	}
	return m.holdings, m.rowErrs, nil
}

func (m *mockStore) Save(_ context.Context, _ []models.Holding) error { return nil }
func (m *mockStore) Path() string                                     { return "test.csv" }

type mockMarket struct {
	snap *models.MarketSnapshot
	err  error
}

func (m *mockMarket) GetSnapshot(_ context.Context, _ string) (*models.MarketSnapshot, error) {
	return m.snap, m.err
}

func (m *mockMarket) RefreshSymbols(_ context.Context, _ []string) {}

type mockSentiment struct {
	signal *models.SentimentSignal
	err    error
}

func (m *mockSentiment) GetSentiment(_ context.Context, _ string) (*models.SentimentSignal, error) {
	return m.signal, m.err
}

func (m *mockSentiment) GetArticles(_ context.Context, _ string, _ int) ([]*models.NewsArticle, error) {
	return nil, nil
}

type mockAdvisor struct {
	review   *models.PortfolioReview
	rec      *models.Recommendation
	summary  *models.PortfolioSummary
	err      error
	lastOpts interfaces.ReviewOptions
}

func (m *mockAdvisor) AnalyzePortfolio(_ context.Context, opts interfaces.ReviewOptions) (*models.PortfolioReview, error) {
	m.lastOpts = opts
	return m.review, m.err
}

func (m *mockAdvisor) AnalyzeSymbol(_ context.Context, _ string) (*models.Recommendation, error) {
	return m.rec, m.err
}

func (m *mockAdvisor) Summarize(_ context.Context) (*models.PortfolioSummary, error) {
	return m.summary, m.err
}

type mockAudit struct {
	records []*models.RecommendationRecord
	review  *models.PortfolioReview
}

func (m *mockAudit) SaveRecommendation(_ context.Context, _ *models.RecommendationRecord) error {
	return nil
}

func (m *mockAudit) ListRecent(_ context.Context, _ string, limit int) ([]*models.RecommendationRecord, error) {
	if limit < len(m.records) {
		return m.records[:limit], nil
	}
	return m.records, nil
}

func (m *mockAudit) SaveReview(_ context.Context, _ *models.PortfolioReview) error { return nil }

func (m *mockAudit) LatestReview(_ context.Context) (*models.PortfolioReview, error) {
	if m.review == nil {
		return nil, errors.New("no reviews stored")
	}
	return m.review, nil
}

func (m *mockAudit) PurgeOlderThan(_ context.Context, _ time.Time) (int, error) { return 0, nil }

type mockStorageManager struct {
	audit *mockAudit
}

func (m *mockStorageManager) MarketDataStorage() interfaces.MarketDataStorage { return nil }
func (m *mockStorageManager) RecommendationStorage() interfaces.RecommendationStorage {
	return m.audit
}
func (m *mockStorageManager) DataPath() string { return "test-data" }
func (m *mockStorageManager) Close() error     { return nil }

// --- Harness ---

type serverHarness struct {
	handler   http.Handler
	store     *mockStore
	market    *mockMarket
	sentiment *mockSentiment
	advisor   *mockAdvisor
	audit     *mockAudit
	config    *common.Config
	shutdown  chan struct{}
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Auth.JWTSecret = ""

	h := &serverHarness{
		store:     &mockStore{},
		market:    &mockMarket{},
		sentiment: &mockSentiment{},
		advisor:   &mockAdvisor{},
		audit:     &mockAudit{},
		config:    cfg,
		shutdown:  make(chan struct{}, 1),
	}

	a := &app.App{
		Config:           cfg,
		Logger:           common.NewLogger("error"),
		Storage:          &mockStorageManager{audit: h.audit},
		PortfolioStore:   h.store,
		MarketService:    h.market,
		SentimentService: h.sentiment,
		AdvisorService:   h.advisor,
		MCPServer:        mcpserver.NewMCPServer("advisor-test", "test"),
		StartupTime:      time.Now(),
	}

	srv := NewServer(a)
	srv.SetShutdownChannel(h.shutdown)
	h.handler = srv.Handler()
	return h
}

func (h *serverHarness) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestHandleHealth(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHandleVersion(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["version"])
}

func TestHandleConfig_RedactsSecrets(t *testing.T) {
	h := newServerHarness(t)
	h.config.Clients.EODHD.APIKey = "super-secret"
	h.config.Auth.JWTSecret = "jwt-secret"

	rr := h.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "super-secret")
	assert.NotContains(t, rr.Body.String(), "jwt-secret")
	assert.Contains(t, rr.Body.String(), "[redacted]")
}

func TestHandleShutdown_DevOnly(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodPost, "/api/shutdown", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	select {
	case <-h.shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown channel was not signaled")
	}
}

func TestHandleShutdown_ForbiddenInProduction(t *testing.T) {
	h := newServerHarness(t)
	h.config.Environment = "production"

	rr := h.do(t, http.MethodPost, "/api/shutdown", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlePortfolio(t *testing.T) {
	h := newServerHarness(t)
	h.store.holdings = []models.Holding{{Symbol: "AAPL"}}
	h.store.rowErrs = []models.ValidationError{{Line: 3, Message: "bad row"}}

	rr := h.do(t, http.MethodGet, "/api/portfolio", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp portfolioResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Holdings, 1)
	assert.Equal(t, "AAPL", resp.Holdings[0].Symbol)
	assert.Len(t, resp.RowErrors, 1)
}

func TestHandlePortfolio_LoadError(t *testing.T) {
	h := newServerHarness(t)
	h.store.loadErr = errors.New("file not found")

	rr := h.do(t, http.MethodGet, "/api/portfolio", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandleAnalyze_PassesOptions(t *testing.T) {
	h := newServerHarness(t)
	h.advisor.review = &models.PortfolioReview{CycleID: "cycle-1"}

	body := []byte(`{"symbols":["AAPL","MSFT"],"narrate":true}`)
	rr := h.do(t, http.MethodPost, "/api/portfolio/analyze", body)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, h.advisor.lastOpts.Symbols)
	assert.True(t, h.advisor.lastOpts.Narrate)
}

func TestHandleAnalyze_BodyOptional(t *testing.T) {
	h := newServerHarness(t)
	h.advisor.review = &models.PortfolioReview{CycleID: "cycle-1"}

	rr := h.do(t, http.MethodPost, "/api/portfolio/analyze", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, h.advisor.lastOpts.Symbols)
}

func TestHandleAnalyze_RejectsBadJSON(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodPost, "/api/portfolio/analyze", []byte(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleLatestReview_NotFound(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodGet, "/api/recommendations", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "no reviews stored yet")
}

func TestHandleLatestReview(t *testing.T) {
	h := newServerHarness(t)
	h.audit.review = &models.PortfolioReview{CycleID: "cycle-9"}

	rr := h.do(t, http.MethodGet, "/api/recommendations", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cycle-9")
}

func TestHandleRecommendationHistory_Limit(t *testing.T) {
	h := newServerHarness(t)
	for i := 0; i < 5; i++ {
		h.audit.records = append(h.audit.records, &models.RecommendationRecord{Symbol: "AAPL"})
	}

	rr := h.do(t, http.MethodGet, "/api/recommendations/AAPL?limit=2", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var records []*models.RecommendationRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestHandleMarketQuote(t *testing.T) {
	h := newServerHarness(t)
	h.market.snap = &models.MarketSnapshot{Symbol: "AAPL", CurrentPrice: 180, Source: "eodhd"}

	rr := h.do(t, http.MethodGet, "/api/market/quote/AAPL", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"current_price":180`)
}

func TestHandleMarketQuote_FailureTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found maps to 404",
			err:        &models.FetchFailure{Kind: models.FailureNotFound, Source: "eodhd", Symbol: "XYZ"},
			wantStatus: http.StatusNotFound,
			wantCode:   string(models.FailureNotFound),
		},
		{
			name:       "rate limited maps to 429",
			err:        &models.FetchFailure{Kind: models.FailureRateLimited, Source: "eodhd", Symbol: "XYZ"},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   string(models.FailureRateLimited),
		},
		{
			name:       "transient maps to 502",
			err:        &models.FetchFailure{Kind: models.FailureTransient, Source: "eodhd", Symbol: "XYZ"},
			wantStatus: http.StatusBadGateway,
			wantCode:   string(models.FailureTransient),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServerHarness(t)
			h.market.err = tt.err

			rr := h.do(t, http.MethodGet, "/api/market/quote/XYZ", nil)
			assert.Equal(t, tt.wantStatus, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleMarketSentiment(t *testing.T) {
	h := newServerHarness(t)
	polarity := 0.4
	h.sentiment.signal = &models.SentimentSignal{Symbol: "AAPL", Polarity: &polarity, SampleSize: 7}

	rr := h.do(t, http.MethodGet, "/api/market/sentiment/AAPL", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sample_size":7`)
}

func TestHandleMarketChart(t *testing.T) {
	h := newServerHarness(t)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	closes := make([]models.ClosePoint, 6)
	for i := range closes {
		closes[i] = models.ClosePoint{Date: base.AddDate(0, 0, i), Close: 100 + float64(i)}
	}
	h.market.snap = &models.MarketSnapshot{Symbol: "AAPL", CurrentPrice: 105, RecentCloses: closes}

	rr := h.do(t, http.MethodGet, "/api/market/chart/AAPL", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	require.True(t, rr.Body.Len() > 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rr.Body.Bytes()[:4])
}

func TestHandleMarketChart_TooFewPoints(t *testing.T) {
	h := newServerHarness(t)
	h.market.snap = &models.MarketSnapshot{Symbol: "AAPL", CurrentPrice: 105}

	rr := h.do(t, http.MethodGet, "/api/market/chart/AAPL", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newServerHarness(t)

	rr := h.do(t, http.MethodDelete, "/api/portfolio", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET", rr.Header().Get("Allow"))
}
