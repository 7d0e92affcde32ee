package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

// --- Mocks ---

type mockClient struct {
	name string

	mu         sync.Mutex
	quoteCalls int
	closeCalls int

	quote     *models.Quote
	quoteErr  error
	quoteFn   func(symbol string, call int) (*models.Quote, error)
	closes    []models.ClosePoint
	closesErr error
}

func (m *mockClient) Name() string { return m.name }

func (m *mockClient) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	m.mu.Lock()
	m.quoteCalls++
	call := m.quoteCalls
	fn := m.quoteFn
	m.mu.Unlock()

	if fn != nil {
		return fn(symbol, call)
	}
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return m.quote, nil
}

func (m *mockClient) GetCloses(_ context.Context, _ string, _ ...interfaces.ClosesOption) ([]models.ClosePoint, error) {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()

	if m.closesErr != nil {
		return nil, m.closesErr
	}
	return m.closes, nil
}

func (m *mockClient) calls() (quotes, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteCalls, m.closeCalls
}

type mockCache struct {
	mu        sync.Mutex
	snapshots map[string]*models.SnapshotRecord
	closes    map[string]*models.CloseSeriesRecord
	sentiment map[string]*models.SentimentRecord
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots: make(map[string]*models.SnapshotRecord),
		closes:    make(map[string]*models.CloseSeriesRecord),
		sentiment: make(map[string]*models.SentimentRecord),
	}
}

func (m *mockCache) GetSnapshot(_ context.Context, symbol string) (*models.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.snapshots[symbol]; ok {
		return rec, nil
	}
	return nil, errors.New("no cached snapshot")
}

func (m *mockCache) SaveSnapshot(_ context.Context, rec *models.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[rec.Symbol] = rec
	return nil
}

func (m *mockCache) GetCloses(_ context.Context, symbol string) (*models.CloseSeriesRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.closes[symbol]; ok {
		return rec, nil
	}
	return nil, errors.New("no cached closes")
}

func (m *mockCache) SaveCloses(_ context.Context, rec *models.CloseSeriesRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes[rec.Symbol] = rec
	return nil
}

func (m *mockCache) GetSentiment(_ context.Context, symbol string) (*models.SentimentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sentiment[symbol]; ok {
		return rec, nil
	}
	return nil, errors.New("no cached sentiment")
}

func (m *mockCache) SaveSentiment(_ context.Context, rec *models.SentimentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentiment[rec.Symbol] = rec
	return nil
}

// --- Helpers ---

func newTestService(primary, fallback *mockClient) (*Service, *mockCache) {
	cache := newMockCache()
	cfg := common.NewDefaultConfig()
	cfg.Engine.Retry.MaxAttempts = 1
	cfg.Engine.Retry.InitialDelay = "1ms"
	cfg.Engine.Retry.MaxDelay = "5ms"

	var fb interfaces.MarketDataClient
	if fallback != nil {
		fb = fallback
	}
	return NewService(cache, primary, fb, cfg, common.NewSilentLogger()), cache
}

func testQuote(symbol string, price float64, asOf time.Time) *models.Quote {
	return &models.Quote{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: price - 1,
		ChangePct:     1.25,
		Volume:        100000,
		AsOf:          asOf,
	}
}

func testCloses(end time.Time, closes ...float64) []models.ClosePoint {
	points := make([]models.ClosePoint, len(closes))
	for i, c := range closes {
		points[i] = models.ClosePoint{Date: end.AddDate(0, 0, i-len(closes)+1), Close: c}
	}
	return points
}

func transientErr(source, symbol string) error {
	return &models.FetchFailure{Kind: models.FailureTransient, Source: source, Symbol: symbol, Err: errors.New("connection reset")}
}

func notFoundErr(source, symbol string) error {
	return &models.FetchFailure{Kind: models.FailureNotFound, Source: source, Symbol: symbol, StatusCode: 404}
}

// --- Tests ---

func TestGetSnapshot_FetchesAndCaches(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("AAPL", 180.0, now.Add(-time.Minute)),
		closes: testCloses(now, 176, 177, 178, 179, 180),
	}

	svc, cache := newTestService(primary, nil)
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "AAPL" {
		t.Errorf("Symbol = %s, want AAPL", snap.Symbol)
	}
	if snap.CurrentPrice != 180.0 {
		t.Errorf("CurrentPrice = %.2f, want 180.00", snap.CurrentPrice)
	}
	if snap.Source != "eodhd" {
		t.Errorf("Source = %s, want eodhd", snap.Source)
	}
	if !snap.Fresh {
		t.Error("expected Fresh=true for a minute-old quote")
	}
	if len(snap.RecentCloses) != 5 {
		t.Errorf("RecentCloses len = %d, want 5", len(snap.RecentCloses))
	}

	if _, err := cache.GetSnapshot(context.Background(), "AAPL"); err != nil {
		t.Errorf("snapshot was not cached: %v", err)
	}
	if _, err := cache.GetCloses(context.Background(), "AAPL"); err != nil {
		t.Errorf("closes were not cached: %v", err)
	}
}

func TestGetSnapshot_ServesCacheUnderTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("AAPL", 180.0, now),
		closes: testCloses(now, 179, 180),
	}

	svc, _ := newTestService(primary, nil)
	svc.now = func() time.Time { return now }

	if _, err := svc.GetSnapshot(context.Background(), "AAPL"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	snap, err := svc.GetSnapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if snap.CurrentPrice != 180.0 {
		t.Errorf("CurrentPrice = %.2f, want 180.00", snap.CurrentPrice)
	}

	quotes, _ := primary.calls()
	if quotes != 1 {
		t.Errorf("quote calls = %d, want 1 (second call should hit the cache)", quotes)
	}
}

func TestGetSnapshot_RefetchPastQuoteTTLKeepsCloses(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("AAPL", 180.0, base),
		closes: testCloses(base, 178, 179, 180),
	}

	svc, _ := newTestService(primary, nil)
	svc.now = func() time.Time { return base }

	if _, err := svc.GetSnapshot(context.Background(), "AAPL"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	// Ten minutes on: the quote TTL (5m) has lapsed, the closes TTL (6h) has not.
	svc.now = func() time.Time { return base.Add(10 * time.Minute) }
	if _, err := svc.GetSnapshot(context.Background(), "AAPL"); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	quotes, closes := primary.calls()
	if quotes != 2 {
		t.Errorf("quote calls = %d, want 2", quotes)
	}
	if closes != 1 {
		t.Errorf("close calls = %d, want 1 (series still fresh)", closes)
	}
}

func TestGetSnapshot_NormalizesSymbol(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("BHP.AU", 43.25, now),
		closes: testCloses(now, 43.0, 43.25),
	}

	svc, _ := newTestService(primary, nil)
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "  bhp.au ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "BHP.AU" {
		t.Errorf("Symbol = %s, want BHP.AU", snap.Symbol)
	}
}

func TestGetSnapshot_EmptySymbol(t *testing.T) {
	primary := &mockClient{name: "eodhd"}
	svc, _ := newTestService(primary, nil)

	if _, err := svc.GetSnapshot(context.Background(), "   "); err == nil {
		t.Fatal("expected an error for an empty symbol")
	}
	if quotes, _ := primary.calls(); quotes != 0 {
		t.Errorf("quote calls = %d, want 0", quotes)
	}
}

func TestGetSnapshot_FallbackOnPrimaryFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:      "eodhd",
		quoteErr:  transientErr("eodhd", "MSFT"),
		closesErr: transientErr("eodhd", "MSFT"),
	}
	fallback := &mockClient{
		name:   "yahoo",
		quote:  testQuote("MSFT", 410.5, now),
		closes: testCloses(now, 400, 405, 410.5),
	}

	svc, _ := newTestService(primary, fallback)
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Source != "yahoo" {
		t.Errorf("Source = %s, want yahoo", snap.Source)
	}
	if snap.CurrentPrice != 410.5 {
		t.Errorf("CurrentPrice = %.2f, want 410.50", snap.CurrentPrice)
	}
	if len(snap.RecentCloses) != 3 {
		t.Errorf("RecentCloses len = %d, want 3 (from fallback)", len(snap.RecentCloses))
	}
}

func TestGetSnapshot_ZeroPriceTriesFallback(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("MSFT", 0, time.Time{}),
		closes: testCloses(now, 400, 405),
	}
	fallback := &mockClient{
		name:  "yahoo",
		quote: testQuote("MSFT", 411.0, now),
	}

	svc, _ := newTestService(primary, fallback)
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "MSFT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Source != "yahoo" {
		t.Errorf("Source = %s, want yahoo", snap.Source)
	}
	if snap.CurrentPrice != 411.0 {
		t.Errorf("CurrentPrice = %.2f, want 411.00", snap.CurrentPrice)
	}
}

func TestGetSnapshot_ZeroPriceNoFallbackFails(t *testing.T) {
	primary := &mockClient{
		name:  "eodhd",
		quote: testQuote("MSFT", 0, time.Time{}),
	}

	svc, cache := newTestService(primary, nil)

	if _, err := svc.GetSnapshot(context.Background(), "MSFT"); err == nil {
		t.Fatal("expected an error for a zero-price quote")
	}
	if _, err := cache.GetSnapshot(context.Background(), "MSFT"); err == nil {
		t.Error("a zero-price quote must never be cached as a snapshot")
	}
}

func TestGetSnapshot_NotFoundNotRetried(t *testing.T) {
	primary := &mockClient{
		name:     "eodhd",
		quoteErr: notFoundErr("eodhd", "NOSUCH"),
	}

	svc, _ := newTestService(primary, nil)
	svc.retrier.MaxAttempts = 3
	svc.retrier.InitialDelay = time.Millisecond

	_, err := svc.GetSnapshot(context.Background(), "NOSUCH")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !models.IsNotFound(err) {
		t.Errorf("expected a NOT_FOUND failure, got %v", err)
	}
	if quotes, _ := primary.calls(); quotes != 1 {
		t.Errorf("quote calls = %d, want 1 (NOT_FOUND is never retried)", quotes)
	}
}

func TestGetSnapshot_TransientRetried(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{name: "eodhd", closes: testCloses(now, 179, 180)}
	primary.quoteFn = func(symbol string, call int) (*models.Quote, error) {
		if call < 3 {
			return nil, transientErr("eodhd", symbol)
		}
		return testQuote(symbol, 180.0, now), nil
	}

	svc, _ := newTestService(primary, nil)
	svc.retrier.MaxAttempts = 3
	svc.retrier.InitialDelay = time.Millisecond
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.CurrentPrice != 180.0 {
		t.Errorf("CurrentPrice = %.2f, want 180.00", snap.CurrentPrice)
	}
	if quotes, _ := primary.calls(); quotes != 3 {
		t.Errorf("quote calls = %d, want 3", quotes)
	}
}

func TestGetSnapshot_BothFailServesStaleCacheInHardWindow(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:      "eodhd",
		quoteErr:  transientErr("eodhd", "AAPL"),
		closesErr: transientErr("eodhd", "AAPL"),
	}

	svc, cache := newTestService(primary, nil)
	svc.now = func() time.Time { return base }

	stale := &models.SnapshotRecord{
		Symbol: "AAPL",
		Snapshot: models.MarketSnapshot{
			Symbol:       "AAPL",
			CurrentPrice: 175.0,
			AsOf:         base.Add(-2 * time.Hour),
			Source:       "eodhd",
			Fresh:        true,
		},
		StoredAt: base.Add(-2 * time.Hour),
	}
	if err := cache.SaveSnapshot(context.Background(), stale); err != nil {
		t.Fatalf("seeding cache failed: %v", err)
	}

	snap, err := svc.GetSnapshot(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("expected the stale snapshot, got error: %v", err)
	}
	if snap.CurrentPrice != 175.0 {
		t.Errorf("CurrentPrice = %.2f, want 175.00", snap.CurrentPrice)
	}
	if snap.Fresh {
		t.Error("a two-hour-old snapshot must be served with Fresh=false")
	}
}

func TestGetSnapshot_BothFailBeyondHardWindowErrors(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:      "eodhd",
		quoteErr:  transientErr("eodhd", "AAPL"),
		closesErr: transientErr("eodhd", "AAPL"),
	}

	svc, cache := newTestService(primary, nil)
	svc.now = func() time.Time { return base }

	ancient := &models.SnapshotRecord{
		Symbol: "AAPL",
		Snapshot: models.MarketSnapshot{
			Symbol:       "AAPL",
			CurrentPrice: 175.0,
			AsOf:         base.Add(-30 * time.Hour),
			Source:       "eodhd",
		},
		StoredAt: base.Add(-30 * time.Hour),
	}
	if err := cache.SaveSnapshot(context.Background(), ancient); err != nil {
		t.Fatalf("seeding cache failed: %v", err)
	}

	_, err := svc.GetSnapshot(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("a snapshot beyond the hard window must not be served")
	}
	if !models.IsTransient(err) {
		t.Errorf("expected the provider failure to surface, got %v", err)
	}
}

func TestGetSnapshot_StaleProviderDataServedNotFresh(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{
		name:   "eodhd",
		quote:  testQuote("BHP.AU", 43.25, now.Add(-2*time.Hour)),
		closes: testCloses(now, 43.0, 43.25),
	}

	svc, _ := newTestService(primary, nil)
	svc.now = func() time.Time { return now }

	snap, err := svc.GetSnapshot(context.Background(), "BHP.AU")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Fresh {
		t.Error("a quote two hours past the soft window must serve with Fresh=false")
	}
	if snap.CurrentPrice != 43.25 {
		t.Errorf("CurrentPrice = %.2f, want 43.25", snap.CurrentPrice)
	}
}

func TestGetSnapshot_CoalescesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	primary := &mockClient{name: "eodhd"}
	primary.quoteFn = func(symbol string, _ int) (*models.Quote, error) {
		<-release
		return testQuote(symbol, 100.0, time.Now()), nil
	}
	primary.closes = testCloses(time.Now(), 99, 100)

	svc, _ := newTestService(primary, nil)

	const waiters = 4
	var wg sync.WaitGroup
	prices := make([]float64, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := svc.GetSnapshot(context.Background(), "AAPL")
			errs[i] = err
			if err == nil {
				prices[i] = snap.CurrentPrice
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond) // let the waiters pile up
	close(release)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d failed: %v", i, errs[i])
		}
		if prices[i] != 100.0 {
			t.Errorf("waiter %d price = %.2f, want 100.00", i, prices[i])
		}
	}

	quotes, closes := primary.calls()
	if quotes != 1 {
		t.Errorf("quote calls = %d, want 1 (concurrent fetches must coalesce)", quotes)
	}
	if closes != 1 {
		t.Errorf("close calls = %d, want 1", closes)
	}
}

func TestGetSnapshot_WaiterCancelKeepsSharedFetchAlive(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	primary := &mockClient{name: "eodhd"}
	primary.quoteFn = func(symbol string, _ int) (*models.Quote, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return testQuote(symbol, 55.0, time.Now()), nil
	}
	primary.closes = testCloses(time.Now(), 54, 55)

	svc, cache := newTestService(primary, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.GetSnapshot(ctx, "AAPL")
		errCh <- err
	}()

	<-started
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)

	// The detached fetch must still complete and land in the cache.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := cache.GetSnapshot(context.Background(), "AAPL")
		if err == nil && rec != nil {
			if rec.Snapshot.CurrentPrice != 55.0 {
				t.Errorf("cached price = %.2f, want 55.00", rec.Snapshot.CurrentPrice)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("detached fetch never cached a snapshot")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetRecentCloses_TailAndCache(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	points := make([]models.ClosePoint, 30)
	for i := range points {
		points[i] = models.ClosePoint{Date: base.AddDate(0, 0, i-29), Close: 100 + float64(i)}
	}
	primary := &mockClient{name: "eodhd", closes: points}

	svc, _ := newTestService(primary, nil)
	svc.now = func() time.Time { return base }

	got, err := svc.GetRecentCloses(context.Background(), "AAPL", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0].Close != 125 || got[4].Close != 129 {
		t.Errorf("tail = [%.0f..%.0f], want [125..129]", got[0].Close, got[4].Close)
	}
	if !got[0].Date.Before(got[4].Date) {
		t.Error("closes must stay date-ascending")
	}

	// A wider ask inside the cached window must not refetch.
	got, err = svc.GetRecentCloses(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
	if _, closes := primary.calls(); closes != 1 {
		t.Errorf("close calls = %d, want 1", closes)
	}
}

func TestGetRecentCloses_ServesAgedSeriesWhenRefetchFails(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{name: "eodhd", closesErr: transientErr("eodhd", "AAPL")}

	svc, cache := newTestService(primary, nil)
	svc.now = func() time.Time { return base }

	aged := &models.CloseSeriesRecord{
		Symbol:   "AAPL",
		Source:   "eodhd",
		Points:   testCloses(base.Add(-8*time.Hour), 170, 172, 171),
		StoredAt: base.Add(-8 * time.Hour),
	}
	if err := cache.SaveCloses(context.Background(), aged); err != nil {
		t.Fatalf("seeding cache failed: %v", err)
	}

	got, err := svc.GetRecentCloses(context.Background(), "AAPL", 5)
	if err != nil {
		t.Fatalf("expected the aged series, got error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
	if _, closes := primary.calls(); closes != 1 {
		t.Errorf("close calls = %d, want 1", closes)
	}
}

func TestRefreshSymbols_WarmsCacheSkippingFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	primary := &mockClient{name: "eodhd", closes: testCloses(now, 74, 75)}
	primary.quoteFn = func(symbol string, _ int) (*models.Quote, error) {
		if symbol == "BAD" {
			return nil, notFoundErr("eodhd", "BAD")
		}
		return testQuote(symbol, 75.0, now), nil
	}

	svc, cache := newTestService(primary, nil)
	svc.now = func() time.Time { return now }

	svc.RefreshSymbols(context.Background(), []string{"AAPL", "BAD", "MSFT"})

	if _, err := cache.GetSnapshot(context.Background(), "AAPL"); err != nil {
		t.Errorf("AAPL was not warmed: %v", err)
	}
	if _, err := cache.GetSnapshot(context.Background(), "MSFT"); err != nil {
		t.Errorf("MSFT was not warmed: %v", err)
	}
	if _, err := cache.GetSnapshot(context.Background(), "BAD"); err == nil {
		t.Error("BAD must not be cached after a failed fetch")
	}
}
