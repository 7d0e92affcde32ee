package newswire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stockbuddy/advisor/internal/interfaces"
	"github.com/stockbuddy/advisor/internal/models"
)

func TestGetNews_ParsesArticles(t *testing.T) {
	mockResp := map[string]interface{}{
		"status":       "ok",
		"totalResults": 2,
		"articles": []map[string]interface{}{
			{
				"source":      map[string]interface{}{"id": "reuters", "name": "Reuters"},
				"title":       "Apple unveils new chip",
				"description": "The company announced its next processor generation.",
				"url":         "https://example.com/apple-chip",
				"publishedAt": "2024-03-28T09:15:00Z",
			},
			{
				"source":      map[string]interface{}{"name": "Example Wire"},
				"title":       "Apple supplier update",
				"content":     "Content used when description is empty.",
				"url":         "https://example.com/apple-supplier",
				"publishedAt": "2024-03-27T17:00:00Z",
			},
		},
	}

	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mockResp)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	articles, err := client.GetNews(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}

	if query.Get("q") != `"AAPL" stock OR shares OR trading` {
		t.Errorf("unexpected query: %s", query.Get("q"))
	}
	if query.Get("apiKey") != "test-key" {
		t.Errorf("expected apiKey carried, got %s", query.Get("apiKey"))
	}
	if query.Get("sortBy") != "publishedAt" || query.Get("language") != "en" {
		t.Errorf("expected sortBy/language defaults, got %s %s", query.Get("sortBy"), query.Get("language"))
	}
	if query.Get("pageSize") != "50" {
		t.Errorf("expected default pageSize 50, got %s", query.Get("pageSize"))
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(articles))
	}
	first := articles[0]
	if first.Title != "Apple unveils new chip" || first.Source != "Reuters" {
		t.Errorf("title/source wrong: %s %s", first.Title, first.Source)
	}
	if first.Summary != "The company announced its next processor generation." {
		t.Errorf("summary wrong: %s", first.Summary)
	}
	expectedTime := time.Date(2024, 3, 28, 9, 15, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(expectedTime) {
		t.Errorf("expected published %v, got %v", expectedTime, first.PublishedAt)
	}
	// This provider never scores articles
	if first.Polarity != nil {
		t.Errorf("expected nil polarity, got %v", *first.Polarity)
	}

	// Content backfills an empty description
	if articles[1].Summary != "Content used when description is empty." {
		t.Errorf("expected content fallback, got %s", articles[1].Summary)
	}
}

func TestGetNews_QueryOptions(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "articles": []interface{}{}})
	}))
	defer srv.Close()

	since := time.Date(2024, 3, 20, 6, 30, 0, 0, time.UTC)

	client := NewClient("test-key", WithBaseURL(srv.URL))
	articles, err := client.GetNews(context.Background(), "AAPL",
		interfaces.WithNewsLimit(25),
		interfaces.WithNewsSince(since))
	if err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("expected no articles, got %d", len(articles))
	}
	if query.Get("pageSize") != "25" {
		t.Errorf("expected pageSize=25, got %s", query.Get("pageSize"))
	}
	if query.Get("from") != "2024-03-20T06:30:00Z" {
		t.Errorf("expected from in RFC3339, got %s", query.Get("from"))
	}
}

func TestSearchQuery_StripsExchangeSuffix(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"AAPL", `"AAPL" stock OR shares OR trading`},
		{"BHP.AU", `"BHP" stock OR shares OR trading`},
		{"AUDUSD.FOREX", `"AUDUSD" stock OR shares OR trading`},
	}
	for _, tt := range tests {
		if got := searchQuery(tt.symbol); got != tt.want {
			t.Errorf("searchQuery(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}

func TestGetNews_CapsPageSize(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "articles": []interface{}{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	if _, err := client.GetNews(context.Background(), "AAPL", interfaces.WithNewsLimit(500)); err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if query.Get("pageSize") != "100" {
		t.Errorf("expected pageSize capped at 100, got %s", query.Get("pageSize"))
	}
}

func TestGetNews_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":"error","code":"rateLimited","message":"too many requests"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GetNews(context.Background(), "AAPL")
	if !models.IsRateLimited(err) {
		t.Fatalf("expected rate-limited failure, got %v", err)
	}
}

func TestGetNews_BadKeyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.GetNews(context.Background(), "AAPL")
	if !models.IsTransient(err) {
		t.Fatalf("expected transient failure, got %v", err)
	}

	ff, _ := models.AsFetchFailure(err)
	if ff.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", ff.StatusCode)
	}
}

func TestGetNews_ErrorInsideOKBody(t *testing.T) {
	// The API reports some failures with HTTP 200 and status "error"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"error","code":"parametersMissing","message":"q is required"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GetNews(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error from error-status body")
	}
	if !models.IsTransient(err) {
		t.Errorf("expected transient failure, got %v", err)
	}
}

func TestGetNews_PageSizeOption(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "articles": []interface{}{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithPageSize(30))
	if _, err := client.GetNews(context.Background(), "AAPL"); err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if query.Get("pageSize") != "30" {
		t.Errorf("expected configured pageSize 30, got %s", query.Get("pageSize"))
	}
}
