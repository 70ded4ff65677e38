package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func TestFetchFearGreedIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"value": "62"}},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.FearGreedURL = srv.URL
	s := NewScraper(cfg)

	value, ok := s.FetchFearGreedIndex(context.Background())
	require.True(t, ok)
	assert.Equal(t, 62.0, value)
}

func TestFetchFearGreedIndexBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"value": "not a number"}},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.FearGreedURL = srv.URL
	s := NewScraper(cfg)

	_, ok := s.FetchFearGreedIndex(context.Background())
	assert.False(t, ok)
}

func TestFetchSymbolDelta(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Time Series (Daily)": map[string]map[string]string{
				"2026-08-28": {"4. close": "100.0"},
				"2026-08-29": {"4. close": "102.0"},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.AlphaVantageURL = srv.URL
	cfg.AlphaVantageKey = "demo"
	s := NewScraper(cfg)

	delta, ok := s.FetchSymbolDelta(context.Background(), "SPY")
	require.True(t, ok)
	assert.InDelta(t, 0.02, delta, 1e-12)

	// Second lookup inside the cache window must not hit the server.
	_, ok = s.FetchSymbolDelta(context.Background(), "SPY")
	require.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestFetchSymbolDeltaWithoutKey(t *testing.T) {
	s := NewScraper(testConfig())
	_, ok := s.FetchSymbolDelta(context.Background(), "SPY")
	assert.False(t, ok, "missing credentials must degrade to no value")
}

func TestFetchNewsArticlesWithoutKey(t *testing.T) {
	s := NewScraper(testConfig())
	assert.Nil(t, s.FetchNewsArticles(context.Background(), "anything", 10))
}

func TestFetchMonthlyActiveUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "news-key", r.Header.Get("X-Api-Key"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"articles": []map[string]interface{}{
				{"title": "nothing quantitative here"},
				{"title": "Service passes 450 million monthly active users", "description": "", "content": ""},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.NewsAPIURL = srv.URL
	cfg.NewsAPIKey = "news-key"
	s := NewScraper(cfg)

	mau, ok := s.FetchMonthlyActiveUsers(context.Background(), `"Example"`)
	require.True(t, ok)
	assert.Equal(t, 450.0, mau)
}

func TestFetchSentimentScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"articles": []map[string]interface{}{
				{"title": "record growth and breakthrough success", "source": map[string]string{"name": "Reuters"}},
				{"title": "minor lawsuit delay", "source": map[string]string{"name": "Company Press Release"}},
			},
		})
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.NewsAPIURL = srv.URL
	cfg.NewsAPIKey = "news-key"
	s := NewScraper(cfg)

	score, ok := s.FetchSentimentScore(context.Background(), `"Example"`)
	require.True(t, ok)
	assert.Greater(t, score, 0.0, "down-weighted press release should not flip the positive read")
	assert.LessOrEqual(t, score, 1.0)
}

func TestCollectAssemblesPartialPayload(t *testing.T) {
	fearGreed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"value": "71"}},
		})
	}))
	defer fearGreed.Close()

	cfg := testConfig()
	cfg.FearGreedURL = fearGreed.URL
	// No news, revenue, or market credentials configured.
	s := NewScraper(cfg)

	payload, err := s.Collect(context.Background(), "openai")
	require.NoError(t, err)

	assert.Empty(t, payload.Internal)
	assert.Equal(t, 71.0, payload.External["fearGreedIndex"])
	assert.NotContains(t, payload.External, "marketPerformance")
}

func TestCollectUnknownCompany(t *testing.T) {
	s := NewScraper(testConfig())
	_, err := s.Collect(context.Background(), "enron")
	assert.Error(t, err)
}
