// Package enrich provides best-effort clients for the external data sources
// that refresh the oracle's metric baselines: Crunchbase and PitchBook for
// revenue, NewsAPI for sentiment and active-user mentions, Alpha Vantage for
// market deltas, and the alternative.me fear & greed index. Every fetcher
// degrades to "no value" when credentials are missing or a request fails; the
// oracle never depends on any of them succeeding.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Config holds credentials and endpoints for the enrichment sources. Base
// URLs are configurable so tests can point the clients at local servers.
type Config struct {
	CrunchbaseKey   string
	PitchbookKey    string
	NewsAPIKey      string
	AlphaVantageKey string

	CrunchbaseURL   string
	PitchbookURL    string
	NewsAPIURL      string
	AlphaVantageURL string
	FearGreedURL    string

	// RequestTimeout bounds every outbound request
	RequestTimeout time.Duration
}

// DefaultConfig returns the production endpoints with no credentials set.
func DefaultConfig() Config {
	return Config{
		CrunchbaseURL:   "https://api.crunchbase.com",
		PitchbookURL:    "https://api.pitchbook.com",
		NewsAPIURL:      "https://newsapi.org",
		AlphaVantageURL: "https://www.alphavantage.co",
		FearGreedURL:    "https://api.alternative.me/fng/?limit=1&format=json",
		RequestTimeout:  10 * time.Second,
	}
}

// Scraper bundles all enrichment clients behind one Collect call.
type Scraper struct {
	cfg    Config
	client *http.Client

	// Alpha Vantage rations free-tier calls hard, so deltas are cached
	// per symbol for a short window
	avMu    sync.Mutex
	avCache map[string]avEntry

	now func() time.Time
}

type avEntry struct {
	fetchedAt time.Time
	delta     float64
}

// NewScraper creates a Scraper from the given configuration.
func NewScraper(cfg Config) *Scraper {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Scraper{
		cfg:     cfg,
		client:  newRetryClient().StandardClient(),
		avCache: make(map[string]avEntry),
		now:     time.Now,
	}
}

// newRetryClient creates an HTTP client with retry capabilities.
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// getJSON performs a bounded GET and decodes the JSON body into out.
func (s *Scraper) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func clampf(value, min, max float64) float64 {
	return math.Min(math.Max(value, min), max)
}

func roundTo(value float64, precision int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}
