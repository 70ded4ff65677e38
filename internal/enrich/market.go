package enrich

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const alphaVantageCacheTTL = 15 * time.Minute

// FetchSymbolDelta returns the day-over-day close delta for a symbol from
// Alpha Vantage, cached per symbol for a short window.
func (s *Scraper) FetchSymbolDelta(ctx context.Context, symbol string) (float64, bool) {
	if s.cfg.AlphaVantageKey == "" || symbol == "" {
		return 0, false
	}

	s.avMu.Lock()
	if cached, ok := s.avCache[symbol]; ok && s.now().Sub(cached.fetchedAt) < alphaVantageCacheTTL {
		s.avMu.Unlock()
		return cached.delta, true
	}
	s.avMu.Unlock()

	endpoint := fmt.Sprintf("%s/query?function=TIME_SERIES_DAILY_ADJUSTED&symbol=%s&outputsize=compact&apikey=%s",
		s.cfg.AlphaVantageURL, url.QueryEscape(symbol), url.QueryEscape(s.cfg.AlphaVantageKey))

	var body struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := s.getJSON(ctx, endpoint, nil, &body); err != nil {
		logrus.WithError(err).WithField("symbol", symbol).Debug("Alpha Vantage fetch failed")
		return 0, false
	}
	if len(body.Series) < 2 {
		return 0, false
	}

	dates := make([]string, 0, len(body.Series))
	for date := range body.Series {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	latest := body.Series[dates[len(dates)-1]]
	prior := body.Series[dates[len(dates)-2]]
	latestClose, err1 := strconv.ParseFloat(latest["4. close"], 64)
	priorClose, err2 := strconv.ParseFloat(prior["4. close"], 64)
	if err1 != nil || err2 != nil || priorClose == 0 {
		return 0, false
	}

	delta := (latestClose - priorClose) / priorClose
	s.avMu.Lock()
	s.avCache[symbol] = avEntry{fetchedAt: s.now(), delta: delta}
	s.avMu.Unlock()
	return delta, true
}

// FetchFearGreedIndex returns the current alternative-asset fear & greed
// index in 0..100.
func (s *Scraper) FetchFearGreedIndex(ctx context.Context) (float64, bool) {
	var body struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, s.cfg.FearGreedURL, nil, &body); err != nil {
		logrus.WithError(err).Debug("Fear & greed fetch failed")
		return 0, false
	}
	if len(body.Data) == 0 {
		return 0, false
	}
	value, err := strconv.Atoi(body.Data[0].Value)
	if err != nil {
		return 0, false
	}
	return float64(value), true
}
