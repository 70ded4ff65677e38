package enrich

import (
	"context"
	"fmt"
	"sync"

	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/universe"
)

// Collect fans out all enrichment fetchers for one company and assembles a
// partial metric payload from whatever succeeded. An empty payload (nothing
// reachable, no credentials) is a normal outcome, not an error; the only
// error case is a company without source routing.
func (s *Scraper) Collect(ctx context.Context, id string) (model.MetricGroup, error) {
	src, ok := universe.SourceFor(id)
	if !ok {
		return model.MetricGroup{}, fmt.Errorf("no enrichment sources for company %q", id)
	}

	var (
		wg sync.WaitGroup

		revenue, mau, sentiment    float64
		market, vertical, fg       float64
		revenueOK, mauOK, sentOK   bool
		marketOK, verticalOK, fgOK bool
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		revenue, revenueOK = s.FetchAnnualRevenue(ctx, src)
	}()
	go func() {
		defer wg.Done()
		mau, mauOK = s.FetchMonthlyActiveUsers(ctx, src.MAUQuery)
	}()
	go func() {
		defer wg.Done()
		query := src.SentimentQuery
		if query == "" {
			query = src.MAUQuery
		}
		sentiment, sentOK = s.FetchSentimentScore(ctx, query)
	}()
	go func() {
		defer wg.Done()
		market, marketOK = s.FetchSymbolDelta(ctx, src.MarketSymbol)
		vertical, verticalOK = s.FetchSymbolDelta(ctx, src.VerticalSymbol)
	}()
	go func() {
		defer wg.Done()
		fg, fgOK = s.FetchFearGreedIndex(ctx)
	}()
	wg.Wait()

	payload := model.MetricGroup{
		Internal: model.MetricValues{},
		External: model.MetricValues{},
	}
	if revenueOK {
		payload.Internal["annualRevenue"] = roundTo(revenue, 2)
	}
	if mauOK {
		if mau < 0 {
			mau = 0
		}
		payload.Internal["monthlyActiveUsers"] = mau
	}
	if sentOK {
		payload.Internal["sentimentScore"] = clampf(roundTo(sentiment, 3), -1, 1)
	}
	if marketOK {
		payload.External["marketPerformance"] = roundTo(market, 3)
	}
	if verticalOK {
		payload.External["verticalPerformance"] = roundTo(vertical, 3)
	}
	if fgOK {
		payload.External["fearGreedIndex"] = clampf(fg, 0, 100)
	}
	return payload, nil
}
