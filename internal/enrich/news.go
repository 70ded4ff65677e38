package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Article is one NewsAPI result. Only the text fields the scorers read.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

// text joins the readable parts of an article for scoring.
func (a Article) text() string {
	return a.Title + ". " + a.Description + ". " + a.Content
}

// FetchNewsArticles returns recent English articles matching the query, up to
// pageSize, newest first over the last seven days. No API key means no
// articles, never an error.
func (s *Scraper) FetchNewsArticles(ctx context.Context, query string, pageSize int) []Article {
	if s.cfg.NewsAPIKey == "" {
		return nil
	}

	from := s.now().Add(-7 * 24 * time.Hour).UTC().Format(time.RFC3339)
	endpoint := fmt.Sprintf("%s/v2/everything?pageSize=%d&language=en&sortBy=publishedAt&q=%s&from=%s",
		s.cfg.NewsAPIURL, pageSize, url.QueryEscape(query), url.QueryEscape(from))

	header := http.Header{}
	header.Set("X-Api-Key", s.cfg.NewsAPIKey)

	var body struct {
		Articles []Article `json:"articles"`
	}
	if err := s.getJSON(ctx, endpoint, header, &body); err != nil {
		logrus.WithError(err).Debug("News fetch failed")
		return nil
	}
	return body.Articles
}

// FetchMonthlyActiveUsers scans recent articles for the first credible
// monthly-active-users mention and returns it in millions.
func (s *Scraper) FetchMonthlyActiveUsers(ctx context.Context, query string) (float64, bool) {
	articles := s.FetchNewsArticles(ctx, query+` "monthly active users"`, 15)
	for _, article := range articles {
		magnitude, ok := ExtractMagnitude(article.text())
		if !ok {
			continue
		}
		if mau, converted := magnitude.ToMillions(); converted {
			return mau, true
		}
	}
	return 0, false
}
