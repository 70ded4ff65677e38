package enrich

import (
	"context"
	"regexp"
	"strings"
)

var positiveWords = map[string]struct{}{
	"growth": {}, "expansion": {}, "profit": {}, "funding": {}, "hiring": {},
	"record": {}, "award": {}, "milestone": {}, "launch": {}, "wins": {},
	"success": {}, "innovation": {}, "leadership": {}, "partnership": {},
	"breakthrough": {}, "accolade": {}, "acceleration": {}, "approved": {},
	"achievement": {}, "expands": {}, "optimistic": {}, "positive": {},
	"gain": {}, "beat": {},
}

var negativeWords = map[string]struct{}{
	"decline": {}, "loss": {}, "lawsuit": {}, "delay": {}, "ban": {},
	"investigation": {}, "negative": {}, "controversy": {}, "critical": {},
	"problem": {}, "challenge": {}, "downturn": {}, "drop": {}, "risk": {},
	"regulatory": {}, "cautious": {},
}

var tokenRegex = regexp.MustCompile(`[a-z']+`)

// ScoreText computes a crude lexicon sentiment score in [-1, 1] for a piece
// of text. Longer texts need proportionally more signal words to move the
// score, normalized at one word per twelve tokens.
func ScoreText(text string) float64 {
	if text == "" {
		return 0
	}
	tokens := tokenRegex.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return 0
	}
	score := 0.0
	for _, token := range tokens {
		if _, ok := positiveWords[token]; ok {
			score++
		} else if _, ok := negativeWords[token]; ok {
			score--
		}
	}
	denominator := float64(len(tokens)) / 12
	if denominator < 1 {
		denominator = 1
	}
	return clampf(score/denominator, -1, 1)
}

// FetchSentimentScore aggregates lexicon sentiment over recent news for the
// query. Press releases are down-weighted. No articles means no value; scored
// articles that cancel out yield an explicit 0.
func (s *Scraper) FetchSentimentScore(ctx context.Context, query string) (float64, bool) {
	articles := s.FetchNewsArticles(ctx, query, 25)
	if len(articles) == 0 {
		return 0, false
	}

	total := 0.0
	weight := 0.0
	for _, article := range articles {
		score := ScoreText(article.text())
		if score == 0 {
			continue
		}
		articleWeight := 1.0
		if strings.Contains(strings.ToLower(article.Source.Name), "press release") {
			articleWeight = 0.75
		}
		total += score * articleWeight
		weight += articleWeight
	}
	if weight == 0 {
		return 0, true
	}
	return clampf(total/weight, -1, 1), true
}
