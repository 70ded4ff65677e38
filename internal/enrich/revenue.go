package enrich

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/universe"
)

var magnitudeRegex = regexp.MustCompile(`(?i)(\d[\d,.]*)\s?(billion|million|thousand|bn|mm|mn|m|k|b)`)

// Magnitude is a numeric mention with its unit suffix, e.g. "3.6 billion".
type Magnitude struct {
	Value float64
	Unit  string
}

// ExtractMagnitude finds the first "<number> <unit>" mention in free text.
func ExtractMagnitude(text string) (Magnitude, bool) {
	match := magnitudeRegex.FindStringSubmatch(text)
	if match == nil {
		return Magnitude{}, false
	}
	raw, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil || math.IsInf(raw, 0) {
		return Magnitude{}, false
	}
	return Magnitude{Value: raw, Unit: strings.ToLower(match[2])}, true
}

func normalizeUnit(unit string) string {
	switch {
	case strings.HasPrefix(unit, "b"):
		return "b"
	case strings.HasPrefix(unit, "m"), unit == "mm", unit == "mn":
		return "m"
	case strings.HasPrefix(unit, "k"), unit == "thousand":
		return "k"
	}
	return unit
}

// ToBillions converts a magnitude to USD billions.
func (m Magnitude) ToBillions() (float64, bool) {
	switch normalizeUnit(m.Unit) {
	case "b":
		return m.Value, true
	case "m":
		return m.Value / 1000, true
	case "k":
		return m.Value / 1_000_000, true
	}
	return 0, false
}

// ToMillions converts a magnitude to millions.
func (m Magnitude) ToMillions() (float64, bool) {
	switch normalizeUnit(m.Unit) {
	case "b":
		return m.Value * 1000, true
	case "m":
		return m.Value, true
	case "k":
		return m.Value / 1000, true
	}
	return 0, false
}

// ParseRevenueValue extracts an annual revenue figure in USD billions from
// the loosely typed shapes provider APIs return: plain numbers (raw USD when
// large), "low-high" range strings, magnitude strings ("3.6 billion"), and
// objects carrying amount/value/min+max fields.
func ParseRevenueValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		if v > 10_000 {
			return v / 1_000_000_000, true
		}
		return v, true
	case int:
		return ParseRevenueValue(float64(v))
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		if strings.Contains(trimmed, "-") {
			parts := strings.SplitN(trimmed, "-", 2)
			low, lowOK := ParseRevenueValue(strings.TrimSpace(parts[0]))
			high, highOK := ParseRevenueValue(strings.TrimSpace(parts[1]))
			if lowOK && highOK {
				return (low + high) / 2, true
			}
		}
		if magnitude, ok := ExtractMagnitude(trimmed); ok {
			return magnitude.ToBillions()
		}
		numeric, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		if numeric > 10_000 {
			return numeric / 1_000_000_000, true
		}
		return numeric, true
	case map[string]interface{}:
		if amount, ok := v["amount"]; ok {
			return ParseRevenueValue(amount)
		}
		if value, ok := v["value"]; ok {
			return ParseRevenueValue(value)
		}
		minRaw, hasMin := v["min"]
		maxRaw, hasMax := v["max"]
		if hasMin && hasMax {
			low, lowOK := ParseRevenueValue(minRaw)
			high, highOK := ParseRevenueValue(maxRaw)
			if lowOK && highOK {
				return (low + high) / 2, true
			}
		}
	}
	return 0, false
}

// fetchCrunchbaseRevenue reads the annual revenue for a company from the
// Crunchbase organization entity. Missing key or id yields no value.
func (s *Scraper) fetchCrunchbaseRevenue(ctx context.Context, src universe.Source) (float64, bool) {
	if s.cfg.CrunchbaseKey == "" || src.CrunchbaseID == "" {
		return 0, false
	}

	endpoint := fmt.Sprintf("%s/api/v4/entities/organizations/%s?user_key=%s&field_ids=%s",
		s.cfg.CrunchbaseURL,
		url.PathEscape(src.CrunchbaseID),
		url.QueryEscape(s.cfg.CrunchbaseKey),
		url.QueryEscape("financials,revenue_range,annual_revenue"))

	var body struct {
		Data struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, endpoint, nil, &body); err != nil {
		logrus.WithError(err).Debug("Crunchbase revenue fetch failed")
		return 0, false
	}

	raw, ok := body.Data.Properties["annual_revenue"]
	if !ok || raw == nil {
		if rr, found := body.Data.Properties["revenue_range"]; found {
			if rrMap, isMap := rr.(map[string]interface{}); isMap {
				raw = rrMap["value"]
			}
		}
	}
	if raw == nil {
		raw = body.Data.Properties["financials"]
	}
	return ParseRevenueValue(raw)
}

// fetchPitchbookRevenue reads the most recent annual revenue entry from the
// PitchBook financials endpoint.
func (s *Scraper) fetchPitchbookRevenue(ctx context.Context, src universe.Source) (float64, bool) {
	if s.cfg.PitchbookKey == "" || src.PitchbookID == "" {
		return 0, false
	}

	endpoint := fmt.Sprintf("%s/v1/companies/%s/financials?metric=Annual%%20Revenue",
		s.cfg.PitchbookURL, url.PathEscape(src.PitchbookID))

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.PitchbookKey)

	var body struct {
		Financials []map[string]interface{} `json:"financials"`
		Data       []map[string]interface{} `json:"data"`
	}
	if err := s.getJSON(ctx, endpoint, header, &body); err != nil {
		logrus.WithError(err).Debug("PitchBook revenue fetch failed")
		return 0, false
	}

	entries := body.Financials
	if entries == nil {
		entries = body.Data
	}

	relevant := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		metric, _ := entry["metric"].(string)
		if strings.Contains(strings.ToLower(metric), "revenue") {
			relevant = append(relevant, entry)
		}
	}
	if len(relevant) == 0 {
		return 0, false
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return entryDate(relevant[i]).After(entryDate(relevant[j]))
	})

	latest := relevant[0]
	for _, key := range []string{"value", "amount", "reportedValue", "range"} {
		if raw, ok := latest[key]; ok && raw != nil {
			if parsed, parsedOK := ParseRevenueValue(raw); parsedOK {
				return parsed, true
			}
		}
	}
	return 0, false
}

func entryDate(entry map[string]interface{}) time.Time {
	for _, key := range []string{"asOfDate", "period", "date"} {
		raw, _ := entry[key].(string)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006"} {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}

// FetchAnnualRevenue queries both revenue sources concurrently and averages
// them when both respond.
func (s *Scraper) FetchAnnualRevenue(ctx context.Context, src universe.Source) (float64, bool) {
	var (
		wg               sync.WaitGroup
		cbValue, pbValue float64
		cbOK, pbOK       bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cbValue, cbOK = s.fetchCrunchbaseRevenue(ctx, src)
	}()
	go func() {
		defer wg.Done()
		pbValue, pbOK = s.fetchPitchbookRevenue(ctx, src)
	}()
	wg.Wait()

	switch {
	case cbOK && pbOK:
		return (cbValue + pbValue) / 2, true
	case cbOK:
		return cbValue, true
	case pbOK:
		return pbValue, true
	}
	return 0, false
}
