// Package snapshot produces the time-varying metric snapshots the valuation
// engine consumes. A Provider owns one baseline cache: defaults from the
// registry, optionally overridden by ingested enrichment data, with
// deterministic drift applied per field. All state is held on the Provider
// value so multiple independent oracle instances can coexist.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/circuitbreaker"
	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/noise"
	"github.com/yourorg/hip3-venue/internal/universe"
	"github.com/yourorg/hip3-venue/internal/validation"
	valn "github.com/yourorg/hip3-venue/internal/valuation"
)

// Default cache and refresh tuning.
const (
	DefaultCacheTTL       = 12 * time.Hour
	DefaultRefreshWindow  = time.Hour
	DefaultFailureBackoff = 10 * time.Minute
	DefaultRefreshTimeout = 10 * time.Second
)

// Enricher is the external data collaborator. Implementations return a
// partial payload of whatever they could gather; an empty payload is normal.
type Enricher interface {
	Collect(ctx context.Context, id string) (model.MetricGroup, error)
}

// Options configures a Provider. The zero value works: no enricher, defaults
// only.
type Options struct {
	// Enricher, when set, is consulted in the background to refresh
	// baselines. Snapshot never waits for it.
	Enricher Enricher

	// Breaker, when set, guards ingestion of enrichment payloads
	Breaker *circuitbreaker.Breaker

	// Validation filters enrichment payloads before ingestion
	Validation validation.Options

	// CacheTTL is how long an ingested baseline is honored
	CacheTTL time.Duration

	// RefreshWindow is the minimum spacing between refreshes after a
	// successful ingestion
	RefreshWindow time.Duration

	// FailureBackoff is the minimum spacing between refresh attempts,
	// successful or not
	FailureBackoff time.Duration

	// RefreshTimeout bounds one background refresh end to end
	RefreshTimeout time.Duration

	// OnRefreshError, when set, is told about failed refresh attempts
	// (collection errors and rejected payloads). Telemetry only.
	OnRefreshError func(id string, err error)
}

type cacheEntry struct {
	timestamp int64 // Unix ms of the ingestion
	metrics   model.MetricGroup
}

// Provider serves metric snapshots for the company registry.
type Provider struct {
	opts Options

	mu          sync.Mutex
	cache       map[string]cacheEntry
	inflight    map[string]struct{}
	lastAttempt map[string]time.Time

	// now is swappable for tests
	now func() time.Time

	// afterRefresh, when set, is invoked once a background refresh has
	// fully settled. Test synchronization hook.
	afterRefresh func(id string)
}

// New creates a Provider with the given options, filling unset durations
// with the defaults.
func New(opts Options) *Provider {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = DefaultFailureBackoff
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Provider{
		opts:        opts,
		cache:       make(map[string]cacheEntry),
		inflight:    make(map[string]struct{}),
		lastAttempt: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Ingest merges an enrichment payload over the company's default baseline and
// caches the result with the given Unix-millisecond timestamp, replacing any
// prior entry for the company.
func (p *Provider) Ingest(id string, payload model.MetricGroup, timestampMs int64) error {
	defaults, ok := universe.Baseline(id)
	if !ok {
		return fmt.Errorf("%w: %q", universe.ErrUnknownCompany, id)
	}

	merged := defaults.Merge(payload)
	p.mu.Lock()
	p.cache[id] = cacheEntry{timestamp: timestampMs, metrics: merged}
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"company":  id,
		"internal": len(payload.Internal),
		"external": len(payload.External),
	}).Debug("Ingested enrichment baseline")
	return nil
}

// Snapshot returns the drifted metric group for a company at a timestamp.
// The result depends only on (id, timestamp) and the cached baseline; a
// background refresh may be scheduled as a side effect but never influences
// this call's return value.
func (p *Provider) Snapshot(id string, timestampMs int64) (model.MetricGroup, error) {
	defaults, ok := universe.Baseline(id)
	if !ok {
		return model.MetricGroup{}, fmt.Errorf("%w: %q", universe.ErrUnknownCompany, id)
	}

	p.maybeRefresh(id, timestampMs)

	baseline := defaults
	p.mu.Lock()
	if cached, hit := p.cache[id]; hit && timestampMs-cached.timestamp <= p.opts.CacheTTL.Milliseconds() {
		baseline = cached.metrics.Clone()
	}
	p.mu.Unlock()

	seed := noise.CompanySeed(id)
	return model.MetricGroup{
		Internal: applyDrift(universe.InternalSchema, baseline.Internal, timestampMs, seed),
		External: applyDrift(universe.ExternalSchema, baseline.External, timestampMs, seed+97),
	}, nil
}

// applyDrift perturbs each baseline value deterministically and clamps it to
// the schema bounds. Field order matters: the per-field seed offset is
// derived from the schema index.
func applyDrift(schema []model.MetricField, baseline model.MetricValues, timestampMs int64, seed float64) model.MetricValues {
	out := make(model.MetricValues, len(schema))
	for i, field := range schema {
		base, ok := baseline[field.Key]
		if !ok {
			base = field.Bounds.Min
		}
		n := noise.Seeded(timestampMs, seed+float64(i+1)*31.71) * field.Jitter
		out[field.Key] = valn.Clamp(base+n, field.Bounds.Min, field.Bounds.Max)
	}
	return out
}

// maybeRefresh schedules a background baseline refresh when the cache is
// missing or stale, subject to the in-flight guard and the attempt backoff.
func (p *Provider) maybeRefresh(id string, timestampMs int64) {
	if p.opts.Enricher == nil {
		return
	}
	if _, ok := universe.SourceFor(id); !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, hit := p.cache[id]; hit && timestampMs-cached.timestamp < p.opts.RefreshWindow.Milliseconds() {
		return
	}
	if _, busy := p.inflight[id]; busy {
		return
	}
	if last, ok := p.lastAttempt[id]; ok && p.now().Sub(last) < p.opts.FailureBackoff {
		return
	}

	p.lastAttempt[id] = p.now()
	p.inflight[id] = struct{}{}
	go p.refresh(id)
}

// refresh runs one bounded enrichment attempt. Failures are swallowed: the
// cache simply stays stale and the next attempt waits out the backoff.
func (p *Provider) refresh(id string) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
		if p.afterRefresh != nil {
			p.afterRefresh(id)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.RefreshTimeout)
	defer cancel()

	payload, err := p.opts.Enricher.Collect(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("company", id).Warn("Enrichment refresh failed")
		p.reportError(id, err)
		return
	}

	payload = validation.FilterPayload(payload, p.opts.Validation)
	if payload.IsEmpty() {
		logrus.WithField("company", id).Debug("Enrichment refresh returned nothing usable")
		return
	}

	if p.opts.Breaker != nil {
		if err := p.opts.Breaker.Check(id, payload); err != nil {
			logrus.WithError(err).WithField("company", id).Warn("Enrichment payload rejected")
			p.reportError(id, err)
			return
		}
	}

	if err := p.Ingest(id, payload, p.now().UnixMilli()); err != nil {
		logrus.WithError(err).WithField("company", id).Warn("Enrichment ingestion failed")
		p.reportError(id, err)
	}
}

func (p *Provider) reportError(id string, err error) {
	if p.opts.OnRefreshError != nil {
		p.opts.OnRefreshError(id, err)
	}
}
