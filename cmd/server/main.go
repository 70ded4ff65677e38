// Package main is the entry point for the HIP-3 synthetic venue service: a
// deterministic valuation oracle for private-company assets plus a
// single-sided liquidity pool pricing execution cost against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/hip3-venue/internal/circuitbreaker"
	"github.com/yourorg/hip3-venue/internal/config"
	"github.com/yourorg/hip3-venue/internal/enrich"
	"github.com/yourorg/hip3-venue/internal/export"
	"github.com/yourorg/hip3-venue/internal/integrity"
	"github.com/yourorg/hip3-venue/internal/model"
	"github.com/yourorg/hip3-venue/internal/oracle"
	"github.com/yourorg/hip3-venue/internal/otel"
	"github.com/yourorg/hip3-venue/internal/pool"
	"github.com/yourorg/hip3-venue/internal/snapshot"
	"github.com/yourorg/hip3-venue/internal/validation"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server owns the two aggregates of the venue. Oracle state and pool are
// immutable values; mutations are serialized through their mutexes and swap
// the whole value, so readers can take a snapshot under a read lock and work
// lock-free afterwards.
type Server struct {
	cfg config.Config

	engine  *oracle.Engine
	breaker *circuitbreaker.Breaker

	stateMu sync.RWMutex
	state   model.OracleState

	poolMu sync.RWMutex
	pool   pool.Pool

	signer    *integrity.Signer
	exporter  *export.Exporter
	rateLimit *rate.Limiter
	metrics   *serverMetrics
	hub       *streamHub

	server *http.Server
}

// serverMetrics holds Prometheus metrics for the venue.
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	assetPrice      *prometheus.GaugeVec
	assetVolume     *prometheus.GaugeVec
	assetComposite  *prometheus.GaugeVec
	enrichFailures  *prometheus.CounterVec
	oracleSteps     prometheus.Counter
	poolLiquidity   prometheus.Gauge
	poolTreasury    prometheus.Gauge
	poolFees        prometheus.Gauge
	streamClients   prometheus.Gauge
}

func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hip3_requests_total",
				Help: "Total number of API requests processed",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hip3_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		assetPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hip3_asset_price",
				Help: "Current oracle price per asset",
			},
			[]string{"asset"},
		),
		assetVolume: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hip3_asset_volume",
				Help: "Derived synthetic volume per asset",
			},
			[]string{"asset"},
		),
		assetComposite: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hip3_asset_composite_score",
				Help: "Composite valuation score per asset",
			},
			[]string{"asset"},
		),
		enrichFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hip3_enrichment_failures_total",
				Help: "Failed or rejected enrichment refreshes per company",
			},
			[]string{"company"},
		),
		oracleSteps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hip3_oracle_steps_total",
				Help: "Number of oracle intervals stepped since start",
			},
		),
		poolLiquidity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hip3_pool_liquidity_eth",
				Help: "Tradable ETH liquidity in the pool",
			},
		),
		poolTreasury: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hip3_pool_treasury_eth",
				Help: "Accrued treasury balance",
			},
		),
		poolFees: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hip3_pool_cumulative_fees_eth",
				Help: "Cumulative fees folded into the pool",
			},
		),
		streamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hip3_stream_clients",
				Help: "Connected websocket subscribers",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.assetPrice,
		m.assetVolume,
		m.assetComposite,
		m.enrichFailures,
		m.oracleSteps,
		m.poolLiquidity,
		m.poolTreasury,
		m.poolFees,
		m.streamClients,
	)
	return m
}

func main() {
	if err := godotenv.Load(); err == nil {
		logrus.Info("Loaded environment from .env")
	}
	setupLogging()

	cfg := config.Load()
	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	server, err := NewServer(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize server: %v", err)
	}
	server.Start()
}

func setupLogging() {
	switch os.Getenv("LOG_FORMAT") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// NewServer wires the snapshot provider, oracle engine, pool and ancillary
// services, and bootstraps the initial oracle state.
func NewServer(cfg config.Config) (*Server, error) {
	metrics := registerMetrics()

	breaker := circuitbreaker.New(circuitbreaker.DefaultThresholds()).
		WithTripCallback(func(reason string) {
			logrus.Warnf("Enrichment circuit breaker tripped: %s", reason)
		})

	scraperCfg := enrich.DefaultConfig()
	scraperCfg.CrunchbaseKey = cfg.APIKeys["crunchbase"]
	scraperCfg.PitchbookKey = cfg.APIKeys["pitchbook"]
	scraperCfg.NewsAPIKey = cfg.APIKeys["newsapi"]
	scraperCfg.AlphaVantageKey = cfg.APIKeys["alphavantage"]
	scraperCfg.RequestTimeout = cfg.RequestTimeout

	provider := snapshot.New(snapshot.Options{
		Enricher:       enrich.NewScraper(scraperCfg),
		Breaker:        breaker,
		Validation:     validation.DefaultOptions(),
		CacheTTL:       cfg.CacheTTL,
		RefreshWindow:  cfg.RefreshWindow,
		FailureBackoff: cfg.FailureBackoff,
		RefreshTimeout: cfg.RequestTimeout,
		OnRefreshError: func(id string, _ error) {
			metrics.enrichFailures.WithLabelValues(id).Inc()
		},
	})
	engine := oracle.New(provider)

	poolCfg := pool.DefaultConfig()
	if cfg.PoolMinLiquidityEth > 0 {
		poolCfg.MinLiquidityEth = cfg.PoolMinLiquidityEth
	}
	if cfg.PoolInitialLiquidityEth > 0 {
		poolCfg.InitialLiquidityEth = cfg.PoolInitialLiquidityEth
	}
	p, err := pool.New(poolCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	var signer *integrity.Signer
	if cfg.SigningKeyHex != "" {
		signer, err = integrity.NewSignerFromHex(cfg.SigningKeyHex)
	} else {
		signer, err = integrity.NewSigner()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}

	exporter := export.New(export.Config{
		Enabled:        cfg.ExportEnabled,
		WebhookURL:     cfg.ExportURL,
		WebhookAPIKey:  cfg.ExportAPIKey,
		BatchSize:      cfg.ExportBatchSize,
		ExportInterval: cfg.ExportInterval,
	}, signer)

	state, err := engine.Bootstrap(time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("oracle bootstrap failed: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		engine:    engine,
		breaker:   breaker,
		state:     state,
		pool:      p,
		signer:    signer,
		exporter:  exporter,
		rateLimit: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		metrics:   metrics,
		hub:       newStreamHub(),
	}
	s.hub.onCount = s.metrics.streamClients.Set
	s.publishGauges(state)
	s.publishPoolGauges(p)

	logrus.WithFields(logrus.Fields{
		"port":         cfg.Port,
		"assets":       len(state.Assets),
		"lastUpdated":  state.LastUpdated,
		"poolLiqEth":   p.EthLiquidity,
		"exportActive": cfg.ExportEnabled,
	}).Info("Venue initialized")
	return s, nil
}

// Start runs the HTTP server, the advance ticker and the stream hub until
// an interrupt arrives, then shuts everything down.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/oracle/valuations", s.limited(s.handleValuations))
	mux.HandleFunc("/oracle/state", s.limited(s.handleOracleState))
	mux.HandleFunc("/oracle/asset", s.limited(s.handleAssetSnapshot))
	mux.HandleFunc("/oracle/advance", s.limited(s.handleAdvance))
	mux.HandleFunc("/pool", s.limited(s.handlePoolMetrics))
	mux.HandleFunc("/pool/stake", s.limited(s.handleStake))
	mux.HandleFunc("/pool/withdraw", s.limited(s.handleWithdraw))
	mux.HandleFunc("/pool/fees", s.limited(s.handleDistributeFees))
	mux.HandleFunc("/pool/treasury", s.limited(s.handleCreditTreasury))
	mux.HandleFunc("/pool/estimate", s.limited(s.handleEstimate))
	mux.HandleFunc("/ws", s.handleStream)

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.run(ctx)
	go s.advanceLoop(ctx)

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	cancel()
	s.exporter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}
	logrus.Info("Server stopped")
}

// advanceLoop periodically advances the oracle. The ticker runs finer than
// the oracle step; advance is an aligned no-op inside an interval, so extra
// ticks cost nothing.
func (s *Server) advanceLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.AdvanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.advanceTo(time.Now().UnixMilli()); err != nil {
				logrus.WithError(err).Error("Oracle advance failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// advanceTo is the single writer for oracle state. It steps the state to the
// given timestamp, swaps it in, and fans out side effects when the watermark
// actually moved.
func (s *Server) advanceTo(timestampMs int64) (model.OracleState, error) {
	s.stateMu.Lock()
	prev := s.state
	next, err := s.engine.Advance(prev, timestampMs)
	if err != nil {
		s.stateMu.Unlock()
		return prev, err
	}
	s.state = next
	s.stateMu.Unlock()

	if next.LastUpdated == prev.LastUpdated {
		return next, nil
	}

	steps := (next.LastUpdated - prev.LastUpdated) / oracle.StepIntervalMs
	s.metrics.oracleSteps.Add(float64(steps))
	s.publishGauges(next)
	s.hub.broadcast(streamMessage{Type: "oracle", State: &next})
	for i := range next.Assets {
		s.exporter.Add(next.Assets[i])
	}
	logrus.WithFields(logrus.Fields{
		"steps":       steps,
		"lastUpdated": next.LastUpdated,
	}).Debug("Oracle advanced")
	return next, nil
}

func (s *Server) publishGauges(state model.OracleState) {
	for _, asset := range state.Assets {
		s.metrics.assetPrice.WithLabelValues(asset.ID).Set(asset.Price)
		s.metrics.assetVolume.WithLabelValues(asset.ID).Set(asset.Volume)
		s.metrics.assetComposite.WithLabelValues(asset.ID).Set(asset.CompositeScore)
	}
}

func (s *Server) publishPoolGauges(p pool.Pool) {
	s.metrics.poolLiquidity.Set(p.EthLiquidity)
	s.metrics.poolTreasury.Set(p.TreasuryEth)
	s.metrics.poolFees.Set(p.CumulativeFeesEth)
}

// limited wraps a handler with the API rate limiter and request metrics.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if !s.rateLimit.Allow() {
			s.metrics.requestCounter.WithLabelValues(r.URL.Path, "throttled").Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
		s.metrics.requestCounter.WithLabelValues(r.URL.Path, "ok").Inc()
		s.metrics.requestDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.stateMu.RLock()
	lastUpdated := s.state.LastUpdated
	assetCount := len(s.state.Assets)
	s.stateMu.RUnlock()

	s.poolMu.RLock()
	poolMetrics := s.pool.Metrics()
	s.poolMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "operational",
		"uptime":        time.Since(startTime).String(),
		"version":       "1.0.0",
		"assets":        assetCount,
		"lastUpdated":   lastUpdated,
		"stepPending":   oracle.AlignToInterval(time.Now().UnixMilli()) > lastUpdated,
		"circuitState":  s.breaker.GetState().String(),
		"pool":          poolMetrics,
		"export":        s.exporter.Status(),
		"signingPubKey": s.signer.PublicKeyHex(),
	})
}

// handleValuations serves the stateless one-shot valuation list. With
// signed=1 the payload is wrapped in a signature envelope.
func (s *Server) handleValuations(w http.ResponseWriter, r *http.Request) {
	ts := queryTimestamp(r, time.Now().UnixMilli())
	valuations, err := s.engine.GenerateValuations(ts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("signed") == "1" {
		signed, err := s.signer.Sign(valuations)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, signed)
		return
	}
	writeJSON(w, http.StatusOK, valuations)
}

func (s *Server) handleOracleState(w http.ResponseWriter, _ *http.Request) {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAssetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}
	asset, err := s.engine.AssetSnapshot(id, queryTimestamp(r, time.Now().UnixMilli()))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	state, err := s.advanceTo(queryTimestamp(r, time.Now().UnixMilli()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, _ *http.Request) {
	s.poolMu.RLock()
	metrics := s.pool.Metrics()
	s.poolMu.RUnlock()
	writeJSON(w, http.StatusOK, metrics)
}

// poolRequest is the body of every pool mutation endpoint.
type poolRequest struct {
	AmountEth float64 `json:"amountEth"`
	StakerID  string  `json:"stakerId"`
}

// mutatePool serializes pool writes: decode, apply, swap, report.
func (s *Server) mutatePool(w http.ResponseWriter, r *http.Request, apply func(pool.Pool, poolRequest) (pool.Pool, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req poolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StakerID == "" {
		req.StakerID = "anon"
	}

	s.poolMu.Lock()
	next, err := apply(s.pool, req)
	if err != nil {
		s.poolMu.Unlock()
		writeError(w, poolErrorStatus(err), err.Error())
		return
	}
	s.pool = next
	s.poolMu.Unlock()

	s.publishPoolGauges(next)
	s.hub.broadcast(streamMessage{Type: "pool", Pool: &next})
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.mutatePool(w, r, func(p pool.Pool, req poolRequest) (pool.Pool, error) {
		return p.Stake(req.AmountEth, req.StakerID, time.Now().UnixMilli())
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.mutatePool(w, r, func(p pool.Pool, req poolRequest) (pool.Pool, error) {
		return p.Withdraw(req.AmountEth, req.StakerID, time.Now().UnixMilli())
	})
}

func (s *Server) handleDistributeFees(w http.ResponseWriter, r *http.Request) {
	s.mutatePool(w, r, func(p pool.Pool, req poolRequest) (pool.Pool, error) {
		return p.DistributeFees(req.AmountEth, time.Now().UnixMilli())
	})
}

func (s *Server) handleCreditTreasury(w http.ResponseWriter, r *http.Request) {
	s.mutatePool(w, r, func(p pool.Pool, req poolRequest) (pool.Pool, error) {
		return p.CreditTreasury(req.AmountEth, time.Now().UnixMilli())
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.ParseFloat(r.URL.Query().Get("size"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid size parameter")
		return
	}
	side := pool.SideBuy
	if r.URL.Query().Get("side") == "sell" {
		side = pool.SideSell
	}

	s.poolMu.RLock()
	current := s.pool
	s.poolMu.RUnlock()
	writeJSON(w, http.StatusOK, pool.Estimate(current, size, side))
}
