// Package export ships market snapshots to an external webhook in batches.
// It is best-effort: delivery failures are logged and the batch dropped, the
// venue itself never blocks on the export path.
package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/integrity"
)

// Config holds webhook export settings.
type Config struct {
	Enabled        bool          `json:"enabled"`
	WebhookURL     string        `json:"webhook_url"`
	WebhookAPIKey  string        `json:"webhook_api_key,omitempty"`
	BatchSize      int           `json:"batch_size"`
	ExportInterval time.Duration `json:"export_interval"`
}

// Exporter accumulates snapshots and flushes them on a timer or when the
// batch fills up, whichever comes first.
type Exporter struct {
	cfg    Config
	client *http.Client
	signer *integrity.Signer

	mu    sync.Mutex
	batch []interface{}
	last  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Exporter. A disabled config returns an inert exporter whose
// Add is a no-op. When a signer is provided, every batch goes out as a
// signed envelope.
func New(cfg Config, signer *integrity.Signer) *Exporter {
	e := &Exporter{cfg: cfg, signer: signer}
	if !cfg.Enabled {
		return e
	}
	if e.cfg.BatchSize <= 0 {
		e.cfg.BatchSize = 50
	}
	if e.cfg.ExportInterval <= 0 {
		e.cfg.ExportInterval = time.Minute
	}

	e.client = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			IdleConnTimeout: 90 * time.Second,
		},
	}
	e.batch = make([]interface{}, 0, e.cfg.BatchSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	go e.loop()

	logrus.WithField("interval", e.cfg.ExportInterval).Info("Snapshot exporter started")
	return e
}

// Add queues snapshots for export.
func (e *Exporter) Add(snapshots ...interface{}) {
	if !e.cfg.Enabled || len(snapshots) == 0 {
		return
	}
	e.mu.Lock()
	e.batch = append(e.batch, snapshots...)
	full := len(e.batch) >= e.cfg.BatchSize
	e.mu.Unlock()

	if full {
		go e.flush()
	}
}

func (e *Exporter) loop() {
	ticker := time.NewTicker(e.cfg.ExportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Exporter) flush() {
	e.mu.Lock()
	if len(e.batch) == 0 {
		e.mu.Unlock()
		return
	}
	batch := e.batch
	e.batch = make([]interface{}, 0, e.cfg.BatchSize)
	e.last = time.Now()
	e.mu.Unlock()

	if err := e.deliver(batch); err != nil {
		logrus.WithError(err).Warnf("Dropped export batch of %d snapshots", len(batch))
		return
	}
	logrus.Debugf("Exported %d snapshots", len(batch))
}

func (e *Exporter) deliver(batch []interface{}) error {
	envelope := struct {
		Snapshots  []interface{} `json:"snapshots"`
		ExportTime string        `json:"export_time"`
		Count      int           `json:"count"`
	}{
		Snapshots:  batch,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(batch),
	}

	var body []byte
	var err error
	if e.signer != nil {
		signed, signErr := e.signer.Sign(envelope)
		if signErr != nil {
			return fmt.Errorf("failed to sign export batch: %w", signErr)
		}
		body, err = json.Marshal(signed)
	} else {
		body, err = json.Marshal(envelope)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal export batch: %w", err)
	}

	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.WebhookAPIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("export endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Status reports the exporter's live state for the status endpoint.
func (e *Exporter) Status() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := map[string]interface{}{
		"enabled":       e.cfg.Enabled,
		"batch_size":    e.cfg.BatchSize,
		"current_batch": len(e.batch),
		"signed":        e.signer != nil,
	}
	if e.cfg.Enabled {
		status["export_interval"] = e.cfg.ExportInterval.String()
	}
	if !e.last.IsZero() {
		status["last_export"] = e.last.Format(time.RFC3339)
	}
	return status
}

// Stop halts the ticker and flushes anything still queued.
func (e *Exporter) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	// One last synchronous flush; the request context is gone, so rebuild
	// a short-lived one.
	e.ctx = context.Background()
	e.flush()
}
