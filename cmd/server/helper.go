package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/hip3-venue/internal/pool"
	"github.com/yourorg/hip3-venue/internal/universe"
)

// Shared HTTP plumbing for the API handlers.

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"status": "error",
		"error":  message,
	})
}

// queryTimestamp reads a Unix-millisecond ts parameter, falling back to the
// given default when absent or unparseable.
func queryTimestamp(r *http.Request, fallback int64) int64 {
	raw := r.URL.Query().Get("ts")
	if raw == "" {
		return fallback
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return ts
}

// poolErrorStatus maps pool operation errors to HTTP statuses.
func poolErrorStatus(err error) int {
	switch {
	case errors.Is(err, pool.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrInsufficientBalance),
		errors.Is(err, pool.ErrBelowMinimumLiquidity):
		return http.StatusConflict
	case errors.Is(err, universe.ErrUnknownCompany):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
