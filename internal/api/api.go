// Package api serves health, metrics, status and transaction lookups.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/observability"
	"solana-tx-monitor/internal/state"
	"solana-tx-monitor/internal/storage"
)

// StatusSource reports the monitor lifecycle phase.
type StatusSource interface {
	StateName() string
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() string

func (f StatusFunc) StateName() string { return f() }

// Options configures the handler.
type Options struct {
	State    *state.SharedState
	Status   StatusSource
	Feed     http.Handler // mounted at /ws when set
	Endpoint string
	Version  string
	Started  time.Time
	Logger   *slog.Logger
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status       string    `json:"status"`
	Uptime       string    `json:"uptime"`
	Started      time.Time `json:"started"`
	Endpoint     string    `json:"endpoint"`
	Version      string    `json:"version,omitempty"`
	Transactions int       `json:"transactions"`
}

// TransactionsResponse is the JSON response for /transactions endpoint.
type TransactionsResponse struct {
	Count        int                      `json:"count"`
	Transactions []domain.TransactionInfo `json:"transactions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	opts Options
}

// NewHandler returns the HTTP routes.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	h := &handler{opts: opts}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /transactions", h.handleList)
	mux.HandleFunc("GET /transactions/{signature}", h.handleGet)

	if opts.Feed != nil {
		mux.Handle("GET /ws", opts.Feed)
	}

	return mux
}

// handleStatus returns monitor status as JSON.
func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := h.opts.State.Count(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := "unknown"
	if h.opts.Status != nil {
		status = h.opts.Status.StateName()
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		Status:       status,
		Uptime:       time.Since(h.opts.Started).Truncate(time.Second).String(),
		Started:      h.opts.Started,
		Endpoint:     h.opts.Endpoint,
		Version:      h.opts.Version,
		Transactions: n,
	})
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	txs, err := h.opts.State.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if txs == nil {
		txs = []domain.TransactionInfo{}
	}
	h.writeJSON(w, http.StatusOK, TransactionsResponse{Count: len(txs), Transactions: txs})
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.opts.State.Lookup(r.Context(), r.PathValue("signature"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, err)
	default:
		h.writeJSON(w, http.StatusOK, info)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.opts.Logger.Debug("write response failed", "error", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, errorResponse{Error: err.Error()})
}
