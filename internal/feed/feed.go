// Package feed streams matched transactions to websocket clients.
//
// Every connected client owns one bus receiver. Messages are JSON encoded
// TransactionInfo values; when a client falls behind the bus capacity it
// receives a {"lagged":N} notice and resumes from the oldest retained value.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-tx-monitor/internal/bus"
	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/observability"
)

// Config holds websocket timing.
type Config struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long to wait for any client frame, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default websocket configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// LagNotice tells a client how many transactions it missed.
type LagNotice struct {
	Lagged uint64 `json:"lagged"`
}

// Server is an http.Handler upgrading requests to transaction feeds.
type Server struct {
	bus      *bus.Bus[domain.TransactionInfo]
	config   Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics

	clients atomic.Int64
}

// NewServer creates a feed server reading from b.
func NewServer(b *bus.Bus[domain.TransactionInfo], cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Server{
		bus:    b,
		config: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "feed"),
		metrics: metrics,
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// ServeHTTP upgrades the request and streams until the client leaves or the
// bus closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	rx := s.bus.Subscribe()
	defer rx.Close()

	s.metrics.FeedClients.Set(float64(s.clients.Add(1)))
	defer func() { s.metrics.FeedClients.Set(float64(s.clients.Add(-1))) }()

	s.logger.Info("feed client connected", "remote", r.RemoteAddr)
	defer s.logger.Info("feed client disconnected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	write := func(messageType int, v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if v == nil {
			return conn.WriteMessage(messageType, nil)
		}
		return conn.WriteJSON(v)
	}

	go s.readLoop(conn, cancel)
	go s.pingLoop(ctx, write)

	err = pump(ctx, rx, func(v any) error { return write(websocket.TextMessage, v) }, s.onLag)
	if err == nil {
		writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(s.config.WriteTimeout))
		writeMu.Unlock()
	}
}

func (s *Server) onLag(missed uint64) {
	s.metrics.RecordLagged("feed", missed)
	s.logger.Warn("feed client lagged", "missed", missed)
}

// readLoop discards client frames; it exists to process control frames and
// to notice disconnects.
func (s *Server) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *Server) pingLoop(ctx context.Context, write func(int, any) error) {
	if s.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pump forwards values from rx to send until ctx ends, send fails or the
// bus closes. It returns nil only when the bus closed.
func pump(ctx context.Context, rx *bus.Receiver[domain.TransactionInfo], send func(any) error, onLag func(uint64)) error {
	for {
		info, err := rx.Recv(ctx)

		var lagged *bus.LaggedError
		switch {
		case errors.As(err, &lagged):
			onLag(lagged.Missed)
			if err := send(LagNotice{Lagged: lagged.Missed}); err != nil {
				return err
			}
		case errors.Is(err, bus.ErrClosed):
			return nil
		case err != nil:
			return err
		default:
			if err := send(info); err != nil {
				return err
			}
		}
	}
}
