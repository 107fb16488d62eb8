// Package monitor drives a single geyser subscription stream.
//
// Run subscribes once, then reads updates in order until the server closes
// the stream, the stream fails, or the caller cancels. Each matched
// transaction is recorded in shared state before it is published to the
// fanout bus. Server pings are answered on the same stream. Run never
// reconnects; restarting is the caller's decision.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"solana-tx-monitor/internal/bus"
	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/geyser"
	"solana-tx-monitor/internal/observability"
	"solana-tx-monitor/internal/solana"
	"solana-tx-monitor/internal/state"
)

// DefaultPingID is the correlation id sent in ping replies when none is set.
const DefaultPingID int32 = 1

// State is the lifecycle phase of a Monitor.
type State int32

const (
	Connecting State = iota
	Subscribing
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Subscriber opens a subscribe stream. *geyser.Client implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (geyser.Stream, error)
}

var _ Subscriber = (*geyser.Client)(nil)

// Options configures a Monitor.
type Options struct {
	// State receives every matched transaction. Required.
	State *state.SharedState

	// Bus receives every matched transaction after it is recorded. Required.
	Bus *bus.Bus[domain.TransactionInfo]

	// PingID is sent in ping replies. Zero means DefaultPingID.
	PingID int32

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to observability.DefaultMetrics.
	Metrics *observability.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Monitor is the single producer for one SharedState and Bus.
type Monitor struct {
	state   *state.SharedState
	bus     *bus.Bus[domain.TransactionInfo]
	pingID  int32
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time

	current atomic.Int32
}

// New creates a Monitor in the Connecting state.
func New(opts Options) *Monitor {
	if opts.PingID == 0 {
		opts.PingID = DefaultPingID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Monitor{
		state:   opts.State,
		bus:     opts.Bus,
		pingID:  opts.PingID,
		logger:  opts.Logger.With("component", "monitor"),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	m.metrics.SetMonitorState(int(Connecting))
	return m
}

// State returns the current lifecycle phase.
func (m *Monitor) State() State {
	return State(m.current.Load())
}

// Run subscribes with req and processes updates until the stream ends.
//
// It returns nil when the server closes the stream cleanly, a *SubscribeError
// when the stream cannot be opened or the request cannot be sent, a
// *StreamError on any other receive failure, and ctx.Err() on cancellation.
func (m *Monitor) Run(ctx context.Context, client Subscriber, req geyser.SubscriptionRequest) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer m.setState(Terminated)

	m.setState(Connecting)
	stream, err := client.Subscribe(streamCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Error("failed to open subscribe stream", "error", err)
		return &SubscribeError{Err: err}
	}

	m.setState(Subscribing)
	if err := stream.Send(req.Proto()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Error("failed to send subscription", "error", err)
		return &SubscribeError{Err: err}
	}

	m.setState(Streaming)
	m.logger.Info("subscribed",
		"filters", len(req.Transactions),
		"commitment", int32(req.Commitment),
	)

	for {
		update, err := stream.Recv()
		if err != nil {
			return m.finish(ctx, stream, err)
		}
		m.dispatch(streamCtx, stream, geyser.DecodeUpdate(update))
	}
}

func (m *Monitor) finish(ctx context.Context, stream geyser.Stream, err error) error {
	if ctx.Err() != nil {
		if cerr := stream.CloseSend(); cerr != nil {
			m.logger.Debug("close send failed", "error", cerr)
		}
		m.logger.Info("monitor cancelled")
		return ctx.Err()
	}

	if errors.Is(err, io.EOF) {
		m.logger.Info("stream closed by server")
		return nil
	}

	serr := newStreamError(err)
	m.metrics.RecordStreamError(serr.Code.String())
	m.logger.Error("stream failed", "code", serr.Code.String(), "message", serr.Message)
	return serr
}

func (m *Monitor) dispatch(ctx context.Context, stream geyser.Stream, ev geyser.Event) {
	switch ev := ev.(type) {
	case geyser.TransactionEvent:
		m.handleTransaction(ctx, ev)
	case geyser.PingEvent:
		m.handlePing(stream)
	case geyser.PongEvent:
		m.metrics.RecordPong()
		m.logger.Debug("pong received", "id", ev.ID)
	case geyser.OtherEvent:
		m.metrics.RecordOtherEvent(ev.Kind)
	default:
		m.logger.Error("unhandled event type", "type", fmt.Sprintf("%T", ev))
	}
}

func (m *Monitor) handleTransaction(ctx context.Context, ev geyser.TransactionEvent) {
	info := domain.TransactionInfo{
		Signature: solana.EncodeSignature(ev.Signature),
		Slot:      ev.Slot,
	}

	if err := m.state.Record(ctx, info); err != nil {
		m.logger.Warn("dropping transaction", "slot", ev.Slot, "error", err)
		return
	}
	m.logger.Info("transaction", "signature", info.Signature, "slot", info.Slot)

	receivers := m.bus.Publish(info)

	m.metrics.RecordTransaction(info.Slot, float64(m.now().Unix()))
	m.metrics.UpdateBusReceivers(receivers)
	if n, err := m.state.Count(ctx); err == nil {
		m.metrics.UpdateTracked(n)
	}
}

// handlePing answers a server ping. A failed reply is not fatal: if the
// stream is really broken the next Recv reports it.
func (m *Monitor) handlePing(stream geyser.Stream) {
	err := stream.Send(geyser.PingRequest(m.pingID))
	m.metrics.RecordPing(err)
	if err != nil {
		m.logger.Warn("failed to answer ping", "id", m.pingID, "error", err)
		return
	}
	m.logger.Info("ping answered", "id", m.pingID)
}

func (m *Monitor) setState(s State) {
	prev := State(m.current.Swap(int32(s)))
	m.metrics.SetMonitorState(int(s))
	if prev != s {
		m.logger.Debug("state transition", "from", prev.String(), "to", s.String())
	}
}
