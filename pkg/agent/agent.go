// Package agent implements the core of an Inlet ingestion agent: a
// long-running endpoint that accepts continuous byte streams, turns them
// into records, and persists each record as a document.
//
// # Overview
//
// The agent provides:
//   - TCP and Unix domain socket endpoints, selected by address form
//   - Optional stream decompression (gzip, zstd, snappy, lz4)
//   - Pluggable parsers producing records from the byte stream
//   - A transform hook applied before persistence
//   - Per-record persistence to an injected document store
//   - An ordered, exactly-once shutdown sequence
//
// # Architecture
//
// Each accepted connection runs one independent pipeline:
//
//	socket -> buffered reader -> decompression -> parser -> transform -> store
//
// Parsing is pull-based: the next record is read only after the previous
// one was persisted. A slow store therefore suspends parsing and socket
// reads, and TCP flow control throttles the sender. No stage buffers an
// unbounded number of records.
//
// Connections fail independently. A decompression, parse, or storage error
// terminates only that connection's pipeline; the agent keeps serving.
//
// # Basic Usage
//
//	store, err := mongo.Connect(ctx, mongo.Config{
//	    DB:         "harvest",
//	    Collection: "observations",
//	})
//	if err != nil {
//	    return err
//	}
//
//	a := agent.New(cfg, store, agent.WithParser(ndjson.New()))
//	if err := a.Start(ctx); err != nil {
//	    return err
//	}
//	defer a.Shutdown(context.Background())
//	a.Wait()
package agent

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/inlethq/inlet/pkg/compression"
	"github.com/inlethq/inlet/pkg/config"
	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/logger"
	"github.com/inlethq/inlet/pkg/metrics"
	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/storage"
)

// Startup failure sentinels. Both are reported before any socket is opened.
var (
	// ErrNoParser is returned by Start when no parser was injected.
	ErrNoParser = errors.New(errors.ErrorTypeConfig, "no parser configured")
	// ErrNoStore is returned by Start when no store was injected.
	ErrNoStore = errors.New(errors.ErrorTypeConfig, "no storage configured")
	// ErrAlreadyStarted is returned by Start on any call after the first.
	ErrAlreadyStarted = errors.New(errors.ErrorTypeConfig, "agent already started")
)

// Agent accepts byte streams on one endpoint and persists the records a
// parser extracts from them. Construct with New, then Start. The zero
// value is not usable.
type Agent struct {
	cfg       *config.Config
	store     storage.Store
	parser    parser.Parser
	transform Transform
	cleanup   func(context.Context) error

	onReady     func(addr net.Addr)
	onConnError func(connID string, err error)

	logger         *zap.Logger
	tracer         trace.Tracer
	metricsEnabled bool

	algorithm compression.Algorithm
	network   string
	driver    string

	state    atomic.Int32
	listener net.Listener

	baseCancel context.CancelFunc

	conns  map[string]net.Conn
	connMu sync.Mutex

	acceptWg sync.WaitGroup
	connWg   sync.WaitGroup

	shutdownStarted atomic.Bool
	done            chan struct{}

	startMu sync.Mutex
}

// New creates an agent serving the configured endpoint, persisting to the
// given store. The agent owns the store from here on: Shutdown disconnects
// it. Options inject the parser (required before Start), transform hook,
// callbacks, and logger.
func New(cfg *config.Config, store storage.Store, opts ...Option) *Agent {
	a := &Agent{
		cfg:            cfg,
		store:          store,
		transform:      Identity,
		logger:         logger.Get(),
		metricsEnabled: true,
		driver:         cfg.Storage.Driver,
		conns:          make(map[string]net.Conn),
		done:           make(chan struct{}),
	}
	a.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(a)
	}

	a.logger = a.logger.With(zap.String("endpoint", cfg.Endpoint.Address))
	return a
}

// State returns the agent's lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Addr returns the bound listen address, or nil before Start. With an
// ephemeral port (":0") this reports the port the kernel picked.
func (a *Agent) Addr() net.Addr {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Start validates the injected dependencies, opens the endpoint, and
// begins accepting connections in the background. Dependency failures are
// reported before any socket is opened. A second call returns
// ErrAlreadyStarted.
func (a *Agent) Start(ctx context.Context) error {
	if a.parser == nil {
		return ErrNoParser
	}
	if a.store == nil {
		return ErrNoStore
	}

	algorithm, err := compression.Parse(a.cfg.Compression)
	if err != nil {
		return err
	}

	if !a.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	a.algorithm = algorithm
	a.network = a.cfg.Endpoint.Network()

	ln, err := net.Listen(a.network, a.cfg.Endpoint.Target())
	if err != nil {
		a.state.Store(int32(StateCreated))
		return errors.Wrap(err, errors.ErrorTypeConnection, "listen on endpoint").
			WithDetail("network", a.network).
			WithDetail("address", a.cfg.Endpoint.Target())
	}
	if a.cfg.Limits.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, a.cfg.Limits.MaxConnections)
	}

	baseCtx, baseCancel := context.WithCancel(ctx)

	a.startMu.Lock()
	a.listener = ln
	a.baseCancel = baseCancel
	a.startMu.Unlock()

	a.state.Store(int32(StateRunning))
	a.logger.Info("agent ready",
		zap.String("network", a.network),
		zap.String("address", ln.Addr().String()),
		zap.String("parser", a.parser.Name()),
		zap.String("compression", string(a.algorithm)),
		zap.String("storage_driver", a.driver))

	if a.onReady != nil {
		a.onReady(ln.Addr())
	}

	a.acceptWg.Add(1)
	go a.acceptLoop(baseCtx, ln)

	return nil
}

// acceptLoop accepts connections until the listener closes. One pipeline
// goroutine is started per connection.
func (a *Agent) acceptLoop(ctx context.Context, ln net.Listener) {
	defer a.acceptWg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			if a.State() != StateRunning {
				return
			}
			a.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		connID := uuid.NewString()

		a.connMu.Lock()
		a.conns[connID] = conn
		a.connMu.Unlock()

		if a.metricsEnabled {
			metrics.ConnectionsAccepted.WithLabelValues(a.network).Inc()
			metrics.ConnectionsActive.Inc()
		}

		a.connWg.Add(1)
		go a.runPipeline(ctx, connID, conn)
	}
}

// Shutdown terminates the agent in order: stop the listener, sever active
// connections and wait for their pipelines to drain, disconnect the store,
// run the cleanup hook. Each step is best-effort; a failing step never
// prevents the next, and errors are aggregated in the return value.
//
// Only the first call performs the sequence. Subsequent calls are no-ops
// returning nil, whether or not the first has completed.
func (a *Agent) Shutdown(ctx context.Context) error {
	if !a.shutdownStarted.CompareAndSwap(false, true) {
		return nil
	}

	from := State(a.state.Swap(int32(StateShuttingDown)))
	a.logger.Info("shutting down", zap.String("from_state", from.String()))

	var result error

	// Stop the listener. New connects are refused from here on.
	a.startMu.Lock()
	ln := a.listener
	baseCancel := a.baseCancel
	a.startMu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			result = multierr.Append(result,
				errors.Wrap(err, errors.ErrorTypeConnection, "close listener"))
		}
		a.acceptWg.Wait()
	}

	// Sever connections. Pipelines finish the record in flight and exit at
	// the next record boundary; the grace period bounds the wait.
	a.connMu.Lock()
	open := len(a.conns)
	for _, conn := range a.conns {
		_ = conn.Close()
	}
	a.connMu.Unlock()

	if open > 0 {
		a.logger.Info("severing connections", zap.Int("count", open))
	}

	drained := make(chan struct{})
	go func() {
		a.connWg.Wait()
		close(drained)
	}()

	grace := a.cfg.Limits.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case <-drained:
	case <-time.After(grace):
		result = multierr.Append(result,
			errors.New(errors.ErrorTypeTimeout, "pipelines did not drain within shutdown grace"))
		if baseCancel != nil {
			baseCancel()
		}
		<-drained
	case <-ctx.Done():
		result = multierr.Append(result,
			errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "shutdown interrupted"))
		if baseCancel != nil {
			baseCancel()
		}
		<-drained
	}

	// Disconnect the store. The store contract makes this idempotent.
	if a.store != nil {
		if err := a.store.Disconnect(ctx); err != nil {
			result = multierr.Append(result,
				errors.Wrap(err, errors.ErrorTypeStorage, "disconnect store"))
		}
	}

	// Cleanup hook runs last, once.
	if a.cleanup != nil {
		if err := a.cleanup(ctx); err != nil {
			result = multierr.Append(result,
				errors.Wrap(err, errors.ErrorTypeInternal, "cleanup hook"))
		}
	}

	if baseCancel != nil {
		baseCancel()
	}

	a.state.Store(int32(StateTerminated))
	close(a.done)
	a.logger.Info("agent terminated", zap.Error(result))

	return result
}

// Wait blocks until the agent reaches Terminated.
func (a *Agent) Wait() {
	<-a.done
}
