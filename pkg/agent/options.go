package agent

import (
	"context"
	"net"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/inlethq/inlet/pkg/parser"
)

// Option is a functional option for Agent construction.
type Option func(*Agent)

// WithParser injects the parser applied to every connection. An agent
// cannot start without one.
func WithParser(p parser.Parser) Option {
	return func(a *Agent) {
		a.parser = p
	}
}

// WithTransform replaces the default identity transform.
func WithTransform(t Transform) Option {
	return func(a *Agent) {
		if t != nil {
			a.transform = t
		}
	}
}

// WithLogger replaces the process-wide logger for this agent.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCleanup registers a hook run once during shutdown, after the store
// has been disconnected.
func WithCleanup(fn func(context.Context) error) Option {
	return func(a *Agent) {
		a.cleanup = fn
	}
}

// WithReadyFunc registers a callback invoked once the agent is accepting
// connections. The callback receives the bound address, which is useful
// with ephemeral ports.
func WithReadyFunc(fn func(addr net.Addr)) Option {
	return func(a *Agent) {
		a.onReady = fn
	}
}

// WithConnectionErrorFunc registers a callback invoked when an error
// terminates a single connection's pipeline. The agent keeps serving.
func WithConnectionErrorFunc(fn func(connID string, err error)) Option {
	return func(a *Agent) {
		a.onConnError = fn
	}
}

// WithMetrics toggles Prometheus collector updates. Enabled by default;
// embedders running many agents in one process may want only some of them
// counted.
func WithMetrics(enabled bool) Option {
	return func(a *Agent) {
		a.metricsEnabled = enabled
	}
}

// WithTracer sets the tracer used for per-connection spans. Defaults to
// the global tracer, which is a no-op unless tracing was initialized.
func WithTracer(tr trace.Tracer) Option {
	return func(a *Agent) {
		if tr != nil {
			a.tracer = tr
		}
	}
}
