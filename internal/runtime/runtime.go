// Package runtime assembles a complete ingestion process from
// configuration: it connects the configured document store, resolves the
// configured parser from the registry, builds the agent, and supervises
// the optional metrics endpoint and heartbeat monitor alongside it.
//
// Library embedders that construct their own store and parser should use
// pkg/agent directly; the runtime is the configuration-driven path used
// by the inlet binary.
package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inlethq/inlet/pkg/agent"
	"github.com/inlethq/inlet/pkg/config"
	"github.com/inlethq/inlet/pkg/heartbeat"
	"github.com/inlethq/inlet/pkg/logger"
	"github.com/inlethq/inlet/pkg/metrics"
	"github.com/inlethq/inlet/pkg/observability"
	"github.com/inlethq/inlet/pkg/parser"
	"github.com/inlethq/inlet/pkg/storage"
	"github.com/inlethq/inlet/pkg/storage/memory"
	"github.com/inlethq/inlet/pkg/storage/mongo"
)

// Runtime supervises one agent process: the agent itself plus the metrics
// endpoint, heartbeat monitor and tracing exporter it was configured with.
type Runtime struct {
	cfg   *config.Config
	log   *zap.Logger
	agent *agent.Agent
	store storage.Store

	metricsServer *metrics.Server
	monitor       *heartbeat.Monitor
	tracing       bool
}

// New assembles a Runtime from configuration. The document store is
// connected and the configured parser resolved here, so any startup
// failure surfaces before a listen socket is opened.
//
// Extra agent options are applied after the configured ones and may
// override them.
func New(ctx context.Context, cfg *config.Config, opts ...agent.Option) (*Runtime, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.Get().With(zap.String("component", "runtime"))

	if cfg.Observability.EnableTracing {
		obsCfg := observability.DefaultConfig()
		obsCfg.SampleRate = cfg.Observability.TraceSampleRate
		if err := observability.Init(obsCfg); err != nil {
			return nil, err
		}
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	agentOpts := []agent.Option{agent.WithLogger(log)}
	if cfg.Parser != "" {
		p, err := parser.Get(cfg.Parser)
		if err != nil {
			return nil, err
		}
		agentOpts = append(agentOpts, agent.WithParser(p))
	}
	agentOpts = append(agentOpts, opts...)

	r := &Runtime{
		cfg:     cfg,
		log:     log,
		agent:   agent.New(cfg, store, agentOpts...),
		store:   store,
		tracing: cfg.Observability.EnableTracing,
	}

	if cfg.Observability.MetricsAddr != "" {
		r.metricsServer = metrics.NewServer(cfg.Observability.MetricsAddr)
	}
	if cfg.Observability.HeartbeatInterval > 0 {
		r.monitor = heartbeat.New(cfg.Observability.HeartbeatInterval, log)
	}

	return r, nil
}

// newStore builds the configured document store. Validate constrains the
// driver set, so the default arm is the mongodb path.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil
	default:
		return mongo.Connect(ctx, mongo.Config{
			Host:           cfg.Storage.Host,
			DB:             cfg.Storage.DB,
			Collection:     cfg.Storage.CollectionName,
			ConnectTimeout: cfg.Storage.ConnectTimeout,
		})
	}
}

// Agent returns the supervised agent.
func (r *Runtime) Agent() *agent.Agent {
	return r.agent
}

// Store returns the connected document store.
func (r *Runtime) Store() storage.Store {
	return r.store
}

// Run starts the agent and blocks until ctx is canceled or a supervised
// component fails, then shuts everything down in order. The returned
// error is the first failure observed; a clean signal-driven shutdown
// returns nil.
func (r *Runtime) Run(ctx context.Context) error {
	// The agent runs on its own base context: canceling the run context
	// triggers an orderly shutdown that still drains in-flight records,
	// bounded by the configured grace period.
	if err := r.agent.Start(context.Background()); err != nil {
		return err
	}

	if r.monitor != nil {
		r.monitor.Start()
		defer r.monitor.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)

	if r.metricsServer != nil {
		g.Go(func() error {
			r.log.Info("metrics endpoint listening",
				zap.String("addr", r.cfg.Observability.MetricsAddr))
			return r.metricsServer.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return r.metricsServer.Shutdown(shCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return r.shutdown()
	})

	return g.Wait()
}

// shutdown runs the agent's ordered shutdown and then flushes the tracing
// exporter. The context allows for the drain grace plus teardown.
func (r *Runtime) shutdown() error {
	grace := r.cfg.Limits.ShutdownGrace
	shCtx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
	defer cancel()

	err := r.agent.Shutdown(shCtx)

	if r.tracing {
		if terr := observability.Shutdown(shCtx); terr != nil {
			r.log.Warn("tracing shutdown failed", zap.Error(terr))
		}
	}

	return err
}
