// Package inlet provides a reusable template for building data-ingestion
// agents: long-running processes that accept continuous byte streams over
// TCP or Unix domain sockets, parse them into records and persist every
// record to a schema-less document store.
//
// An agent is assembled from four pluggable pieces:
//   - A listen endpoint (host:port for TCP, a filesystem path for Unix sockets)
//   - An optional decompression stage (gzip, zstd, snappy, lz4)
//   - A parser that turns the byte stream into records
//   - A document store that persists each record as it arrives
//
// # Architecture
//
// Each accepted connection runs its own pipeline goroutine:
//
//	socket -> buffered reader -> decompression -> parser -> transform -> store
//
// The pipeline pulls: a record is read from the parser only after the
// previous one was persisted. Backpressure therefore propagates from the
// store through the parser and decompressor to the socket, and from there
// to the sender via TCP flow control. A failure in one connection's
// pipeline closes that connection and leaves every other connection and
// the agent itself running.
//
// # Quick Start
//
// Run the bundled binary against a YAML configuration:
//
//	inlet run --config inlet.yaml
//
// Or embed an agent as a library:
//
//	import (
//	    "context"
//
//	    "github.com/inlethq/inlet/pkg/agent"
//	    "github.com/inlethq/inlet/pkg/config"
//	    "github.com/inlethq/inlet/pkg/parser/ndjson"
//	    "github.com/inlethq/inlet/pkg/storage/mongo"
//	)
//
//	cfg := config.New()
//	cfg.Endpoint.Address = "0.0.0.0:9700"
//
//	store, _ := mongo.Connect(context.Background(), mongo.Config{
//	    DB:         "harvest",
//	    Collection: "observations",
//	})
//
//	a := agent.New(cfg, store, agent.WithParser(ndjson.New()))
//	_ = a.Start(context.Background())
//	a.Wait()
//
// # Key Packages
//
//	pkg/agent       - Agent lifecycle, connection handling, the pipeline
//	pkg/parser      - Parser contract, registry and built-in parsers
//	pkg/compression - Streaming decompression stage
//	pkg/storage     - Document store contract and drivers
//	pkg/record      - Pooled record type flowing through the pipeline
//	pkg/config      - YAML configuration with environment substitution
//	pkg/errors      - Structured error handling
//	pkg/logger      - Structured logging
//	pkg/metrics     - Prometheus collectors and the metrics endpoint
//
// # Lifecycle
//
// An agent moves through created, starting, running, shutting down and
// terminated states. SIGINT or SIGTERM (or an explicit Shutdown call)
// triggers the ordered teardown: stop the listener, drain and sever
// connections, disconnect the store, run the cleanup hook. Each step is
// best-effort; a failing step never blocks the following ones.
//
// # Configuration
//
// Agents are configured with a single YAML document:
//
//	endpoint:
//	  address: 0.0.0.0:9700
//	compression: gzip
//	parser: ndjson
//	storage:
//	  host: ${MONGO_HOST}
//	  db: harvest
//	  collection_name: observations
//
// ${VAR_NAME} references are substituted from the environment before
// parsing. When storage.host is empty the MONGO_PORT environment variable
// supplies the target.
package inlet
