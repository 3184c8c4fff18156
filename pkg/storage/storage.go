// Package storage defines the document store contract of an Inlet agent.
// The agent owns exactly one Store, opened before the endpoint starts
// accepting and disconnected exactly once during shutdown. Concrete stores
// live in the subpackages mongo and memory.
package storage

import (
	"context"
	"os"
	"strings"

	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/record"
)

// EnvStorageHost is the environment variable consulted when configuration
// names no explicit storage host. Container links publish it in the form
// scheme://host:port; the scheme is stripped before use.
const EnvStorageHost = "MONGO_PORT"

// ErrNoTarget is returned when neither configuration nor environment name
// a document store to connect to.
var ErrNoTarget = errors.New(errors.ErrorTypeConfig,
	"no storage target: set storage.host or "+EnvStorageHost)

// Store persists documents. Implementations must be safe for concurrent
// use; every connection pipeline of an agent inserts through the same
// Store.
type Store interface {
	// Insert persists one document. The document is fully owned by the
	// caller again once Insert returns.
	Insert(ctx context.Context, doc *record.Record) error

	// Disconnect releases the store's resources. It is idempotent;
	// calls after the first return nil.
	Disconnect(ctx context.Context) error
}

// ResolveTarget returns the host:port of the document store. An explicit
// value always wins over the environment; the environment value's scheme
// prefix is stripped. When neither is set, ErrNoTarget is returned.
func ResolveTarget(explicit string) (string, error) {
	if explicit != "" {
		return stripScheme(explicit), nil
	}
	if env := os.Getenv(EnvStorageHost); env != "" {
		return stripScheme(env), nil
	}
	return "", ErrNoTarget
}

func stripScheme(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		return addr[i+3:]
	}
	return addr
}
