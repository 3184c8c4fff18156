// Package mongo implements the document store contract over MongoDB.
// Documents are inserted one by one into a single collection; per-record
// persistence is what lets the agent propagate backpressure and isolate
// write failures to the producing connection.
package mongo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/logger"
	"github.com/inlethq/inlet/pkg/record"
	"github.com/inlethq/inlet/pkg/storage"
)

// Config describes the MongoDB target.
type Config struct {
	// Host is the explicit host:port; when empty the environment is
	// consulted per storage.ResolveTarget.
	Host string
	// DB is the database name
	DB string
	// Collection is the collection documents are inserted into
	Collection string
	// ConnectTimeout bounds the startup connection attempt
	ConnectTimeout time.Duration
}

// Store is a MongoDB-backed document store.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger

	disconnectOnce sync.Once
}

// Connect resolves the target, establishes the client and verifies it with
// a ping. Connection failure here is fatal to agent startup; there is no
// lazy reconnect.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	target, err := storage.ResolveTarget(cfg.Host)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	uri := "mongodb://" + target
	clientOpts := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "connect to document store").
			WithDetail("host", target)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "ping document store").
			WithDetail("host", target)
	}

	log := logger.Get().With(
		zap.String("component", "storage"),
		zap.String("driver", "mongodb"),
		zap.String("host", target),
		zap.String("db", cfg.DB),
		zap.String("collection", cfg.Collection),
	)
	log.Info("document store connected")

	return &Store{
		client:     client,
		collection: client.Database(cfg.DB).Collection(cfg.Collection),
		logger:     log,
	}, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, doc *record.Record) error {
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "insert document")
	}
	return nil
}

// Disconnect implements storage.Store. Only the first call tears the
// client down; later calls return nil.
func (s *Store) Disconnect(ctx context.Context) error {
	var err error
	s.disconnectOnce.Do(func() {
		if derr := s.client.Disconnect(ctx); derr != nil {
			err = errors.Wrap(derr, errors.ErrorTypeStorage, "disconnect document store")
			return
		}
		s.logger.Info("document store disconnected")
	})
	return err
}
