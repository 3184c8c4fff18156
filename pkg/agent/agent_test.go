package agent_test

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inlethq/inlet/pkg/agent"
	"github.com/inlethq/inlet/pkg/config"
	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/parser/ndjson"
	"github.com/inlethq/inlet/pkg/record"
	"github.com/inlethq/inlet/pkg/storage/memory"
	"github.com/inlethq/inlet/pkg/testutil"
)

func newTestConfig(addr string) *config.Config {
	cfg := config.New()
	cfg.Endpoint.Address = addr
	cfg.Storage.Driver = "memory"
	cfg.Storage.DB = "test"
	cfg.Storage.CollectionName = "docs"
	cfg.Limits.ShutdownGrace = 2 * time.Second
	return cfg
}

// startAgent starts an ndjson agent on an ephemeral port and registers a
// cleanup shutdown. It returns the agent and the address it listens on.
func startAgent(t *testing.T, cfg *config.Config, store *memory.Store, opts ...agent.Option) (*agent.Agent, string) {
	t.Helper()

	opts = append([]agent.Option{
		agent.WithParser(ndjson.New()),
		agent.WithLogger(testutil.TestLogger(t)),
	}, opts...)

	a := agent.New(cfg, store, opts...)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	return a, a.Addr().String()
}

func TestStartWithoutParser(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	a := agent.New(cfg, memory.New(), agent.WithLogger(testutil.TestLogger(t)))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrNoParser)

	// No socket was opened.
	assert.Nil(t, a.Addr())
	assert.Equal(t, agent.StateCreated, a.State())
}

func TestStartWithoutStore(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	a := agent.New(cfg, nil,
		agent.WithParser(ndjson.New()),
		agent.WithLogger(testutil.TestLogger(t)))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrNoStore)
	assert.Nil(t, a.Addr())
}

func TestStartTwice(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	a, _ := startAgent(t, cfg, memory.New())

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrAlreadyStarted)
	assert.Equal(t, agent.StateRunning, a.State())
}

func TestIngestPlain(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()
	_, addr := startAgent(t, cfg, store)

	payload := []byte(`{"sensor":"alpha","reading":21.5}` + "\n" +
		`{"sensor":"beta","reading":22.0}` + "\n")
	testutil.SendPayload(t, "tcp", addr, payload)

	testutil.AssertEventually(t, func() bool { return store.Len() == 2 },
		2*time.Second, "records not persisted")

	docs := store.Documents()
	assert.Equal(t, "alpha", docs[0].Data["sensor"])
	assert.Equal(t, 21.5, docs[0].Data["reading"])
	assert.Equal(t, "beta", docs[1].Data["sensor"])

	// Provenance stamped by the pipeline.
	assert.NotEmpty(t, docs[0].ID)
	assert.NotEmpty(t, docs[0].Metadata.ConnectionID)
	assert.Equal(t, docs[0].Metadata.ConnectionID, docs[1].Metadata.ConnectionID)
	assert.Equal(t, "ndjson", docs[0].Metadata.Parser)
	assert.Equal(t, cfg.Endpoint.Address, docs[0].Metadata.Source)
	assert.Equal(t, int64(0), docs[0].Metadata.Offset)
	assert.Equal(t, int64(1), docs[1].Metadata.Offset)
}

func TestIngestGzip(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	cfg.Compression = "gzip"
	store := memory.New()
	_, addr := startAgent(t, cfg, store)

	payload := []byte(`{"sensor":"alpha","reading":21.5}` + "\n" +
		`{"sensor":"beta","reading":22.0}` + "\n")
	testutil.SendPayload(t, "tcp", addr, testutil.GzipPayload(t, payload))

	testutil.AssertEventually(t, func() bool { return store.Len() == 2 },
		2*time.Second, "records not persisted")

	// The compressed stream yields the same records as the plain path.
	docs := store.Documents()
	assert.Equal(t, "alpha", docs[0].Data["sensor"])
	assert.Equal(t, 21.5, docs[0].Data["reading"])
	assert.Equal(t, "beta", docs[1].Data["sensor"])
}

func TestUnixSocketEndpoint(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "inlet.sock")
	cfg := newTestConfig(sock)
	store := memory.New()
	a, addr := startAgent(t, cfg, store)

	require.Equal(t, "unix", a.Addr().Network())

	testutil.SendPayload(t, "unix", addr, []byte(`{"sensor":"gamma"}`+"\n"))

	testutil.AssertEventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, "record not persisted over unix socket")
	assert.Equal(t, "gamma", store.Documents()[0].Data["sensor"])
}

func TestReadyCallback(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")

	var readyAddr atomic.Value
	_, _ = startAgent(t, cfg, memory.New(),
		agent.WithReadyFunc(func(addr net.Addr) { readyAddr.Store(addr.String()) }))

	// Start returns only after the ready callback fired.
	got, ok := readyAddr.Load().(string)
	require.True(t, ok, "ready callback not invoked")
	assert.NotEmpty(t, got)
}

func TestPerConnectionOrdering(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()
	_, addr := startAgent(t, cfg, store)

	const perConn = 50

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()

			for seq := 0; seq < perConn; seq++ {
				line := fmt.Sprintf(`{"conn":%q,"seq":%d}`+"\n", name, seq)
				if _, err := conn.Write([]byte(line)); err != nil {
					t.Errorf("write: %v", err)
					return
				}
				if seq%10 == 0 {
					time.Sleep(time.Millisecond) // interleave the two streams
				}
			}
		}(name)
	}
	wg.Wait()

	testutil.AssertEventually(t, func() bool { return store.Len() == 2*perConn },
		5*time.Second, "records not persisted")

	// Each connection's records appear in arrival order.
	next := map[string]float64{"a": 0, "b": 0}
	for _, doc := range store.Documents() {
		name := doc.Data["conn"].(string)
		seq := doc.Data["seq"].(float64)
		require.Equal(t, next[name], seq, "connection %s out of order", name)
		next[name]++
	}
	assert.Equal(t, float64(perConn), next["a"])
	assert.Equal(t, float64(perConn), next["b"])
}

func TestShutdownSequence(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()

	var cleanupCalls atomic.Int32
	a, addr := startAgent(t, cfg, store,
		agent.WithCleanup(func(context.Context) error {
			cleanupCalls.Add(1)
			return nil
		}))

	testutil.SendPayload(t, "tcp", addr, []byte(`{"n":1}`+"\n"))
	testutil.AssertEventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, "record not persisted")

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, agent.StateTerminated, a.State())

	// Listener stopped: new connects are refused.
	_, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)

	// Store disconnected exactly once.
	rec := record.New("test", map[string]interface{}{"n": 2})
	insertErr := store.Insert(context.Background(), rec)
	rec.Release()
	assert.True(t, errors.IsType(insertErr, errors.ErrorTypeStorage))

	// Cleanup hook ran exactly once; a second shutdown is a no-op.
	assert.Equal(t, int32(1), cleanupCalls.Load())
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, int32(1), cleanupCalls.Load())

	// Wait returns immediately once terminated.
	done := make(chan struct{})
	go func() {
		a.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after termination")
	}
}

func TestShutdownSeversActiveConnections(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()
	a, addr := startAgent(t, cfg, store)

	// Open a connection and keep it idle.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	testutil.SendPayload(t, "tcp", addr, []byte(`{"n":1}`+"\n"))
	testutil.AssertEventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, "record not persisted")

	start := time.Now()
	require.NoError(t, a.Shutdown(context.Background()))

	// The idle connection was severed, not waited out.
	assert.Less(t, time.Since(start), cfg.Limits.ShutdownGrace)
	assert.Equal(t, agent.StateTerminated, a.State())
}

func TestShutdownBeforeStart(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()

	var cleanupCalls atomic.Int32
	a := agent.New(cfg, store,
		agent.WithParser(ndjson.New()),
		agent.WithLogger(testutil.TestLogger(t)),
		agent.WithCleanup(func(context.Context) error {
			cleanupCalls.Add(1)
			return nil
		}))

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, agent.StateTerminated, a.State())
	assert.Equal(t, int32(1), cleanupCalls.Load())

	// The agent is single-use: no starting after termination.
	assert.Error(t, a.Start(context.Background()))
}

func TestParseErrorIsolation(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()

	collector := newErrCollector()
	a, addr := startAgent(t, cfg, store,
		agent.WithConnectionErrorFunc(collector.callback))

	// Malformed stream: first record parses, the rest is garbage.
	testutil.SendPayload(t, "tcp", addr, []byte(`{"n":1}`+"\n"+`{nope`+"\n"))

	testutil.AssertEventually(t, func() bool { return collector.count() == 1 },
		2*time.Second, "connection error not reported")
	assert.True(t, errors.IsType(collector.last(), errors.ErrorTypeParse))

	// The record before the error was persisted.
	assert.Equal(t, 1, store.Len())

	// The agent keeps serving other connections.
	assert.Equal(t, agent.StateRunning, a.State())
	testutil.SendPayload(t, "tcp", addr, []byte(`{"n":2}`+"\n"))
	testutil.AssertEventually(t, func() bool { return store.Len() == 2 },
		2*time.Second, "agent stopped serving after connection error")
}

func TestBadCompressedStreamIsolation(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	cfg.Compression = "gzip"
	store := memory.New()

	collector := newErrCollector()
	a, addr := startAgent(t, cfg, store,
		agent.WithConnectionErrorFunc(collector.callback))

	testutil.SendPayload(t, "tcp", addr, []byte("this is not gzip"))

	testutil.AssertEventually(t, func() bool { return collector.count() == 1 },
		2*time.Second, "decompression error not reported")
	assert.True(t, errors.IsType(collector.last(), errors.ErrorTypeDecompression))
	assert.Equal(t, 0, store.Len())

	// A well-formed stream on a fresh connection still works.
	assert.Equal(t, agent.StateRunning, a.State())
	testutil.SendPayload(t, "tcp", addr,
		testutil.GzipPayload(t, []byte(`{"n":1}`+"\n")))
	testutil.AssertEventually(t, func() bool { return store.Len() == 1 },
		2*time.Second, "agent stopped serving after decompression error")
}

func TestStorageErrorIsolation(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := &failingStore{}

	collector := newErrCollector()
	opts := []agent.Option{
		agent.WithParser(ndjson.New()),
		agent.WithLogger(testutil.TestLogger(t)),
		agent.WithConnectionErrorFunc(collector.callback),
	}
	a := agent.New(cfg, store, opts...)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	testutil.SendPayload(t, "tcp", a.Addr().String(), []byte(`{"n":1}`+"\n"+`{"n":2}`+"\n"))

	testutil.AssertEventually(t, func() bool { return collector.count() == 1 },
		2*time.Second, "storage error not reported")
	assert.True(t, errors.IsType(collector.last(), errors.ErrorTypeStorage))

	// The pipeline stopped at the first failed insert.
	assert.Equal(t, int32(1), store.attempts.Load())
	assert.Equal(t, agent.StateRunning, a.State())
}

func TestTransformFilter(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()

	evenOnly := agent.FilterTransform(func(r *record.Record) bool {
		seq, ok := r.Data["seq"].(float64)
		return ok && int(seq)%2 == 0
	})
	_, addr := startAgent(t, cfg, store, agent.WithTransform(evenOnly))

	var payload []byte
	for seq := 0; seq < 6; seq++ {
		payload = append(payload, []byte(fmt.Sprintf(`{"seq":%d}`+"\n", seq))...)
	}
	testutil.SendPayload(t, "tcp", addr, payload)

	testutil.AssertEventually(t, func() bool { return store.Len() == 3 },
		2*time.Second, "filtered records not persisted")

	for i, doc := range store.Documents() {
		assert.Equal(t, float64(i*2), doc.Data["seq"])
	}
}

func TestTransformErrorDropsRecord(t *testing.T) {
	cfg := newTestConfig("127.0.0.1:0")
	store := memory.New()

	rejectMarked := func(_ context.Context, r *record.Record) (*record.Record, error) {
		if _, marked := r.Data["reject"]; marked {
			return nil, errors.New(errors.ErrorTypeTransform, "marked for rejection")
		}
		return r, nil
	}
	_, addr := startAgent(t, cfg, store, agent.WithTransform(rejectMarked))

	payload := []byte(`{"n":1}` + "\n" + `{"n":2,"reject":true}` + "\n" + `{"n":3}` + "\n")
	testutil.SendPayload(t, "tcp", addr, payload)

	// The failing record is dropped; the pipeline continues.
	testutil.AssertEventually(t, func() bool { return store.Len() == 2 },
		2*time.Second, "records not persisted")

	docs := store.Documents()
	assert.Equal(t, float64(1), docs[0].Data["n"])
	assert.Equal(t, float64(3), docs[1].Data["n"])
}

// errCollector captures connection error callbacks.
type errCollector struct {
	mu   sync.Mutex
	errs []error
}

func newErrCollector() *errCollector {
	return &errCollector{}
}

func (c *errCollector) callback(_ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *errCollector) last() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs[len(c.errs)-1]
}

// failingStore rejects every insert with a storage error.
type failingStore struct {
	attempts atomic.Int32
}

func (s *failingStore) Insert(context.Context, *record.Record) error {
	s.attempts.Add(1)
	return errors.New(errors.ErrorTypeStorage, "disk full")
}

func (s *failingStore) Disconnect(context.Context) error {
	return nil
}
