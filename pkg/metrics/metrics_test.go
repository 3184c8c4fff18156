package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsEndpoint(t *testing.T) {
	// Touch a few collectors so they appear in the scrape output.
	ConnectionsAccepted.WithLabelValues("tcp").Inc()
	RecordsParsed.WithLabelValues("ndjson").Add(3)
	DocumentsPersisted.WithLabelValues("memory").Add(3)
	PersistLatency.WithLabelValues("memory").Observe(float64(50 * time.Microsecond))

	srv := NewServer("127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		"inlet_connections_accepted_total",
		"inlet_records_parsed_total",
		"inlet_documents_persisted_total",
		"inlet_persist_latency_nanoseconds",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing metric %q in output", want)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer("127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("expected OK body, got %q", body)
	}
}

func TestTimer(t *testing.T) {
	timer := NewTimer("test")
	time.Sleep(5 * time.Millisecond)

	if d := timer.Stop(); d < 5*time.Millisecond {
		t.Errorf("expected at least 5ms elapsed, got %v", d)
	}
}
