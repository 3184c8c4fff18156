package testutil

import (
	"bytes"
	"compress/gzip"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SendPayload dials an agent endpoint, writes the payload, and closes the
// connection. The close signals end of stream to the receiving pipeline.
func SendPayload(t *testing.T, network, addr string, payload []byte) {
	t.Helper()

	conn, err := net.DialTimeout(network, addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(payload)
	require.NoError(t, err)
}

// GzipPayload compresses data with gzip for decompression tests.
func GzipPayload(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}
