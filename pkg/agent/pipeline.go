package agent

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/inlethq/inlet/pkg/compression"
	"github.com/inlethq/inlet/pkg/errors"
	"github.com/inlethq/inlet/pkg/metrics"
	"github.com/inlethq/inlet/pkg/observability"
	"github.com/inlethq/inlet/pkg/record"
)

// runPipeline drains one connection: decompress, parse, transform, persist,
// strictly in arrival order. It returns when the stream ends, the connection
// is severed, or a stage fails. Failures terminate this pipeline only.
func (a *Agent) runPipeline(ctx context.Context, connID string, conn net.Conn) {
	defer a.connWg.Done()

	log := a.logger.With(
		zap.String("connection_id", connID),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	tr := a.tracer
	if tr == nil {
		tr = observability.Tracer()
	}
	ctx, span := tr.Start(ctx, "connection", trace.WithAttributes(
		attribute.String("connection.id", connID),
		attribute.String("net.transport", a.network),
		attribute.String("inlet.parser", a.parser.Name()),
		attribute.String("inlet.compression", string(a.algorithm)),
	))

	var (
		records   int64
		documents int64
		dropped   int64
		start     = time.Now()
	)

	defer func() {
		a.connMu.Lock()
		delete(a.conns, connID)
		a.connMu.Unlock()

		_ = conn.Close()

		if a.metricsEnabled {
			metrics.ConnectionsActive.Dec()
		}

		span.SetAttributes(
			attribute.Int64("inlet.records", records),
			attribute.Int64("inlet.documents", documents),
			attribute.Int64("inlet.dropped", dropped),
		)
		span.End()

		log.Info("connection closed",
			zap.Int64("records", records),
			zap.Int64("documents", documents),
			zap.Int64("dropped", dropped),
			zap.Duration("duration", time.Since(start)))
	}()

	log.Debug("connection accepted")

	var src io.Reader = conn
	if a.cfg.Limits.ReadIdleTimeout > 0 {
		src = deadlineReader{conn: conn, timeout: a.cfg.Limits.ReadIdleTimeout}
	}
	buffered := bufio.NewReaderSize(src, a.cfg.Limits.ReadBufferSize)

	stream, err := compression.NewReader(a.algorithm, buffered)
	if err != nil {
		// A connection severed before the stream header arrives is not a
		// pipeline failure.
		if stderrors.Is(err, net.ErrClosed) {
			log.Debug("connection severed")
			span.SetStatus(codes.Ok, "severed")
			return
		}
		a.reportPipelineError(connID, log, span, err)
		return
	}
	defer stream.Close()

	reader, err := a.parser.NewReader(stream)
	if err != nil {
		a.reportPipelineError(connID, log, span, err)
		return
	}
	defer reader.Close()

	for {
		rec, err := reader.Next()
		if err != nil {
			switch {
			case err == io.EOF:
				span.SetStatus(codes.Ok, "")
			case stderrors.Is(err, net.ErrClosed):
				// Severed locally, normally by shutdown.
				log.Debug("connection severed")
				span.SetStatus(codes.Ok, "severed")
			case stderrors.Is(err, os.ErrDeadlineExceeded):
				log.Info("connection idle, closing")
				span.SetStatus(codes.Ok, "idle")
			default:
				a.reportPipelineError(connID, log, span, err)
			}
			return
		}

		if rec.ID == "" {
			rec.ID = record.GenerateID("rec")
		}
		rec.Metadata.Source = a.cfg.Endpoint.Address
		rec.Metadata.ConnectionID = connID
		rec.Metadata.Parser = a.parser.Name()
		rec.Metadata.Offset = records
		records++

		if a.metricsEnabled {
			metrics.RecordsParsed.WithLabelValues(a.parser.Name()).Inc()
		}

		out, terr := a.transform(ctx, rec)
		if terr != nil {
			dropped++
			log.Warn("transform failed, record dropped",
				zap.Int64("offset", rec.Metadata.Offset),
				zap.Error(terr))
			if a.metricsEnabled {
				metrics.RecordsDropped.WithLabelValues("error").Inc()
			}
			rec.Release()
			continue
		}
		if out == nil {
			dropped++
			if a.metricsEnabled {
				metrics.RecordsDropped.WithLabelValues("filtered").Inc()
			}
			rec.Release()
			continue
		}

		persistStart := time.Now()
		err = a.store.Insert(ctx, out)

		// The pipeline owns both the parsed record and any replacement the
		// transform produced.
		if out != rec {
			out.Release()
		}
		rec.Release()

		if err != nil {
			a.reportPipelineError(connID, log, span, err)
			return
		}
		documents++

		if a.metricsEnabled {
			metrics.PersistLatency.WithLabelValues(a.driver).
				Observe(float64(time.Since(persistStart).Nanoseconds()))
			metrics.DocumentsPersisted.WithLabelValues(a.driver).Inc()
		}
	}
}

// reportPipelineError logs, counts, and signals an error that terminated a
// single connection's pipeline.
func (a *Agent) reportPipelineError(connID string, log *zap.Logger, span trace.Span, err error) {
	stage := stageOf(err)

	log.Error("pipeline terminated",
		zap.String("stage", stage),
		zap.Error(err))

	if a.metricsEnabled {
		metrics.PipelineErrors.WithLabelValues(stage).Inc()
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, stage)

	if a.onConnError != nil {
		a.onConnError(connID, err)
	}
}

// stageOf maps an error category to the pipeline stage label used in logs
// and metrics.
func stageOf(err error) string {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeDecompression:
		return "decompress"
	case errors.ErrorTypeParse:
		return "parse"
	case errors.ErrorTypeTransform:
		return "transform"
	case errors.ErrorTypeStorage:
		return "persist"
	case errors.ErrorTypeConnection:
		return "read"
	default:
		return "read"
	}
}

// deadlineReader arms a read deadline before every read so connections that
// go quiet are eventually reclaimed.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Read(p)
}
