package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func attrs(s tracetest.SpanStub) map[string]string {
	out := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		out[string(a.Key)] = a.Value.Emit()
	}
	return out
}

func captureSlowLog(t *testing.T, threshold time.Duration) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetSlowQueryLogging(threshold, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	return &buf
}

func TestTraceQuery_Span(t *testing.T) {
	exporter := setupTestTracer(t)

	const stmt = "SELECT id, email FROM users WHERE email = $1"
	_, end := TraceQuery(context.Background(), "SELECT users by email", stmt)
	end(nil)

	span := onlySpan(t, exporter)
	assert.Equal(t, "db.SELECT users by email", span.Name)
	assert.Equal(t, map[string]string{
		"db.system":    "postgresql",
		"db.operation": "SELECT users by email",
		"db.statement": stmt,
	}, attrs(span))
	assert.Equal(t, codes.Unset, span.Status.Code)
}

func TestTraceQuery_Failure(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "DELETE refresh_tokens", "DELETE FROM refresh_tokens WHERE token_hash = $1 RETURNING id")
	end(errors.New("connection refused"))

	span := onlySpan(t, exporter)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.NotEmpty(t, span.Events, "error event recorded")
}

func TestTraceQuery_ChildOfCaller(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "POST /auth/refresh")
	_, end := TraceQuery(ctx, "DELETE refresh_tokens", "DELETE FROM refresh_tokens")
	end(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestTrace_MissesAreNotErrors(t *testing.T) {
	tests := map[string]struct {
		trace func(context.Context, string, string) (context.Context, func(error))
		err   error
		sys   string
	}{
		"pgx no rows": {TraceQuery, fmt.Errorf("scan: %w", pgx.ErrNoRows), "postgresql"},
		"redis nil":   {TraceRedis, redis.Nil, "redis"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			exporter := setupTestTracer(t)
			_, end := tt.trace(context.Background(), "lookup", "GET")
			end(tt.err)

			span := onlySpan(t, exporter)
			assert.Equal(t, codes.Unset, span.Status.Code)
			assert.Equal(t, tt.sys, attrs(span)["db.system"])
		})
	}
}

func TestSlowQueryLogging(t *testing.T) {
	setupTestTracer(t)

	t.Run("slow", func(t *testing.T) {
		buf := captureSlowLog(t, time.Nanosecond)
		_, end := TraceQuery(context.Background(), "INSERT users", "INSERT INTO users (id) VALUES ($1)")
		end(errors.New("duplicate key value"))

		out := buf.String()
		assert.Contains(t, out, "slow query detected")
		assert.Contains(t, out, "INSERT users")
		assert.Contains(t, out, "INSERT INTO users (id) VALUES ($1)")
		assert.Contains(t, out, "duplicate key value")
	})

	t.Run("fast", func(t *testing.T) {
		buf := captureSlowLog(t, time.Hour)
		_, end := TraceQuery(context.Background(), "SELECT 1", "SELECT 1")
		end(nil)
		assert.Zero(t, buf.Len())
	})

	t.Run("disabled", func(t *testing.T) {
		SetSlowQueryLogging(0, nil)
		_, end := TraceRedis(context.Background(), "GETDEL", "GETDEL")
		assert.NotPanics(t, func() { end(nil) })
	})
}

func TestSetSlowQueryLogging_Concurrent(t *testing.T) {
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	l := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			SetSlowQueryLogging(time.Duration(i)*time.Millisecond, l)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			getSlowQueryConfig()
		}
	}()
	wg.Wait()
}
