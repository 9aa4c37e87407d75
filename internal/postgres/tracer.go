// Package postgres builds the shared pgx pool: otel spans from otelpgx, a
// structured log line for failed or slow queries, and a duration observer
// for Prometheus.
package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const modulePrefix = "github.com/linnemanlabs/erqueue/"

// Observer receives the duration of every query. route is the chi route
// pattern of the request that issued it, or "none" outside a request.
type Observer func(operation, route, outcome string, dur time.Duration)

type queryKey struct{}

type queryInfo struct {
	sql    string
	start  time.Time
	caller string
}

// queryTracer wraps another pgx.QueryTracer (otelpgx in production).
type queryTracer struct {
	inner   pgx.QueryTracer
	observe Observer
	slow    time.Duration
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	qi := &queryInfo{sql: data.SQL, start: time.Now(), caller: storeCaller()}
	if qi.caller != "" {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("db.caller", qi.caller))
		}
	}
	return context.WithValue(ctx, queryKey{}, qi)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	qi, ok := ctx.Value(queryKey{}).(*queryInfo)
	if !ok {
		return
	}
	dur := time.Since(qi.start)
	op := operation(data.CommandTag, qi.sql)

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}
	if t.observe != nil {
		t.observe(op, routePattern(ctx), outcome, dur)
	}

	if data.Err == nil && dur < t.slow {
		return
	}

	fields := []any{
		"db.operation.name", op,
		"db.duration", dur.Seconds(),
		"db.statement", qi.sql,
	}
	if qi.caller != "" {
		fields = append(fields, "db.caller", qi.caller)
	}
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields, "db.error_code", pgErr.Code)
		}
		log.FromContext(ctx).Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	log.FromContext(ctx).Warn(ctx, "slow db query", fields...)
}

// operation prefers the command tag and falls back to the first SQL keyword
// when the query failed before producing one.
func operation(tag pgconn.CommandTag, sql string) string {
	if f := strings.Fields(tag.String()); len(f) > 0 {
		return strings.ToUpper(f[0])
	}
	if f := strings.Fields(sql); len(f) > 0 {
		return strings.ToUpper(f[0])
	}
	return "UNKNOWN"
}

func routePattern(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "none"
}

// storeCaller returns the first frame of this module outside this package,
// usually the store method that issued the query.
func storeCaller() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, modulePrefix) &&
			!strings.HasPrefix(fr.Function, modulePrefix+"internal/postgres.") {
			return shortFuncName(fr.Function)
		}
		if !more {
			return ""
		}
	}
}

// shortFuncName keeps the last package element plus the function,
// e.g. "pgstore.(*Store).Append".
func shortFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
