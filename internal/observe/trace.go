package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/hifz"

// SessionKey is the attribute key for quiz session ids on spans and log
// records.
const SessionKey = "session_id"

type sessionCtxKey struct{}

// Tracer returns the hifz tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithSession tags ctx with a quiz session id. Spans started from the
// returned context carry it as an attribute and [Logger] adds it to every
// record, so collaborators deep in a request need not pass it around.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionID returns the id stored by [WithSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

// StartSpan starts a span named name. The caller must end it, usually with
// [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(SessionKey, id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace id of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the session id and the
// trace and span ids found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if ctx == nil {
		return l
	}
	var attrs []any
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String(SessionKey, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
