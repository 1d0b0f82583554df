package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory tracer provider as the global one for
// the duration of the test.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// useBufferLogger routes the default slog logger into a buffer for one test.
func useBufferLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWithSession(t *testing.T) {
	ctx := context.Background()
	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID(background) = %q", got)
	}
	if WithSession(ctx, "") != ctx {
		t.Error("WithSession with an empty id should return ctx unchanged")
	}
	ctx = WithSession(ctx, "s-1")
	if got := SessionID(ctx); got != "s-1" {
		t.Errorf("SessionID = %q, want s-1", got)
	}
	if got := SessionID(WithSession(ctx, "s-2")); got != "s-2" {
		t.Errorf("inner session = %q, want s-2", got)
	}
}

func TestStartSpan_TagsSession(t *testing.T) {
	exp := useRecorder(t)

	ctx, span := StartSpan(WithSession(context.Background(), "s-42"), "quiz.SubmitAnswer")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace id")
	}
	EndSpan(span, nil)
	_, plain := StartSpan(context.Background(), "quiz.StartSession")
	EndSpan(plain, nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	want := attribute.String(SessionKey, "s-42")
	found := false
	for _, kv := range spans[0].Attributes {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("tagged span attributes = %v, want %v", spans[0].Attributes, want)
	}
	if len(spans[1].Attributes) != 0 {
		t.Errorf("untagged span attributes = %v", spans[1].Attributes)
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := useRecorder(t)

	_, ok := StartSpan(context.Background(), "ok-op")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed-op")
	EndSpan(failed, errors.New("generation failed"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("ok span status = %v, want Unset", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "generation failed" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no error event")
	}
}

func TestLogger(t *testing.T) {
	useRecorder(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background,
			notWant: []string{"trace_id", SessionKey},
		},
		{
			name:    "session only",
			ctx:     func() context.Context { return WithSession(context.Background(), "s-7") },
			want:    []string{"session_id=s-7"},
			notWant: []string{"trace_id"},
		},
		{
			name: "session and span",
			ctx:  func() context.Context {
				ctx, _ := StartSpan(WithSession(context.Background(), "s-8"), "op")
				return ctx
			},
			want: []string{"session_id=s-8", "trace_id=", "span_id="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := useBufferLogger(t)
			Logger(tt.ctx()).Info("answer judged")
			logged := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(logged, w) {
					t.Errorf("log %q missing %q", logged, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(logged, w) {
					t.Errorf("log %q should not contain %q", logged, w)
				}
			}
		})
	}
}
