package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddlewareNamesSpanAfterRoute(t *testing.T) {
	sr := recordSpans(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orbit/{catalog_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/api/orbit/25544", nil)
	Middleware(mux).ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "GET /api/orbit/{catalog_id}" {
		t.Errorf("span name = %q", s.Name())
	}
	if v, ok := attr(s.Attributes(), "http.response.status_code"); !ok || v.AsInt64() != 404 {
		t.Errorf("status attribute = %v", v)
	}
	if s.Status().Code == codes.Error {
		t.Error("4xx should not mark the span as an error")
	}
}

func TestMiddlewareMarksServerErrors(t *testing.T) {
	sr := recordSpans(t)

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/status", nil))

	if s := sr.Ended(); len(s) != 1 || s[0].Status().Code != codes.Error {
		t.Errorf("expected one error span, got %v", s)
	}
}

func TestStartSpanIsChild(t *testing.T) {
	sr := recordSpans(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "parent")
	_, child := StartSpan(ctx, "orbit.compute", attribute.Int("catalog_id", 25544))
	EndSpan(child, errors.New("boom"))
	parent.End()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	c := spans[0]
	if c.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("child span is not parented to the request span")
	}
	if c.Status().Code != codes.Error || len(c.Events()) == 0 {
		t.Error("error was not recorded on the child span")
	}
}

func TestInitDisabled(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	shutdown, err := Init(context.Background(), Config{}, logger)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, logger); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}
