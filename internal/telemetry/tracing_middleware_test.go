package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// newTestTracerProvider creates a tracer provider with in-memory exporter for testing
func newTestTracerProvider(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestTracingMiddleware_NilProvider(t *testing.T) {
	t.Parallel()

	called := false
	wrapped := TracingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/execute", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestTracingMiddleware_Spans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantName   string
		wantStatus int
		wantCode   codes.Code
	}{
		{
			name:       "routed request is named after the route",
			path:       "/status",
			wantName:   "GET /status",
			wantStatus: http.StatusOK,
			wantCode:   codes.Unset,
		},
		{
			name:       "unrouted request is marked as error",
			path:       "/missing",
			wantName:   "GET " + unknownRoute,
			wantStatus: http.StatusNotFound,
			wantCode:   codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tp := newTestTracerProvider(t)

			var handlerSpan trace.SpanContext
			r := chi.NewRouter()
			r.Use(TracingMiddleware(tp))
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				handlerSpan = trace.SpanContextFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			span := spans[0]
			assert.Equal(t, tt.wantName, span.Name)
			assert.Equal(t, trace.SpanKindServer, span.SpanKind)
			assert.Equal(t, tt.wantCode, span.Status.Code)
			assert.Contains(t, span.Attributes, semconv.HTTPResponseStatusCode(tt.wantStatus))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, span.SpanContext.SpanID(), handlerSpan.SpanID())
			}
		})
	}
}
