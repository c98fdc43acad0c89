package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "vcv/pkg/errors"
)

func newTracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(TracingMiddleware(), ErrorHandlerMiddleware(zap.New(core).Sugar()))
	r.GET("/rooms/:id", func(c *gin.Context) {
		c.Error(apperrors.NewNotFoundError("room").WithContext("room_id", c.Param("id")))
	})
	r.GET("/boom", func(c *gin.Context) {
		c.Error(http.ErrAbortHandler)
	})
	return r, rec, logs
}

func spanAttrs(s tracesdk.ReadOnlySpan) map[string]string {
	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	return attrs
}

func TestTracingMiddleware_RoomRequest(t *testing.T) {
	r, rec, logs := newTracedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/rooms/r1", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"details":{"room_id":"r1"}`)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	attrs := spanAttrs(ended[0])
	assert.Equal(t, "req-123", attrs["http.request_id"])
	assert.Equal(t, "r1", attrs["room.id"])
	assert.Equal(t, string(apperrors.ErrCodeNotFound), attrs["error.code"])
	assert.Equal(t, "404", attrs["http.status_code"])
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)

	entries := logs.FilterMessage("request rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "r1", fields["room_id"])
	assert.NotEmpty(t, fields["trace_id"])
}

func TestTracingMiddleware_AssignsRequestIDAndFlagsServerErrors(t *testing.T) {
	r, rec, logs := newTracedRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	assert.NotContains(t, w.Body.String(), "details")

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, 1, logs.FilterMessage("unhandled request error").Len())
}
