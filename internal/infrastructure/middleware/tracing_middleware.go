package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"vcv/pkg/errors"
	"vcv/pkg/logger"
	"vcv/pkg/tracing"
)

const RequestIDHeader = "X-Request-ID"

var requestIDKey = attribute.Key("http.request_id")

// TracingMiddleware starts a server span per request, named after the route.
// It echoes or assigns an X-Request-ID and stores it, together with the
// room id of /rooms/:id routes, in the request context for log enrichment.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()
		ctx = logger.WithRequestID(ctx, requestID)

		span.SetAttributes(
			requestIDKey.String(requestID),
			attribute.String("http.client_ip", c.ClientIP()),
			attribute.String("http.user_agent", c.Request.UserAgent()),
		)
		if roomID := c.Param("id"); roomID != "" {
			ctx = logger.WithRoomID(ctx, roomID)
			span.SetAttributes(tracing.RoomIDKey.String(roomID))
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if len(c.Errors) > 0 {
			if appErr := errors.GetAppError(c.Errors.Last().Err); appErr != nil {
				span.SetAttributes(tracing.ErrorCodeKey.String(string(appErr.Code)))
			}
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
