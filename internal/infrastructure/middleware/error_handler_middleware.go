package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vcv/pkg/errors"
	"vcv/pkg/logger"
)

// ErrorHandlerMiddleware renders the last error attached with c.Error as
// {"error":code,"message","details"}. Client errors are logged at debug.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	ctxLog := logger.NewContextLogger(log.Desugar())
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		reqLog := ctxLog.Sugar(c.Request.Context()).With(
			"method", c.Request.Method,
			"route", c.FullPath(),
		)

		appErr := errors.GetAppError(err)
		if appErr == nil {
			reqLog.Errorw("unhandled request error", "error", err)
			appErr = errors.NewInternalError("internal server error")
		} else if appErr.HTTPStatus < http.StatusInternalServerError {
			reqLog.Debugw("request rejected", "code", appErr.Code, "message", appErr.Message)
		} else {
			reqLog.Errorw("request failed", "code", appErr.Code, "message", appErr.Message, "error", appErr.Cause)
		}

		body := gin.H{"error": string(appErr.Code), "message": appErr.Message}
		if len(appErr.Context) > 0 && appErr.HTTPStatus < http.StatusInternalServerError {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware turns a handler panic into a 500 INTERNAL_ERROR reply.
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorw("panic recovered",
					"panic", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
