package middleware

import (
	"context"
	"errors"
	"net/http"

	"smallbiznis-challenge/pkg/errutil"
	"smallbiznis-challenge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last handler error as the API error envelope.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		switch {
		case errors.As(last.Err, &be):
		case errors.Is(last.Err, context.DeadlineExceeded):
			be = errutil.BaseError{Code: errutil.StatusTimeout, Message: "request timed out"}
		case errors.Is(last.Err, context.Canceled):
			be = errutil.BaseError{Code: errutil.StatusClientClosedRequest, Message: "request canceled"}
		default:
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error", Err: last.Err}
		}

		status := be.Code.HTTPStatus()
		if status >= http.StatusInternalServerError {
			logger.Ctx(c.Request.Context()).Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}

		c.JSON(status, be.JSON())
	}
}
