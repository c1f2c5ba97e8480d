package middleware

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/middleware/requestid"
	"github.com/noah-isme/bursary-api/pkg/response"
)

// Recovery turns panics into ErrInternal responses and reports them to Sentry.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			err, ok := recovered.(error)
			if !ok {
				err = fmt.Errorf("%v", recovered)
			}
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(c.Request)
			hub.Scope().SetTag("route", c.FullPath())
			if reqID := requestid.Value(c); reqID != "" {
				hub.Scope().SetTag("request_id", reqID)
			}
			hub.RecoverWithContext(c.Request.Context(), recovered)

			logger.Error("panic recovered",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
				zap.Stack("stack"),
			)
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message))
			c.Abort()
		}()
		c.Next()
	}
}
