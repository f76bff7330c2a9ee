package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

// ErrorHandler turns errors attached with c.Error into the JSON error
// envelope. Internal error messages are only exposed outside production.
func ErrorHandler(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lastErr := c.Errors.Last()
		appErr := httputil.Normalize(lastErr.Err)
		status := appErr.Code.HTTPStatus()

		var event *zerolog.Event
		if status >= http.StatusInternalServerError {
			event = log.Error().Err(appErr)
		} else {
			event = log.Debug().Str("error", appErr.Message)
		}
		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Str("code", appErr.Code.String()).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, appErr, !production)
	}
}
