package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

// abortWithStatus writes the error envelope for statuses outside the
// application error taxonomy.
func abortWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, httputil.Response{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: c.GetString(ContextRequestID),
	})
}
