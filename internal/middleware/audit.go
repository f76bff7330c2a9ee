package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/audit"
)

const (
	ContextAuditRoute  = "audit_route"
	HeaderAccessReason = "X-Access-Reason"

	// Bodies larger than this are audited without their content.
	maxAuditedBody = 64 << 10
)

// Recorder accepts audit entries without blocking.
type Recorder interface {
	Record(entry *model.AuditLog) bool
}

type AuditMiddleware struct {
	recorder Recorder
}

func NewAuditMiddleware(recorder Recorder) *AuditMiddleware {
	return &AuditMiddleware{recorder: recorder}
}

// Route declares the audit metadata of the route it is attached to.
func Route(info audit.RouteInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextAuditRoute, &info)
		c.Next()
	}
}

// Audit records every mutating request and every request on a route with
// declared metadata once the handler has run. Routes declared clinical
// also get a clinical access entry. Recording never delays or fails the
// response.
func (m *AuditMiddleware) Audit() gin.HandlerFunc {
	return func(c *gin.Context) {
		mutating := isMutating(c.Request.Method)

		var body []byte
		if mutating && c.Request.Body != nil {
			body = captureBody(c.Request)
		}

		c.Next()

		info := routeInfo(c)
		declared := info != nil && info.Action != ""
		if !mutating && !declared {
			return
		}

		req := audit.Request{
			UserID:     CurrentUserID(c),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Writer.Status(),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			RequestID:  c.GetString(ContextRequestID),
			Body:       body,
		}
		if info != nil && info.IDParam != "" {
			req.ResourceID = c.Param(info.IDParam)
		}

		m.recorder.Record(audit.NewEntry(info, req))
		if info != nil && info.Clinical {
			m.recorder.Record(audit.ClinicalAccessEntry(info, req, c.GetHeader(HeaderAccessReason)))
		}
	}
}

func routeInfo(c *gin.Context) *audit.RouteInfo {
	v, ok := c.Get(ContextAuditRoute)
	if !ok {
		return nil
	}
	info, _ := v.(*audit.RouteInfo)
	return info
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// captureBody reads up to maxAuditedBody bytes and puts them back in front
// of the rest of the body so handlers see the request unchanged.
func captureBody(r *http.Request) []byte {
	buf, _ := io.ReadAll(io.LimitReader(r.Body, maxAuditedBody+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if len(buf) > maxAuditedBody {
		return nil
	}
	return buf
}
