package audit

import (
	"encoding/json"

	"github.com/dentalbook/marketplace-api/internal/model"
)

// RouteInfo is the audit metadata declared on a route.
type RouteInfo struct {
	Action       string
	ResourceType string
	// IDParam names the path parameter holding the resource id.
	IDParam string
	// Clinical routes also produce a clinical access entry.
	Clinical bool
}

// Classify resolves the action and resource type of a request. Requests on
// routes without metadata are recorded under the HTTP method and
// "unknown".
func Classify(info *RouteInfo, method string) (action, resourceType string) {
	if info == nil || info.Action == "" {
		return method, model.AuditResourceUnknown
	}
	resourceType = info.ResourceType
	if resourceType == "" {
		resourceType = model.AuditResourceUnknown
	}
	return info.Action, resourceType
}

// Request is what the HTTP layer knows about an audited call.
type Request struct {
	UserID     *int64
	Method     string
	Path       string
	StatusCode int
	IPAddress  string
	UserAgent  string
	RequestID  string
	ResourceID string
	Body       []byte
}

func (r Request) resourceID() *string {
	if r.ResourceID == "" {
		return nil
	}
	id := r.ResourceID
	return &id
}

// NewEntry builds the audit entry for a request. The body is stored
// sanitized.
func NewEntry(info *RouteInfo, req Request) *model.AuditLog {
	action, resourceType := Classify(info, req.Method)

	data := map[string]interface{}{}
	if body := SanitizeBody(req.Body); body != nil {
		data["body"] = body
	}

	return &model.AuditLog{
		UserID:         req.UserID,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     req.resourceID(),
		Method:         req.Method,
		RequestPath:    req.Path,
		StatusCode:     req.StatusCode,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		RequestID:      req.RequestID,
		AdditionalData: marshal(data),
	}
}

// ClinicalAccessEntry records access to clinical data under NHS data
// security rules. reason comes from the X-Access-Reason header.
func ClinicalAccessEntry(info *RouteInfo, req Request, reason string) *model.AuditLog {
	action, resourceType := Classify(info, req.Method)

	entry := &model.AuditLog{
		UserID:        req.UserID,
		Action:        model.AuditActionClinicalAccess,
		ResourceType:  resourceType,
		ResourceID:    req.resourceID(),
		Method:        req.Method,
		RequestPath:   req.Path,
		StatusCode:    req.StatusCode,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		RequestID:     req.RequestID,
		NHSCompliance: true,
		AdditionalData: marshal(map[string]interface{}{
			"operation":     action,
			"nhsCompliance": true,
		}),
	}
	if reason != "" {
		entry.AccessReason = &reason
	}
	return entry
}

func marshal(v map[string]interface{}) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
