package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is append-only. AdditionalData holds the sanitized request body
// plus request metadata.
type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         *int64          `json:"userId,omitempty" db:"user_id"`
	Action         string          `json:"action" db:"action"`
	ResourceType   string          `json:"resourceType" db:"resource_type"`
	ResourceID     *string         `json:"resourceId,omitempty" db:"resource_id"`
	Method         string          `json:"method" db:"method"`
	RequestPath    string          `json:"requestPath" db:"request_path"`
	StatusCode     int             `json:"statusCode" db:"status_code"`
	IPAddress      string          `json:"ipAddress" db:"ip_address"`
	UserAgent      string          `json:"userAgent" db:"user_agent"`
	RequestID      string          `json:"requestId" db:"request_id"`
	AdditionalData json.RawMessage `json:"additionalData,omitempty" db:"additional_data"`
	NHSCompliance  bool            `json:"nhsCompliance" db:"nhs_compliance"`
	AccessReason   *string         `json:"accessReason,omitempty" db:"access_reason"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate         = "create"
	AuditActionRead           = "read"
	AuditActionUpdate         = "update"
	AuditActionApprove        = "approve"
	AuditActionReject         = "reject"
	AuditActionLogin          = "login"
	AuditActionLogout         = "logout"
	AuditActionRegister       = "register"
	AuditActionExport         = "export"
	AuditActionErase          = "erase"
	AuditActionClinicalAccess = "clinical_access"

	// Resource types
	AuditResourceUser        = "user"
	AuditResourceSession     = "session"
	AuditResourceBooking     = "booking"
	AuditResourceAppointment = "appointment"
	AuditResourceConsent     = "gdpr_consent"
	AuditResourcePractice    = "practice"
	AuditResourceDentist     = "dentist"
	AuditResourceUnknown     = "unknown"
)

// AuditFilter narrows audit queries.
type AuditFilter struct {
	UserID       *int64
	ResourceType string
	Limit        int
}
