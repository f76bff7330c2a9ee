package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

const (
	HeaderGDPRConsent  = "X-GDPR-Consent"
	ContextGDPRConsent = "gdpr_consent"
)

// GDPRConsent reads the consent header into the context. When required,
// requests without explicit consent are rejected unless the authenticated
// user has already given it.
func GDPRConsent(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		given, _ := strconv.ParseBool(c.GetHeader(HeaderGDPRConsent))
		c.Set(ContextGDPRConsent, given)

		if required && !given {
			if user, ok := CurrentUser(c); !ok || !user.GDPRConsentGiven {
				httputil.RespondWithError(c,
					errors.Validation("GDPR consent is required to process personal data",
						errors.FieldError{Field: HeaderGDPRConsent, Message: "must be true"}), false)
				return
			}
		}

		c.Next()
	}
}

// ConsentGiven reports whether the request carried explicit GDPR consent.
func ConsentGiven(c *gin.Context) bool {
	return c.GetBool(ContextGDPRConsent)
}

// ClinicalData marks responses carrying clinical data as uncacheable.
func ClinicalData() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, private")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
