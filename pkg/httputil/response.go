package httputil

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dentalbook/marketplace-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status    string              `json:"status"`
	Code      string              `json:"code,omitempty"`
	Message   string              `json:"message,omitempty"`
	Errors    []errors.FieldError `json:"errors,omitempty"`
	Data      interface{}         `json:"data,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Status: "success",
		Data:   data,
	})
}

// Normalize converts any error into an AppError. Binding and validation
// failures become validation errors, unknown errors become internal ones.
func Normalize(err error) *errors.AppError {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		return errors.Validation("request validation failed", ValidationFields(verrs)...)
	}

	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.Validation("request body too large")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &syntaxErr) || stderrors.As(err, &typeErr) {
		return errors.Validation("malformed request body")
	}

	return errors.Internal(err)
}

// RespondWithError sends an error response. Internal error messages are
// replaced with a generic one when exposeInternal is false.
func RespondWithError(c *gin.Context, err error, exposeInternal bool) {
	appErr := Normalize(err)
	status := appErr.Code.HTTPStatus()

	message := appErr.Message
	if status >= http.StatusInternalServerError {
		message = "internal server error"
		if exposeInternal && appErr.Err != nil {
			message = appErr.Err.Error()
		}
	}

	c.AbortWithStatusJSON(status, Response{
		Status:    "error",
		Code:      appErr.Code.String(),
		Message:   message,
		Errors:    appErr.Fields,
		RequestID: c.GetString("request_id"),
	})
}

// ValidationFields converts validator errors into field errors.
func ValidationFields(verrs validator.ValidationErrors) []errors.FieldError {
	fields := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "invalid email format"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "calendar_date":
		return "must be a date in YYYY-MM-DD format"
	case "clock_time":
		return "must be a time in HH:MM format"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
