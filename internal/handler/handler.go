// Package handler holds helpers shared by the resource handlers.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/pkg/errors"
)

// ParamID parses a positive integer path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid "+name,
			errors.FieldError{Field: name, Message: "must be a positive integer"})
	}
	return id, nil
}

// Fail hands err to the error middleware and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
