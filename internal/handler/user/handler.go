package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/handler"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/user"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

type Handler struct {
	service  *user.Service
	bookings user.BookingLister
}

func NewHandler(service *user.Service, bookings user.BookingLister) *Handler {
	return &Handler{service: service, bookings: bookings}
}

// targetUser resolves :userId and checks the caller may act on it. Dentists
// may read any patient's bookings when allowDentist is set.
func targetUser(c *gin.Context, allowDentist bool) (int64, error) {
	id, err := handler.ParamID(c, "userId")
	if err != nil {
		return 0, err
	}
	caller, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, errors.Authentication("authentication required")
	}
	if caller.ID == id || (allowDentist && caller.IsDentist()) {
		return id, nil
	}
	return 0, errors.Authorization("access to another user's data is not allowed")
}

func (h *Handler) ListBookings(c *gin.Context) {
	id, err := targetUser(c, true)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	list, err := h.bookings.ListForUser(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, list)
}

func (h *Handler) UpdateConsent(c *gin.Context) {
	id, err := targetUser(c, false)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	u, err := h.service.UpdateConsent(c.Request.Context(), id, *req.Given)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, u)
}

func (h *Handler) Export(c *gin.Context) {
	id, err := targetUser(c, false)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	export, err := h.service.Export(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="dentalbook-export.json"`)
	httputil.RespondWithSuccess(c, http.StatusOK, export)
}

func (h *Handler) Erase(c *gin.Context) {
	id, err := targetUser(c, false)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if err := h.service.Erase(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "personal data erased"})
}
