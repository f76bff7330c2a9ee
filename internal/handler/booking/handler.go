package booking

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/handler"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/booking"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

type Handler struct {
	service *booking.Service
}

func NewHandler(service *booking.Service) *Handler {
	return &Handler{service: service}
}

// SubmitBooking creates a pending booking. Anonymous callers book as a
// guest; authenticated patients always book for themselves.
func (h *Handler) SubmitBooking(c *gin.Context) {
	var req model.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	caller, ok := middleware.CurrentUser(c)
	if ok && !caller.IsDentist() {
		if req.UserID != nil && *req.UserID != caller.ID {
			handler.Fail(c, errors.Authorization("cannot book on behalf of another user"))
			return
		}
		req.UserID = &caller.ID
	}

	b, err := h.service.Submit(c.Request.Context(), booking.SubmitInput{
		SubmitBookingRequest: req,
		GDPRConsent:          middleware.ConsentGiven(c),
		Caller:               caller,
	})
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, b)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	d, err := h.service.Get(c.Request.Context(), id, user)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, d)
}

func (h *Handler) ApproveBooking(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

func (h *Handler) RejectBooking(c *gin.Context) {
	h.decide(c, h.service.Reject)
}

func (h *Handler) decide(c *gin.Context, op func(ctx context.Context, bookingID, approverID int64) (*model.Booking, error)) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	b, err := op(c.Request.Context(), id, user.ID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, b)
}

func (h *Handler) ListPending(c *gin.Context) {
	h.list(c, h.service.ListPending)
}

func (h *Handler) ListApproved(c *gin.Context) {
	h.list(c, h.service.ListApproved)
}

func (h *Handler) list(c *gin.Context, op func(ctx context.Context, practiceID, callerID int64) ([]*model.BookingDetail, error)) {
	practiceID, err := handler.ParamID(c, "practiceId")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	list, err := op(c.Request.Context(), practiceID, user.ID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, list)
}
