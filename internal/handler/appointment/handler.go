package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/handler"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/appointment"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// ListAvailable returns the open slots of a practice, optionally on one day.
func (h *Handler) ListAvailable(c *gin.Context) {
	practiceID, err := handler.ParamID(c, "practiceId")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	slots, err := h.service.ListAvailable(c.Request.Context(), practiceID, c.Query("date"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, slots)
}

func (h *Handler) CreateSlot(c *gin.Context) {
	practiceID, err := handler.ParamID(c, "practiceId")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	slot, err := h.service.CreateSlot(c.Request.Context(), practiceID, user.ID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, slot)
}
