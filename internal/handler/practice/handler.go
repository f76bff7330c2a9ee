package practice

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/handler"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/practice"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

type Handler struct {
	service *practice.Service
}

func NewHandler(service *practice.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListPractices(c *gin.Context) {
	practices, err := h.service.List(c.Request.Context(), c.Query("connectionTag"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, practices)
}

func (h *Handler) GetPractice(c *gin.Context) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, p)
}

func (h *Handler) CreatePractice(c *gin.Context) {
	var req model.CreatePracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	p, err := h.service.Create(c.Request.Context(), user.ID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, p)
}

func (h *Handler) AddDentist(c *gin.Context) {
	practiceID, err := handler.ParamID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.CreateDentistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	d, err := h.service.AddDentist(c.Request.Context(), user.ID, practiceID, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, d)
}

func (h *Handler) AddStaff(c *gin.Context) {
	practiceID, err := handler.ParamID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.AddStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	user, _ := middleware.CurrentUser(c)
	if err := h.service.AddStaff(c.Request.Context(), user.ID, practiceID, req.UserID); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "staff member added"})
}
