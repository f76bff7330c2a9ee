package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentalbook/marketplace-api/internal/handler"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/auth"
	"github.com/dentalbook/marketplace-api/pkg/errors"
	"github.com/dentalbook/marketplace-api/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}
	if middleware.ConsentGiven(c) {
		req.GDPRConsent = true
	}

	user, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.Set(middleware.ContextUserID, user.ID)

	httputil.RespondWithSuccess(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	// Lets the audit entry name who logged in.
	c.Set(middleware.ContextUserID, resp.User.ID)

	httputil.RespondWithSuccess(c, http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.SessionToken(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		handler.Fail(c, errors.Authentication("authentication required"))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, user)
}
