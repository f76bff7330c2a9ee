package router

import (
	"github.com/gin-gonic/gin"

	appointmenth "github.com/dentalbook/marketplace-api/internal/handler/appointment"
	authh "github.com/dentalbook/marketplace-api/internal/handler/auth"
	bookingh "github.com/dentalbook/marketplace-api/internal/handler/booking"
	"github.com/dentalbook/marketplace-api/internal/handler/health"
	practiceh "github.com/dentalbook/marketplace-api/internal/handler/practice"
	prometheush "github.com/dentalbook/marketplace-api/internal/handler/prometheus"
	userh "github.com/dentalbook/marketplace-api/internal/handler/user"
	"github.com/dentalbook/marketplace-api/internal/middleware"
	"github.com/dentalbook/marketplace-api/internal/model"
	"github.com/dentalbook/marketplace-api/internal/service/audit"
	"github.com/dentalbook/marketplace-api/pkg/metrics"
)

// Handlers groups the resource handlers mounted by the router.
type Handlers struct {
	Auth        *authh.Handler
	Practice    *practiceh.Handler
	Appointment *appointmenth.Handler
	Booking     *bookingh.Handler
	User        *userh.Handler
	Health      *health.Handler
	Metrics     *prometheush.Handler
}

type RouterConfig struct {
	Production       bool
	CORSConfig       middleware.CORSConfig
	Security         middleware.SecurityConfig
	SizeLimit        middleware.SizeLimitConfig
	Timeout          middleware.TimeoutConfig
	RateLimitEnabled bool
	RateLimit        middleware.RateLimiterConfig
	LoginRateLimit   middleware.RateLimiterConfig
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	handlers     Handlers
	loginLimiter *middleware.RateLimiter
	rateLimited  bool
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	auditMW *middleware.AuditMiddleware,
	handlers Handlers,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:      engine,
		auth:        auth,
		handlers:    handlers,
		rateLimited: config.RateLimitEnabled,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(config.Production),
		middleware.Metrics(m),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.SizeLimit),
		middleware.Timeout(config.Timeout),
	)

	if config.RateLimitEnabled {
		engine.Use(middleware.NewRateLimiter(config.RateLimit, m).RateLimit())
		r.loginLimiter = middleware.NewRateLimiter(config.LoginRateLimit, m)
	}

	engine.Use(auditMW.Audit())

	return r
}

// route declares audit metadata for one route.
func route(action, resourceType, idParam string) gin.HandlerFunc {
	return middleware.Route(audit.RouteInfo{Action: action, ResourceType: resourceType, IDParam: idParam})
}

// clinical declares a route that exposes triage data.
func clinical(action, idParam string) gin.HandlerFunc {
	return middleware.Route(audit.RouteInfo{
		Action:       action,
		ResourceType: model.AuditResourceBooking,
		IDParam:      idParam,
		Clinical:     true,
	})
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.handlers.Metrics.Handler())

	api := r.engine.Group("/api")
	r.handlers.Health.RegisterRoutes(api)

	r.setupAuthRoutes(api)
	r.setupPracticeRoutes(api)
	r.setupBookingRoutes(api)
	r.setupUserRoutes(api)
}

func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	h := r.handlers.Auth
	auth := rg.Group("/auth")
	{
		auth.POST("/register",
			route(model.AuditActionRegister, model.AuditResourceUser, ""),
			middleware.GDPRConsent(false),
			h.Register)

		login := []gin.HandlerFunc{route(model.AuditActionLogin, model.AuditResourceSession, "")}
		if r.loginLimiter != nil {
			login = append(login, r.loginLimiter.RateLimit())
		}
		auth.POST("/login", append(login, h.Login)...)

		auth.POST("/logout",
			route(model.AuditActionLogout, model.AuditResourceSession, ""),
			r.auth.Authenticate(),
			h.Logout)
		auth.GET("/me", r.auth.Authenticate(), h.Me)
	}
}

func (r *Router) setupPracticeRoutes(rg *gin.RouterGroup) {
	dentist := []gin.HandlerFunc{r.auth.Authenticate(), middleware.RequireUserType(model.UserTypeDentist)}
	withDentist := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, dentist...), handlers...)
	}

	ph := r.handlers.Practice
	practices := rg.Group("/practices")
	{
		practices.GET("", ph.ListPractices)
		practices.GET("/:id", ph.GetPractice)
		practices.POST("", withDentist(
			route(model.AuditActionCreate, model.AuditResourcePractice, ""),
			ph.CreatePractice)...)
		practices.POST("/:id/dentists", withDentist(
			route(model.AuditActionCreate, model.AuditResourceDentist, "id"),
			ph.AddDentist)...)
		practices.POST("/:id/staff", withDentist(
			route(model.AuditActionUpdate, model.AuditResourcePractice, "id"),
			ph.AddStaff)...)
	}

	rg.GET("/appointments/:practiceId", r.handlers.Appointment.ListAvailable)

	bh := r.handlers.Booking
	practice := rg.Group("/practice/:practiceId")
	{
		practice.POST("/appointments", withDentist(
			route(model.AuditActionCreate, model.AuditResourceAppointment, "practiceId"),
			r.handlers.Appointment.CreateSlot)...)
		practice.GET("/pending-bookings", withDentist(
			clinical(model.AuditActionRead, "practiceId"),
			middleware.ClinicalData(),
			bh.ListPending)...)
		practice.GET("/approved-bookings", withDentist(
			clinical(model.AuditActionRead, "practiceId"),
			middleware.ClinicalData(),
			bh.ListApproved)...)
	}
}

func (r *Router) setupBookingRoutes(rg *gin.RouterGroup) {
	h := r.handlers.Booking
	bookings := rg.Group("/bookings")
	{
		bookings.POST("",
			clinical(model.AuditActionCreate, ""),
			r.auth.OptionalAuthenticate(),
			middleware.GDPRConsent(true),
			h.SubmitBooking)
		bookings.GET("/:id",
			clinical(model.AuditActionRead, "id"),
			r.auth.Authenticate(),
			middleware.ClinicalData(),
			h.GetBooking)
		bookings.POST("/:id/approve",
			route(model.AuditActionApprove, model.AuditResourceBooking, "id"),
			r.auth.Authenticate(),
			middleware.RequireUserType(model.UserTypeDentist),
			h.ApproveBooking)
		bookings.POST("/:id/reject",
			route(model.AuditActionReject, model.AuditResourceBooking, "id"),
			r.auth.Authenticate(),
			middleware.RequireUserType(model.UserTypeDentist),
			h.RejectBooking)
	}
}

func (r *Router) setupUserRoutes(rg *gin.RouterGroup) {
	h := r.handlers.User
	users := rg.Group("/users/:userId", r.auth.Authenticate())
	{
		users.GET("/bookings", middleware.ClinicalData(), h.ListBookings)
		users.PUT("/gdpr-consent",
			route(model.AuditActionUpdate, model.AuditResourceConsent, "userId"),
			h.UpdateConsent)
		users.GET("/export",
			route(model.AuditActionExport, model.AuditResourceUser, "userId"),
			middleware.ClinicalData(),
			h.Export)
		users.DELETE("",
			route(model.AuditActionErase, model.AuditResourceUser, "userId"),
			h.Erase)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
