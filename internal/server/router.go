package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/coutupro/internal/access"
	"github.com/MarcoPoloResearchLab/coutupro/internal/alerts"
	"github.com/MarcoPoloResearchLab/coutupro/internal/atelier"
	"github.com/MarcoPoloResearchLab/coutupro/internal/auth"
	"github.com/MarcoPoloResearchLab/coutupro/internal/backup"
	"github.com/MarcoPoloResearchLab/coutupro/internal/dashboard"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "coutupro_user_id"

var (
	errMissingServices   = errors.New("atelier services dependency required")
	errMissingGate       = errors.New("access gate dependency required")
	errMissingTokens     = errors.New("token issuer dependency required")
	errMissingSessions   = errors.New("session validator dependency required")
	errMissingDashboard  = errors.New("dashboard dependency required")
	errMissingBackup     = errors.New("backup dependency required")
	errMissingRealtime   = errors.New("realtime dispatcher dependency required")
	errMissingAlertsTick = errors.New("alert runner dependency required")
)

// SessionGate is the device-bound session store behind the auth routes.
type SessionGate interface {
	Login(ctx context.Context, code, fingerprint string) (access.User, error)
	ValidateSession(ctx context.Context, fingerprint string) (bool, error)
	CurrentUser(ctx context.Context) (access.User, error)
	Logout(ctx context.Context) error
}

// SessionTokenIssuer signs the session cookie.
type SessionTokenIssuer interface {
	IssueSessionToken(ctx context.Context, userID, fingerprint string) (string, time.Time, error)
	TTL() time.Duration
}

// SessionTokenValidator reads the session cookie.
type SessionTokenValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// AlertRunner triggers one synchronous pass of the alert rules.
type AlertRunner interface {
	RunOnce(ctx context.Context) (alerts.RunReport, error)
}

// Dependencies lists everything the HTTP layer needs.
type Dependencies struct {
	Services       *atelier.Services
	Gate           SessionGate
	Tokens         SessionTokenIssuer
	Sessions       SessionTokenValidator
	Dashboard      *dashboard.Aggregator
	Backup         *backup.Service
	Realtime       *RealtimeDispatcher
	Alerts         AlertRunner
	AllowedOrigins []string
	SecureCookies  bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router serving the workshop API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Services == nil:
		return nil, errMissingServices
	case deps.Gate == nil:
		return nil, errMissingGate
	case deps.Tokens == nil:
		return nil, errMissingTokens
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Dashboard == nil:
		return nil, errMissingDashboard
	case deps.Backup == nil:
		return nil, errMissingBackup
	case deps.Realtime == nil:
		return nil, errMissingRealtime
	case deps.Alerts == nil:
		return nil, errMissingAlertsTick
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		services:      deps.Services,
		gate:          deps.Gate,
		tokens:        deps.Tokens,
		sessions:      deps.Sessions,
		dashboard:     deps.Dashboard,
		backup:        deps.Backup,
		realtime:      deps.Realtime,
		alerts:        deps.Alerts,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router.POST("/auth/code", handler.handleCodeLogin)
	router.GET("/auth/session", handler.authorizeRequest, handler.handleSession)
	router.POST("/auth/logout", handler.authorizeRequest, handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	handler.registerWorkshopRoutes(protected)
	handler.registerAlerteRoutes(protected)

	protected.GET("/dashboard", handler.handleDashboard)
	protected.GET("/export", handler.handleExport)
	protected.POST("/import", handler.handleImport)
	protected.POST("/clear", handler.handleClear)

	return router, nil
}

type httpHandler struct {
	services      *atelier.Services
	gate          SessionGate
	tokens        SessionTokenIssuer
	sessions      SessionTokenValidator
	dashboard     *dashboard.Aggregator
	backup        *backup.Service
	realtime      *RealtimeDispatcher
	alerts        AlertRunner
	secureCookies bool
	logger        *zap.Logger
}

// corsMiddleware allows credentialed requests from the configured origins
// only. Without configured origins no CORS headers are sent.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	if len(allowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Content-Type",
			"Accept-Language",
			headerDevicePlatform,
			headerDeviceScreen,
			headerDeviceTimezone,
			headerDeviceRender,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// respondError maps service errors onto HTTP statuses and includes the
// service error code when one is available.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": "internal_error"}
	switch {
	case errors.Is(err, atelier.ErrValidation):
		status = http.StatusBadRequest
		body["error"] = "invalid_request"
		var validation *atelier.ValidationError
		if errors.As(err, &validation) {
			body["violations"] = validation.Violations
		}
	case errors.Is(err, atelier.ErrNotFound):
		status = http.StatusNotFound
		body["error"] = "not_found"
	case errors.Is(err, atelier.ErrConflict):
		status = http.StatusConflict
		body["error"] = "conflict"
	case errors.Is(err, backup.ErrUnsupportedVersion):
		status = http.StatusBadRequest
		body["error"] = "unsupported_version"
	case errors.Is(err, access.ErrCodeRejected), errors.Is(err, access.ErrSessionMismatch), errors.Is(err, access.ErrNoSession):
		status = http.StatusUnauthorized
		body["error"] = "unauthorized"
	}
	var serviceErr *atelier.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *httpHandler) badRequest(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": reason})
}
