package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/coutupro/internal/access"
	"github.com/MarcoPoloResearchLab/coutupro/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerDevicePlatform = "X-Device-Platform"
	headerDeviceScreen   = "X-Device-Screen"
	headerDeviceTimezone = "X-Device-Timezone"
	headerDeviceRender   = "X-Device-Render"
)

// requestFingerprint hashes the device characteristics the client reports.
func requestFingerprint(r *http.Request) string {
	return access.Fingerprint(access.Characteristics{
		UserAgent:        r.UserAgent(),
		Language:         r.Header.Get("Accept-Language"),
		Platform:         r.Header.Get(headerDevicePlatform),
		ScreenResolution: r.Header.Get(headerDeviceScreen),
		Timezone:         r.Header.Get(headerDeviceTimezone),
		RenderSample:     r.Header.Get(headerDeviceRender),
	})
}

type codeLoginPayload struct {
	Code string `json:"code"`
}

type sessionPayload struct {
	Authenticated bool        `json:"authenticated"`
	User          access.User `json:"user"`
}

func (h *httpHandler) handleCodeLogin(c *gin.Context) {
	var request codeLoginPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Code) == "" {
		h.badRequest(c, "invalid_request")
		return
	}

	fingerprint := requestFingerprint(c.Request)
	user, err := h.gate.Login(c.Request.Context(), request.Code, fingerprint)
	if errors.Is(err, access.ErrCodeRejected) {
		h.logger.Info("access code rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "code_rejected"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, _, err := h.tokens.IssueSessionToken(c.Request.Context(), user.ID, fingerprint)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	h.setSessionCookie(c, token, int(h.tokens.TTL().Seconds()))
	c.JSON(http.StatusOK, sessionPayload{Authenticated: true, User: user})
}

func (h *httpHandler) handleSession(c *gin.Context) {
	user, err := h.gate.CurrentUser(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionPayload{Authenticated: true, User: user})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.gate.Logout(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	h.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), value, maxAge, "/", "", h.secureCookies, true)
}

// authorizeRequest admits a request only when its cookie names the current
// user and the presenting device is the bound one. A device mismatch tears
// the session down.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	ok, err := h.gate.ValidateSession(ctx, requestFingerprint(c.Request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_mismatch"})
		return
	}
	current, err := h.gate.CurrentUser(ctx)
	if err != nil || current.ID != claims.UserID {
		h.logger.Warn("session cookie names a stale user", zap.String("user_id", claims.UserID))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}
