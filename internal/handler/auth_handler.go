package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushub/institute-api/internal/middleware"
	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/service"
	appErrors "github.com/campushub/institute-api/pkg/errors"
	"github.com/campushub/institute-api/pkg/response"
)

// RefreshCookieName is the http-only cookie carrying the refresh token.
const RefreshCookieName = "jwt"

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service      *service.AuthService
	cookieMaxAge int
	secureCookie bool
}

// NewAuthHandler creates a new handler. cookieMaxAge is the refresh cookie
// lifetime in seconds; secureCookie should be true outside development.
func NewAuthHandler(svc *service.AuthService, cookieMaxAge int, secureCookie bool) *AuthHandler {
	return &AuthHandler{service: svc, cookieMaxAge: cookieMaxAge, secureCookie: secureCookie}
}

// Register godoc
// @Summary Register a new user
// @Description Create a user account; role defaults to student
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.Created(c, res.Response)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, res.Response, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Rotate the refresh cookie and issue a new access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(RefreshCookieName)
	if err != nil || token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing refresh token"))
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), token)
	if err != nil {
		h.clearRefreshCookie(c)
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, res.Response, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke the refresh token and clear the cookie
// @Tags Authentication
// @Produce json
// @Success 204 "No Content"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := c.Cookie(RefreshCookieName)
	if err != nil || token == "" {
		// No session cookie means nothing to revoke.
		response.NoContent(c)
		return
	}

	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// Me godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.CurrentUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, info, nil)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, token, h.cookieMaxAge, "/", "", h.secureCookie, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", "", h.secureCookie, true)
}
