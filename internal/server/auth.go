package server

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/lumina/internal/runtime"
	"github.com/mohammad-safakhou/lumina/internal/store"
)

type AuthHandler struct {
	Store        *store.Store
	Secret       []byte
	TTL          time.Duration
	SecureCookie bool
}

func (a *AuthHandler) Register(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.POST("/signup", a.signup)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)
	g.GET("/me", a.me, requireAuth)
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Signup
//
//	@Summary		User signup
//	@Description	Create a new user account and start a session
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthSignupRequest	true	"Signup payload"
//	@Success		201		{object}	AuthResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		409		{object}	HTTPError
//	@Router			/api/auth/signup [post]
func (a *AuthHandler) signup(c echo.Context) error {
	var req AuthSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case !validEmail(req.Email):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid email address")
	case strings.TrimSpace(req.Name) == "":
		return echo.NewHTTPError(http.StatusBadRequest, "Name is required")
	case len(req.Password) < 6:
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at least 6 characters long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	user, err := a.Store.CreateUser(c.Request().Context(), req.Email, strings.TrimSpace(req.Name), string(hash))
	if errors.Is(err, store.ErrDuplicateEmail) {
		return echo.NewHTTPError(http.StatusConflict, "User with this email already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return a.startSession(c, http.StatusCreated, user)
}

// Login
//
//	@Summary		Login
//	@Description	Returns JWT in cookie and body; supports Bearer flows
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AuthLoginRequest	true	"Login payload"
//	@Success		200		{object}	AuthResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		401		{object}	HTTPError
//	@Router			/api/auth/login [post]
func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Email = strings.TrimSpace(req.Email)
	if !validEmail(req.Email) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid email address")
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Password is required")
	}
	user, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	return a.startSession(c, http.StatusOK, user)
}

func (a *AuthHandler) startSession(c echo.Context, status int, user store.User) error {
	ttl := a.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	signed, err := runtime.SignJWT(user.ID, user.Role, a.Secret, ttl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	cookie := new(http.Cookie)
	cookie.Name = runtime.AuthCookie
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	cookie.Secure = a.SecureCookie
	cookie.MaxAge = int(ttl / time.Second)
	c.SetCookie(cookie)
	// also return token for Bearer flows
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return c.JSON(status, AuthResponse{User: user, Token: signed})
}

// Logout
//
//	@Summary	Logout
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	MessageResponse
//	@Router		/api/auth/logout [post]
func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = runtime.AuthCookie
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me
//
//	@Summary	Current user
//	@Tags		auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	MeResponse
//	@Failure	401	{object}	HTTPError
//	@Failure	404	{object}	HTTPError
//	@Router		/api/auth/me [get]
func (a *AuthHandler) me(c echo.Context) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	user, err := a.Store.GetUserByID(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, MeResponse{User: user})
}
