package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"auth-service/internal/auth"
	userdomain "auth-service/internal/user/domain"
)

const requestTimeout = 10 * time.Second

// AuthHandler exposes the auth service over HTTP.
type AuthHandler struct {
	svc *auth.Service
}

// NewAuthHandler returns a handler backed by svc.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type registerRequest struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Age        int    `json:"age"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type requestOTPRequest struct {
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
}

type verifyOTPRequest struct {
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
	OTP        string `json:"otp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// userResponse is the public view of a user; it never carries the password hash.
type userResponse struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Username      string    `json:"username"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Age           int       `json:"age,omitempty"`
	Address       string    `json:"address,omitempty"`
	City          string    `json:"city,omitempty"`
	Country       string    `json:"country,omitempty"`
	PostalCode    string    `json:"postal_code,omitempty"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func newUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Age:           u.Age,
		Address:       u.Address,
		City:          u.City,
		Country:       u.Country,
		PostalCode:    u.PostalCode,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func newTokenResponse(pair *auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

// Register handles POST /register.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	user, err := h.svc.Register(ctx, auth.RegisterParams{
		Email:      req.Email,
		Phone:      req.Phone,
		Username:   req.Username,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Age:        req.Age,
		Address:    req.Address,
		City:       req.City,
		Country:    req.Country,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, newUserResponse(user))
}

// Login handles POST /login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.svc.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// RequestOTP handles POST /request-otp.
func (h *AuthHandler) RequestOTP(c echo.Context) error {
	var req requestOTPRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.svc.RequestOTP(ctx, req.Identifier, userdomain.Channel(req.Channel)); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "OTP sent successfully"})
}

// VerifyOTP handles POST /verify-otp.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.svc.VerifyOTP(ctx, req.Identifier, userdomain.Channel(req.Channel), req.OTP)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Refresh handles POST /refresh-token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Me handles GET /me. Requires the auth middleware.
func (h *AuthHandler) Me(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid or expired access token")
	}
	return c.JSON(http.StatusOK, newUserResponse(user))
}

// Logout handles POST /logout. Requires the auth middleware. Revokes every
// refresh token of the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	user := currentUser(c)
	if user == nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid or expired access token")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.svc.Logout(ctx, user.ID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

// Health handles GET /health.
func (h *AuthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, echo.Map{"error": msg})
}

// serviceError maps auth sentinel errors to HTTP status codes. Unknown errors
// become 500 without leaking details.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrInvalidOTP):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrInvalidAccessToken):
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUserNotFound):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrDeliveryFailed):
		return errorJSON(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, auth.ErrUnavailable):
		return errorJSON(c, http.StatusServiceUnavailable, "service unavailable")
	default:
		return errorJSON(c, http.StatusInternalServerError, "internal server error")
	}
}
