package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"auth-service/internal/auth"
	userdomain "auth-service/internal/user/domain"
)

const userContextKey = "auth.user"

// RequireAuth validates the Bearer access token on each request and stores the
// authenticated user in the Echo context for handlers to read via currentUser.
func RequireAuth(svc *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return errorJSON(c, http.StatusUnauthorized, "missing bearer token")
			}
			token := strings.TrimPrefix(header, "Bearer ")

			user, err := svc.AuthenticateRequest(c.Request().Context(), token)
			if err != nil {
				return serviceError(c, err)
			}
			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// currentUser returns the user stored by RequireAuth, or nil when the route
// was not wrapped by it.
func currentUser(c echo.Context) *userdomain.User {
	user, _ := c.Get(userContextKey).(*userdomain.User)
	return user
}

// RequestLogger logs one line per request: method, path, status, and latency.
// Bodies and tokens are never logged.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info("request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			)
			return err
		}
	}
}
