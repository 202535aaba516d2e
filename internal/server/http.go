// Package server wires the auth service into an HTTP surface.
package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"auth-service/internal/auth"
)

// Server is the HTTP front of the auth service.
type Server struct {
	echo *echo.Echo
	addr string
}

// New builds the Echo instance with all routes and middleware registered.
func New(svc *auth.Service, logger *zap.Logger, addr string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))

	h := NewAuthHandler(svc)

	e.GET("/health", h.Health)
	e.POST("/register", h.Register)
	e.POST("/login", h.Login)
	e.POST("/request-otp", h.RequestOTP)
	e.POST("/verify-otp", h.VerifyOTP)
	e.POST("/refresh-token", h.Refresh)

	authed := e.Group("", RequireAuth(svc))
	authed.GET("/me", h.Me)
	authed.POST("/logout", h.Logout)

	return &Server{echo: e, addr: addr}
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
