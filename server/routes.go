package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) initRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.LoggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.CorsMiddleware)

	s.RegisterRoute(http.MethodGet, RouteHealth, s.HealthHandler())

	// ACCOUNT & SESSION
	s.RegisterRoute(http.MethodPost, RouteAuthRegister, s.RegisterHandler())
	s.RegisterRoute(http.MethodPost, RouteAuthLogin, s.LoginHandler())
	s.RegisterRoute(http.MethodPost, RouteAuthRefresh, s.RefreshHandler())
	s.RegisterRoute(http.MethodPost, RouteAuthLogout, s.LogoutHandler())
	s.RegisterRoute(http.MethodGet, RouteAuthMe, ChainMiddleware(s.MeHandler(), s.RequireAuth()))

	// TWO-FACTOR
	s.RegisterRoute(http.MethodPost, RouteTwoFactorEnable, ChainMiddleware(s.EnableTwoFactorHandler(), s.RequireAuth()))
	s.RegisterRoute(http.MethodPost, RouteTwoFactorConfirm, ChainMiddleware(s.ConfirmTwoFactorHandler(), s.RequireAuth()))
	s.RegisterRoute(http.MethodPost, RouteTwoFactorDisable, ChainMiddleware(s.DisableTwoFactorHandler(), s.RequireAuth()))

	// API routes
	s.RegisterRoute(http.MethodPost, RouteAPITasks, ChainMiddleware(s.SubmitTaskHandler(), s.RequireAuth()))
}
