package server

// Route path constants
const (
	// Auth Routes - Account & Session
	RouteAuthRegister = "/auth/register"
	RouteAuthLogin    = "/auth/login"
	RouteAuthRefresh  = "/auth/refresh"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthMe       = "/auth/me"

	// Auth Routes - Two-factor
	RouteTwoFactorEnable  = "/auth/2fa/enable"
	RouteTwoFactorConfirm = "/auth/2fa/confirm"
	RouteTwoFactorDisable = "/auth/2fa/disable"

	// API Routes
	RouteAPITasks = "/api/tasks"

	RouteHealth = "/health"
)

// Transport headers
const (
	HeaderAuthorization = "Authorization"
	HeaderRefreshToken  = "X-Refresh-Token"
	HeaderSessionID     = "X-Session-Id"
)
