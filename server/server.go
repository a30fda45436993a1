package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/mindcraft-auth/auth"
	"github.com/jrsteele09/mindcraft-auth/internal/config"
	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/jrsteele09/mindcraft-auth/tasks"
	"github.com/jrsteele09/mindcraft-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionManager is the session lifecycle the controllers delegate to.
type SessionManager interface {
	Login(ctx context.Context, userID int64, profile sessions.Profile) (*auth.Tokens, error)
	Refresh(ctx context.Context, userID int64, sessionID, refreshToken string) (*auth.Tokens, error)
	Logout(ctx context.Context, userID int64, sessionID, accessToken, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
	UpdateProfile(ctx context.Context, sessionID string, profile sessions.Profile) error
	EnableTwoFactor(ctx context.Context, userID int64, accountName string) (*auth.TwoFactorSetup, error)
	ConfirmTwoFactor(ctx context.Context, userID int64, code string) error
	DisableTwoFactor(ctx context.Context, userID int64) error
	CheckTwoFactor(ctx context.Context, userID int64, code string) error
}

type TaskSubmitter interface {
	Submit(ctx context.Context, userID int64, kind string, payload json.RawMessage) (*tasks.Result, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds the collaborators of the HTTP layer. Tasks and Health are optional.
type Dependencies struct {
	Sessions SessionManager
	Users    users.Store
	Hasher   users.PasswordHasher
	Tasks    TaskSubmitter
	Health   map[string]HealthCheck
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	router chi.Router
	routes []string
	config config.Config
	deps   Dependencies
	logger zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg config.Config, deps Dependencies, options ...Option) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("[Server New] session manager is required")
	}
	if deps.Users == nil {
		return nil, errors.New("[Server New] user store is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("[Server New] password hasher is required")
	}

	s := &Server{
		env:    cfg.GetEnv(),
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RegisterRoute(method, pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, method+" "+pattern)
	s.router.Method(method, pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		var method, path string
		if _, err := fmt.Sscanf(route, "%s %s", &method, &path); err == nil {
			s.logger.Info().Msg(formatRoute(method, path))
		}
	}
}

func formatRoute(method, path string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return fmt.Sprintf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
