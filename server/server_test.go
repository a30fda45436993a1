package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/jrsteele09/mindcraft-auth/auth"
	"github.com/jrsteele09/mindcraft-auth/internal/config"
	"github.com/jrsteele09/mindcraft-auth/server"
	fakesessionrepo "github.com/jrsteele09/mindcraft-auth/sessions/repofakes"
	"github.com/jrsteele09/mindcraft-auth/tasks"
	"github.com/jrsteele09/mindcraft-auth/token"
	"github.com/jrsteele09/mindcraft-auth/twofactor"
	"github.com/jrsteele09/mindcraft-auth/users"
	fakeuserrepo "github.com/jrsteele09/mindcraft-auth/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Diamond42"

type fakeTasks struct {
	result *tasks.Result
	err    error
}

func (f *fakeTasks) Submit(_ context.Context, _ int64, _ string, payload json.RawMessage) (*tasks.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &tasks.Result{ID: "task-1", Payload: payload}, nil
}

// testFixture holds all test dependencies
type testFixture struct {
	url      string
	store    *fakesessionrepo.FakeSessionRepo
	users    *fakeuserrepo.FakeUserRepo
	verifier *twofactor.Verifier
}

func setupTestFixture(t *testing.T, modify ...func(*server.Dependencies)) *testFixture {
	t.Helper()
	t.Setenv("TOKEN_SECRET", "test-signing-secret")

	signer, err := token.NewHMACSigner("test-signing-secret")
	require.NoError(t, err)

	f := &testFixture{
		store:    fakesessionrepo.NewFakeSessionRepo(),
		users:    fakeuserrepo.NewFakeUserRepo(),
		verifier: twofactor.NewVerifier(),
	}
	manager, err := auth.NewSessionManager(f.store, token.NewCodec(signer),
		auth.WithTwoFactor(f.verifier, f.users),
		auth.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	deps := server.Dependencies{
		Sessions: manager,
		Users:    f.users,
		Hasher:   users.BcryptHasher{Cost: bcrypt.MinCost},
	}
	for _, m := range modify {
		m(&deps)
	}

	s, err := server.New(config.New(), deps, server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	f.url = srv.URL
	return f
}

type response struct {
	status int
	header http.Header
	body   map[string]any
}

func (f *testFixture) do(t *testing.T, method, path string, body any, headers map[string]string) response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.url+path, &reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header}
	_ = json.NewDecoder(resp.Body).Decode(&out.body)
	return out
}

type session struct {
	userID       int64
	accessToken  string
	refreshToken string
	sessionID    string
}

func sessionFrom(t *testing.T, resp response) session {
	t.Helper()
	user, ok := resp.body["user"].(map[string]any)
	require.True(t, ok, "body: %v", resp.body)
	return session{
		userID:       int64(user["userId"].(float64)),
		accessToken:  resp.body["accessToken"].(string),
		refreshToken: resp.body["refreshToken"].(string),
		sessionID:    resp.body["sessionId"].(string),
	}
}

func (s session) headers() map[string]string {
	return map[string]string{
		server.HeaderAuthorization: "Bearer " + s.accessToken,
		server.HeaderRefreshToken:  s.refreshToken,
		server.HeaderSessionID:     s.sessionID,
	}
}

func (f *testFixture) register(t *testing.T, email string) session {
	t.Helper()
	resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
		server.RegisterRequest{Name: "Ada", Email: email, Password: testPassword}, nil)
	require.Equal(t, http.StatusCreated, resp.status, "body: %v", resp.body)
	return sessionFrom(t, resp)
}

func errorsOf(resp response) []any {
	list, _ := resp.body["errors"].([]any)
	return list
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
		server.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusCreated, resp.status)
	s := sessionFrom(t, resp)
	require.Equal(t, "Bearer "+s.accessToken, resp.header.Get(server.HeaderAuthorization))
	require.Equal(t, s.refreshToken, resp.header.Get(server.HeaderRefreshToken))
	require.Equal(t, s.sessionID, resp.header.Get(server.HeaderSessionID))

	t.Run("duplicate", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
			server.RegisterRequest{Name: "Ada", Email: "ADA@example.com", Password: testPassword}, nil)
		require.Equal(t, http.StatusConflict, resp.status)
		require.Equal(t, []any{"User already exists"}, errorsOf(resp))
	})

	t.Run("weak password", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
			server.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "password"}, nil)
		require.Equal(t, http.StatusBadRequest, resp.status)
		require.Equal(t, "password", resp.body["field"])
	})

	t.Run("password over bcrypt limit", func(t *testing.T) {
		long := testPassword + strings.Repeat("x", 74)
		resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
			server.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: long}, nil)
		require.Equal(t, http.StatusBadRequest, resp.status, "body: %v", resp.body)
		require.Equal(t, "password", resp.body["field"])

		resp = f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: long}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.status)
	})

	t.Run("missing email", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, server.RouteAuthRegister,
			server.RegisterRequest{Name: "Bob", Password: testPassword}, nil)
		require.Equal(t, http.StatusBadRequest, resp.status)
		require.Equal(t, "email", resp.body["field"])
	})
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.register(t, "ada@example.com")

	tests := []struct {
		name   string
		req    server.LoginRequest
		status int
	}{
		{"ok", server.LoginRequest{Email: "ada@example.com", Password: testPassword}, http.StatusOK},
		{"unknown user", server.LoginRequest{Email: "nobody@example.com", Password: testPassword}, http.StatusNotFound},
		{"wrong password", server.LoginRequest{Email: "ada@example.com", Password: "Wrong1234"}, http.StatusUnauthorized},
		{"missing password", server.LoginRequest{Email: "ada@example.com"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, server.RouteAuthLogin, tt.req, nil)
			require.Equal(t, tt.status, resp.status, "body: %v", resp.body)
		})
	}

	resp := f.do(t, http.MethodPost, server.RouteAuthLogin, "not an object", nil)
	require.Equal(t, http.StatusBadRequest, resp.status)
	require.Equal(t, "body", resp.body["field"])
}

func TestRefreshAndLogout(t *testing.T) {
	f := setupTestFixture(t)
	s := f.register(t, "ada@example.com")

	resp := f.do(t, http.MethodPost, server.RouteAuthRefresh, server.SessionRequest{UserID: s.userID}, s.headers())
	require.Equal(t, http.StatusOK, resp.status, "body: %v", resp.body)
	next := s
	next.accessToken = resp.body["accessToken"].(string)
	next.refreshToken = resp.body["refreshToken"].(string)
	require.Equal(t, s.sessionID, resp.body["sessionId"])
	require.NotEqual(t, s.refreshToken, next.refreshToken)

	// replaying the rotated token
	resp = f.do(t, http.MethodPost, server.RouteAuthRefresh, server.SessionRequest{UserID: s.userID}, s.headers())
	require.Equal(t, http.StatusUnauthorized, resp.status)
	require.Equal(t, []any{"Invalid refresh token"}, errorsOf(resp))

	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, next.headers())
	require.Equal(t, http.StatusOK, resp.status)
	require.Equal(t, "ada@example.com", resp.body["email"])

	resp = f.do(t, http.MethodPost, server.RouteAuthLogout, server.SessionRequest{UserID: s.userID}, next.headers())
	require.Equal(t, http.StatusOK, resp.status, "body: %v", resp.body)
	require.Empty(t, f.store.Keys())

	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, next.headers())
	require.Equal(t, http.StatusUnauthorized, resp.status)

	resp = f.do(t, http.MethodPost, server.RouteAuthRefresh, server.SessionRequest{UserID: s.userID}, next.headers())
	require.Equal(t, http.StatusUnauthorized, resp.status)

	resp = f.do(t, http.MethodPost, server.RouteAuthLogout, server.SessionRequest{UserID: s.userID}, next.headers())
	require.Equal(t, http.StatusNotFound, resp.status)
}

func TestRefresh_MissingHeaders(t *testing.T) {
	f := setupTestFixture(t)
	s := f.register(t, "ada@example.com")

	headers := s.headers()
	delete(headers, server.HeaderSessionID)
	resp := f.do(t, http.MethodPost, server.RouteAuthRefresh, server.SessionRequest{UserID: s.userID}, headers)
	require.Equal(t, http.StatusBadRequest, resp.status)
	require.Equal(t, "sessionId", resp.body["field"])
}

func TestMe_RequiresBearer(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.do(t, http.MethodGet, server.RouteAuthMe, nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.status)

	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, map[string]string{server.HeaderAuthorization: "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, resp.status)
	require.Equal(t, []any{"Invalid access token"}, errorsOf(resp))
}

func TestTwoFactorFlow(t *testing.T) {
	f := setupTestFixture(t)
	s := f.register(t, "ada@example.com")

	resp := f.do(t, http.MethodPost, server.RouteTwoFactorEnable, nil, s.headers())
	require.Equal(t, http.StatusOK, resp.status, "body: %v", resp.body)
	secret := resp.body["secret"].(string)
	require.Contains(t, resp.body["otpauthUrl"], "otpauth://totp/")

	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, s.headers())
	require.Equal(t, true, resp.body["twoFactorPending"])

	resp = f.do(t, http.MethodPost, server.RouteTwoFactorConfirm, server.TwoFactorCodeRequest{Code: "abcdef"}, s.headers())
	require.Equal(t, http.StatusUnauthorized, resp.status)

	code, err := f.verifier.Code(secret)
	require.NoError(t, err)
	resp = f.do(t, http.MethodPost, server.RouteTwoFactorConfirm, server.TwoFactorCodeRequest{Code: code}, s.headers())
	require.Equal(t, http.StatusOK, resp.status, "body: %v", resp.body)

	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, s.headers())
	require.Equal(t, true, resp.body["twoFactorEnabled"])
	require.Equal(t, false, resp.body["twoFactorPending"])

	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.status)
	require.Equal(t, []any{"Invalid two-factor code"}, errorsOf(resp))

	code, err = f.verifier.Code(secret)
	require.NoError(t, err)
	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: testPassword, Code: code}, nil)
	require.Equal(t, http.StatusOK, resp.status, "body: %v", resp.body)

	resp = f.do(t, http.MethodPost, server.RouteTwoFactorDisable, nil, s.headers())
	require.Equal(t, http.StatusOK, resp.status)

	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.status)
}

func TestTwoFactor_OtherSessionsKeepCachedProfile(t *testing.T) {
	f := setupTestFixture(t)
	phone := f.register(t, "ada@example.com")
	resp := f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.status)
	laptop := sessionFrom(t, resp)

	resp = f.do(t, http.MethodPost, server.RouteTwoFactorEnable, nil, phone.headers())
	require.Equal(t, http.StatusOK, resp.status)
	code, err := f.verifier.Code(resp.body["secret"].(string))
	require.NoError(t, err)
	resp = f.do(t, http.MethodPost, server.RouteTwoFactorConfirm, server.TwoFactorCodeRequest{Code: code}, phone.headers())
	require.Equal(t, http.StatusOK, resp.status)

	// only the session that made the change has its snapshot refreshed
	resp = f.do(t, http.MethodGet, server.RouteAuthMe, nil, laptop.headers())
	require.Equal(t, http.StatusOK, resp.status)
	require.Equal(t, false, resp.body["twoFactorEnabled"])

	// decisions still read the user record, not the snapshot
	resp = f.do(t, http.MethodPost, server.RouteTwoFactorEnable, nil, laptop.headers())
	require.Equal(t, http.StatusConflict, resp.status)
	resp = f.do(t, http.MethodPost, server.RouteAuthLogin, server.LoginRequest{Email: "ada@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestSubmitTask(t *testing.T) {
	t.Run("no queue", func(t *testing.T) {
		f := setupTestFixture(t)
		s := f.register(t, "ada@example.com")
		resp := f.do(t, http.MethodPost, server.RouteAPITasks, server.TaskRequest{Kind: "score"}, s.headers())
		require.Equal(t, http.StatusServiceUnavailable, resp.status)
	})

	tests := []struct {
		name   string
		tasks  *fakeTasks
		status int
	}{
		{"ok", &fakeTasks{}, http.StatusOK},
		{"timeout", &fakeTasks{err: tasks.ErrTaskTimeout}, http.StatusGatewayTimeout},
		{"full", &fakeTasks{err: tasks.ErrRegistryFull}, http.StatusServiceUnavailable},
		{"failed", &fakeTasks{err: errors.Join(tasks.ErrTaskFailed, errors.New("model unavailable"))}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, func(d *server.Dependencies) { d.Tasks = tt.tasks })
			s := f.register(t, "ada@example.com")

			resp := f.do(t, http.MethodPost, server.RouteAPITasks,
				server.TaskRequest{Kind: "score", Payload: json.RawMessage(`{"moves":3}`)}, s.headers())
			require.Equal(t, tt.status, resp.status, "body: %v", resp.body)
			if tt.status == http.StatusOK {
				require.Equal(t, map[string]any{"moves": float64(3)}, resp.body["payload"])
			}
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		f := setupTestFixture(t, func(d *server.Dependencies) { d.Tasks = &fakeTasks{} })
		resp := f.do(t, http.MethodPost, server.RouteAPITasks, server.TaskRequest{Kind: "score"}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.status)
	})
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)
	resp := f.do(t, http.MethodGet, server.RouteHealth, nil, nil)
	require.Equal(t, http.StatusOK, resp.status)
	require.Equal(t, "ok", resp.body["status"])

	f = setupTestFixture(t, func(d *server.Dependencies) {
		d.Health = map[string]server.HealthCheck{
			"sessions": func(context.Context) error { return nil },
			"database": func(context.Context) error { return errors.New("connection refused") },
		}
	})
	resp = f.do(t, http.MethodGet, server.RouteHealth, nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.status)
	require.Equal(t, "degraded", resp.body["status"])
	require.Equal(t, map[string]any{"sessions": "ok", "database": "unavailable"}, resp.body["checks"])
}

func TestCorsPreflight(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://play.mindcraft.example")
	f := setupTestFixture(t)

	for origin, allowed := range map[string]bool{
		"https://play.mindcraft.example": true,
		"https://evil.example":           false,
	} {
		t.Run(strconv.FormatBool(allowed), func(t *testing.T) {
			resp := f.do(t, http.MethodOptions, server.RouteAuthRefresh, nil, map[string]string{"Origin": origin})
			require.Equal(t, http.StatusOK, resp.status)
			if allowed {
				require.Equal(t, origin, resp.header.Get("Access-Control-Allow-Origin"))
				require.Contains(t, resp.header.Get("Access-Control-Allow-Headers"), server.HeaderRefreshToken)
				return
			}
			require.Empty(t, resp.header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := server.New(config.New(), server.Dependencies{})
	require.Error(t, err)
}
