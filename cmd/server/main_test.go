package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/mindcraft-auth/internal/config"
	"github.com/jrsteele09/mindcraft-auth/twofactor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setTestEnv(t *testing.T, backend string) {
	t.Helper()
	t.Setenv("TOKEN_SECRET", "test-signing-secret")
	t.Setenv("SESSION_BACKEND", backend)
	t.Setenv("BOLT_PATH", filepath.Join(t.TempDir(), "sessions.db"))
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("ENV", "TEST")
}

func TestNewApp(t *testing.T) {
	for _, backend := range []string{config.SessionBackendMemory, config.SessionBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			setTestEnv(t, backend)

			a, err := newApp(context.Background(), config.New(), zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(a.Close)

			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestNewApp_UnknownBackend(t *testing.T) {
	setTestEnv(t, "cassandra")

	_, err := newApp(context.Background(), config.New(), zerolog.Nop())
	require.ErrorContains(t, err, "cassandra")
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	require.Equal(t, zerolog.WarnLevel, newLogger(config.New()).GetLevel())

	t.Setenv("LOG_LEVEL", "loud")
	require.Equal(t, zerolog.InfoLevel, newLogger(config.New()).GetLevel())
}

func TestTOTPCommands(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"totp", "secret", "--account", "ada@example.com"})
	require.NoError(t, rootCmd.Execute())

	var secret string
	for _, line := range strings.Split(out.String(), "\n") {
		if rest, ok := strings.CutPrefix(line, "secret: "); ok {
			secret = strings.TrimSpace(rest)
		}
	}
	require.NotEmpty(t, secret, "output: %s", out.String())
	require.Contains(t, out.String(), "otpauth://totp/")

	out.Reset()
	rootCmd.SetArgs([]string{"totp", "code", "--secret", secret})
	require.NoError(t, rootCmd.Execute())

	code := strings.TrimSpace(out.String())
	require.Len(t, code, 6)
	require.True(t, twofactor.NewVerifier().Verify(secret, code))
}
