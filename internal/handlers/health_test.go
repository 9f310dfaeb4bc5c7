package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
)

func TestHealthEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		require.Contains(t, w.Body.String(), `"success":true`, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Request(http.MethodGet, "/api/memorials", nil, "")

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestRateLimitOnLogin(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRateLimit())
	user := env.CreateUser(models.RoleUser)

	body := map[string]string{"email": user.Email, "password": "wrong-password"}
	for i := 0; i < 3; i++ {
		w := env.Request(http.MethodPost, "/api/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	w := env.Request(http.MethodPost, "/api/auth/login", body, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", testutil.DecodeError(t, w).Code)
}
