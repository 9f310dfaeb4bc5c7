package handlers_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
)

func TestAuthHandler_RegisterLoginRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "Mourner@Example.com",
		"password": "longenough",
		"name":     "张三",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))

	var registered testutil.AuthResult
	testutil.DecodeInto(t, w, &registered)
	require.Equal(t, "mourner@example.com", registered.User.Email)
	require.Equal(t, models.RoleUser, registered.User.Role)
	require.NotEmpty(t, registered.Tokens.AccessToken)

	dup := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "mourner@example.com",
		"password": "longenough",
		"name":     "李四",
	}, "")
	require.Equal(t, http.StatusConflict, dup.Code)
	require.Equal(t, "EMAIL_TAKEN", testutil.DecodeError(t, dup).Code)

	login := env.Login("mourner@example.com", "longenough")

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var mePayload struct {
		User models.User `json:"user"`
	}
	testutil.DecodeInto(t, me, &mePayload)
	require.Equal(t, registered.User.ID, mePayload.User.ID)

	refreshed := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": login.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, refreshed.Code, refreshed.Body.String())
	var refreshPayload struct {
		Tokens iauth.TokenPair `json:"tokens"`
	}
	testutil.DecodeInto(t, refreshed, &refreshPayload)
	require.NotEmpty(t, refreshPayload.Tokens.AccessToken)
	require.NotEqual(t, login.Tokens.RefreshToken, refreshPayload.Tokens.RefreshToken)

	reused := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{
		"refreshToken": login.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, reused.Code)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, refreshPayload.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, logout.Code, logout.Body.String())

	after := env.Request(http.MethodGet, "/api/auth/me", nil, refreshPayload.Tokens.AccessToken)
	require.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
		"name":     "",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := testutil.DecodeError(t, w)
	require.NotEmpty(t, body.Error)
}

func TestAuthHandler_LoginRejectsBadPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(models.RoleUser)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    user.Email,
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeError(t, w).Code)
}

func TestAuthHandler_MeRequiresToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/auth/me", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_GoogleDisabled(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/auth/google", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthHandler_GoogleFlow(t *testing.T) {
	google := &fakeGoogle{identity: &iauth.GoogleIdentity{
		Subject:       "google-sub-1",
		Email:         "griever@gmail.com",
		EmailVerified: true,
		Name:          "Griever",
	}}
	env := testutil.NewEnv(t, testutil.WithGoogle(google))

	begin := env.Request(http.MethodGet, "/api/auth/google", nil, "")
	require.Equal(t, http.StatusOK, begin.Code, begin.Body.String())
	var started struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	testutil.DecodeInto(t, begin, &started)
	require.NotEmpty(t, started.State)
	require.Contains(t, started.URL, "state="+started.State)

	query := url.Values{"state": {started.State}, "code": {"auth-code"}}
	callback := env.Request(http.MethodGet, "/api/auth/google/callback?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusOK, callback.Code, callback.Body.String())

	var result testutil.AuthResult
	testutil.DecodeInto(t, callback, &result)
	require.Equal(t, "griever@gmail.com", result.User.Email)
	require.Equal(t, "auth-code", google.lastCode)
	require.NotEmpty(t, google.lastVerifier)

	replay := env.Request(http.MethodGet, "/api/auth/google/callback?"+query.Encode(), nil, "")
	require.Equal(t, http.StatusUnauthorized, replay.Code, "state is single use")

	denied := env.Request(http.MethodGet, "/api/auth/google/callback?error=access_denied", nil, "")
	require.Equal(t, http.StatusUnauthorized, denied.Code)
}

type fakeGoogle struct {
	identity     *iauth.GoogleIdentity
	lastCode     string
	lastVerifier string
}

func (f *fakeGoogle) AuthURL(state, nonce, challenge string) string {
	return "https://accounts.example.com/auth?" + url.Values{
		"state":          {state},
		"nonce":          {nonce},
		"code_challenge": {challenge},
	}.Encode()
}

func (f *fakeGoogle) Exchange(_ context.Context, code, verifier, _ string) (*iauth.GoogleIdentity, error) {
	f.lastCode = code
	f.lastVerifier = verifier
	return f.identity, nil
}
