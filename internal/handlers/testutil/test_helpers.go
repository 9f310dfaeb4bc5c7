package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/api"
	"github.com/eternalmemory/eternal/internal/app"
	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/cache"
	sharedtestutil "github.com/eternalmemory/eternal/internal/database/testutil"
	"github.com/eternalmemory/eternal/internal/handlers"
	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/internal/storage"
	"github.com/eternalmemory/eternal/pkg/crypto"
)

// DefaultPassword is the password given to users created through CreateUser.
const DefaultPassword = "Password123!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Config  *app.Config
	JWT     *iauth.JWTService
	Cache   *cache.MemoryStore
	Tasks   *services.BackgroundTasks
	Storage *storage.LocalStore
	LLM     *FakeLLM
}

// Option customises NewEnv.
type Option func(*envOptions)

type envOptions struct {
	llm       llm.Completer
	google    handlers.GoogleAuthenticator
	rateLimit bool
	mutate    func(*app.Config)
}

// WithLLM replaces the default disabled language model.
func WithLLM(completer llm.Completer) Option {
	return func(o *envOptions) { o.llm = completer }
}

// WithGoogle enables Google sign-in with the given authenticator.
func WithGoogle(google handlers.GoogleAuthenticator) Option {
	return func(o *envOptions) { o.google = google }
}

// WithRateLimit turns on rate limiting backed by the database cache store.
func WithRateLimit() Option {
	return func(o *envOptions) { o.rateLimit = true }
}

// WithConfig adjusts the configuration before the router is built.
func WithConfig(fn func(*app.Config)) Option {
	return func(o *envOptions) { o.mutate = fn }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{PublicURL: "https://eternal.test"},
		Cache:  app.CacheConfig{MemorialTTL: time.Minute},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Storage: app.StorageConfig{Driver: storage.DriverLocal, BaseURL: "/uploads"},
		Images:  app.ImageConfig{MaxUploadBytes: 2 << 20, MaxDimension: 256, ThumbnailSize: 64},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		RateLimit: app.RateLimitConfig{
			Enabled:      options.rateLimit,
			Requests:     1000,
			Window:       time.Minute,
			AuthRequests: 3,
			AuthWindow:   time.Minute,
			AIRequests:   100,
			AIWindow:     time.Minute,
		},
	}
	if options.mutate != nil {
		options.mutate(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	states, err := iauth.NewOAuthStateStore(db, iauth.DefaultOAuthStateTTL, nil)
	require.NoError(t, err)

	store, err := storage.NewLocalStore(t.TempDir(), cfg.Storage.BaseURL)
	require.NoError(t, err)

	memCache := cache.NewMemoryStore()
	tasks := services.NewBackgroundTasks(5 * time.Second)
	t.Cleanup(func() {
		tasks.Wait()
		_ = memCache.Close()
	})

	fake := &FakeLLM{Err: llm.ErrDisabled}
	completer := options.llm
	if completer == nil {
		completer = fake
	}

	deps := api.Dependencies{
		Config:        cfg,
		DB:            db,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		OAuthStates:   states,
		MemorialCache: memCache,
		Tasks:         tasks,
		Storage:       store,
		LLM:           completer,
	}
	if options.google != nil {
		deps.Google = options.google
	}
	if options.rateLimit {
		deps.RateLimitStore = cache.NewDatabaseStore(db)
	}

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Config:  cfg,
		JWT:     jwtSvc,
		Cache:   memCache,
		Tasks:   tasks,
		Storage: store,
		LLM:     fake,
	}
}

// CreateUser inserts an active user with DefaultPassword and the given role.
func (e *Env) CreateUser(role models.Role) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	user := &models.User{
		Email:    "user-" + uuid.NewString()[:8] + "@example.com",
		Name:     "测试用户",
		Password: hashed,
		Role:     role,
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// AuthResult bundles the JSON response from login and register.
type AuthResult struct {
	Tokens iauth.TokenPair `json:"tokens"`
	User   models.User     `json:"user"`
}

// Login authenticates with email and password and returns the issued token pair.
func (e *Env) Login(email, password string) AuthResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var result AuthResult
	DecodeInto(e.T, w, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	return result
}

// UserToken creates a user with role and returns it with a fresh access token.
func (e *Env) UserToken(role models.Role) (*models.User, string) {
	e.T.Helper()
	user := e.CreateUser(role)
	return user, e.Login(user.Email, DefaultPassword).Tokens.AccessToken
}

// CreateMemorial creates a DRAFT memorial through the API.
func (e *Env) CreateMemorial(token, subjectName string) models.Memorial {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/memorials", map[string]any{
		"subjectName": subjectName,
		"type":        "PERSON",
		"epitaph":     "音容宛在",
	}, token)
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	var payload struct {
		Memorial models.Memorial `json:"memorial"`
	}
	DecodeInto(e.T, w, &payload)
	require.NotEmpty(e.T, payload.Memorial.ID)
	return payload.Memorial
}

// PublishMemorial creates and publishes a public memorial.
func (e *Env) PublishMemorial(token, subjectName string) models.Memorial {
	e.T.Helper()

	memorial := e.CreateMemorial(token, subjectName)
	w := e.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/publish", nil, token)
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var payload struct {
		Memorial models.Memorial `json:"memorial"`
	}
	DecodeInto(e.T, w, &payload)
	require.Equal(e.T, models.StatusPublished, payload.Memorial.Status)
	return payload.Memorial
}

// ViewCount reads the persisted counter, waiting for background increments first.
func (e *Env) ViewCount(memorialID string) int64 {
	e.T.Helper()
	e.Tasks.Wait()

	var memorial models.Memorial
	require.NoError(e.T, e.DB.Select("view_count").First(&memorial, "id = ?", memorialID).Error)
	return memorial.ViewCount
}

// ErrorBody mirrors the error envelope.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// DecodeError parses the error envelope and asserts success is false.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	require.False(t, body.Success)
	return body
}

// DecodeInto unmarshals the response body into dest.
func DecodeInto[T any](t *testing.T, w *httptest.ResponseRecorder, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dest), w.Body.String())
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// Upload posts a multipart form with a single "file" part.
func (e *Env) Upload(path, filename string, content []byte, fields map[string]string, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(e.T, err)
	_, err = part.Write(content)
	require.NoError(e.T, err)
	for key, value := range fields {
		require.NoError(e.T, writer.WriteField(key, value))
	}
	require.NoError(e.T, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "192.0.2.10:40000"

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// FakeLLM is a scripted Completer. A non-nil Err is returned instead of Reply.
type FakeLLM struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Calls    int
	Messages [][]llm.Message
}

// Complete records the conversation and returns the scripted result.
func (f *FakeLLM) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Messages = append(f.Messages, messages)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

// Script sets the next reply and clears any error.
func (f *FakeLLM) Script(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reply = reply
	f.Err = nil
}

// LastConversation returns the most recent conversation sent to the model.
func (f *FakeLLM) LastConversation() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Messages) == 0 {
		return nil
	}
	return f.Messages[len(f.Messages)-1]
}
