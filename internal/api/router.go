package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/app"
	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/handlers"
	"github.com/eternalmemory/eternal/internal/imageproc"
	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/middleware"
	"github.com/eternalmemory/eternal/internal/monitoring"
	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/internal/storage"
)

// Dependencies carries the long-lived components the router wires into services and
// handlers. Optional members may be nil: Google disables Google sign-in, RateLimitStore
// disables rate limiting, Health reports an empty probe set.
type Dependencies struct {
	Config      *app.Config
	DB          *gorm.DB
	JWT         *iauth.JWTService
	Sessions    *iauth.SessionService
	OAuthStates *iauth.OAuthStateStore
	Google      handlers.GoogleAuthenticator

	// MemorialCache holds memorial snapshots and public list pages.
	MemorialCache  cache.Store
	RateLimitStore cache.Store
	Tasks          *services.BackgroundTasks

	Storage   storage.Store
	Processor *imageproc.Processor
	LLM       llm.Completer

	Health *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.JWT == nil:
		return errors.New("jwt service must be provided")
	case d.Sessions == nil:
		return errors.New("session service must be provided")
	case d.OAuthStates == nil:
		return errors.New("oauth state store must be provided")
	case d.MemorialCache == nil:
		return errors.New("memorial cache must be provided")
	case d.Tasks == nil:
		return errors.New("background tasks must be provided")
	case d.Storage == nil:
		return errors.New("image storage must be provided")
	case d.LLM == nil:
		return errors.New("llm client must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	limits := newRateLimits(cfg.RateLimit, deps.RateLimitStore)
	r.Use(limits.global)

	registerHealthRoutes(r, cfg, handlers.NewHealthHandler(deps.Health))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	if local, ok := deps.Storage.(*storage.LocalStore); ok && cfg.Storage.ServesLocalFiles() {
		r.StaticFS("/uploads", http.Dir(local.Dir()))
	}

	requireAuth := middleware.Auth(deps.JWT, deps.Sessions)
	optionalAuth := middleware.OptionalAuth(deps.JWT, deps.Sessions)

	public := r.Group("/api")
	public.Use(optionalAuth)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerAuthRoutes(public, api, limits, handlers.NewAuthHandler(svc.users, deps.Sessions, deps.Google, deps.OAuthStates))

	registerMemorialRoutes(public, api, limits, memorialRouteDeps{
		Memorials: handlers.NewMemorialHandler(svc.memorials, svc.lookup, svc.qr),
		Messages:  handlers.NewMessageHandler(svc.messages),
		Tributes:  handlers.NewTributeHandler(svc.tributes),
		Images:    handlers.NewImageHandler(svc.images),
		AI:        handlers.NewAIHandler(svc.ai),
	})

	registerAdminRoutes(api, adminRouteDeps{
		Admin:    handlers.NewAdminHandler(svc.stats, svc.memorials, svc.users),
		Messages: handlers.NewMessageHandler(svc.messages),
		Audit:    handlers.NewAuditHandler(svc.audit),
	})

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

type serviceSet struct {
	audit     *services.AuditService
	users     *services.UserService
	lookup    *services.MemorialLookupService
	memorials *services.MemorialService
	messages  *services.MessageService
	tributes  *services.TributeService
	images    *services.ImageService
	ai        *services.AIService
	qr        *services.QRService
	stats     *services.StatsService
}

func buildServices(deps Dependencies) (*serviceSet, error) {
	cfg := deps.Config
	set := &serviceSet{}
	var err error

	if set.audit, err = services.NewAuditService(deps.DB); err != nil {
		return nil, err
	}
	if set.users, err = services.NewUserService(deps.DB, set.audit); err != nil {
		return nil, err
	}

	store, err := services.NewGormMemorialStore(deps.DB)
	if err != nil {
		return nil, err
	}
	if set.lookup, err = services.NewMemorialLookupService(store, deps.MemorialCache, deps.Tasks, cfg.Cache.MemorialTTL); err != nil {
		return nil, err
	}
	if set.memorials, err = services.NewMemorialService(deps.DB, set.lookup, deps.MemorialCache, set.audit); err != nil {
		return nil, err
	}
	if set.messages, err = services.NewMessageService(deps.DB, set.memorials, set.lookup, set.audit); err != nil {
		return nil, err
	}
	if set.tributes, err = services.NewTributeService(deps.DB, set.memorials, set.lookup); err != nil {
		return nil, err
	}

	processor := deps.Processor
	if processor == nil {
		processor = imageproc.NewProcessor(cfg.Images.ProcessorOptions())
	}
	if set.images, err = services.NewImageService(deps.DB, set.memorials, set.lookup, deps.Storage, processor); err != nil {
		return nil, err
	}
	if set.ai, err = services.NewAIService(deps.DB, set.memorials, set.lookup, deps.LLM); err != nil {
		return nil, err
	}
	if set.qr, err = services.NewQRService(set.memorials, cfg.Server.PublicURL); err != nil {
		return nil, err
	}
	if set.stats, err = services.NewStatsService(deps.DB, deps.MemorialCache); err != nil {
		return nil, err
	}

	return set, nil
}
