package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/api"
	"github.com/eternalmemory/eternal/internal/app"
	"github.com/eternalmemory/eternal/internal/app/maintenance"
	iauth "github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/database"
	"github.com/eternalmemory/eternal/internal/imageproc"
	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/monitoring"
	"github.com/eternalmemory/eternal/internal/monitoring/checks"
	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/internal/storage"
	"github.com/eternalmemory/eternal/pkg/logger"
)

const databaseProbeTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Memorials  *cache.MemoryStore
	Tasks      *services.BackgroundTasks
	SessionSvc *iauth.SessionService
	AuditSvc   *services.AuditService
	Cleaner    *maintenance.Cleaner
	Health     *monitoring.HealthManager
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, caches, services and the HTTP router.
// A generated JWT secret is replaced by the one persisted on an earlier start.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if generated["auth.jwt.secret"] {
		secret, err := database.ResolveJWTSecret(ctx, stack.DB, cfg.Auth.JWT.Secret)
		if err != nil {
			return nil, fmt.Errorf("resolve jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
	}

	if promoted, err := database.BootstrapAdmin(ctx, stack.DB, cfg.Server.AdminEmail); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	} else if promoted {
		log.Info("bootstrap admin promoted", zap.String("email", cfg.Server.AdminEmail))
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Memorials = cache.NewMemoryStore(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithJanitor(cfg.Cache.JanitorInterval),
	)
	stack.Tasks = services.NewBackgroundTasks(cfg.Cache.TaskTimeout)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	states, err := iauth.NewOAuthStateStore(stack.DB, iauth.DefaultOAuthStateTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise oauth state store: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	store, err := storage.New(ctx, cfg.Storage.StorageBackendConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise image storage: %w", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise llm client: %w", err)
	}
	if !llmClient.Enabled() {
		log.Info("llm provider not configured; obituary drafting and digital life are unavailable")
	}

	deps := api.Dependencies{
		Config:         cfg,
		DB:             stack.DB,
		JWT:            jwtSvc,
		Sessions:       stack.SessionSvc,
		OAuthStates:    states,
		MemorialCache:  stack.Memorials,
		RateLimitStore: dbStore,
		Tasks:          stack.Tasks,
		Storage:        store,
		Processor:      imageproc.NewProcessor(cfg.Images.ProcessorOptions()),
		LLM:            llmClient,
	}

	if cfg.Auth.GoogleEnabled() {
		google, err := iauth.NewGoogleProvider(ctx, cfg.Auth.GoogleProviderConfig())
		if err != nil {
			log.Warn("google sign-in disabled", zap.Error(err))
		} else {
			deps.Google = google
		}
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(maintenance.Dependencies{
			Sessions:    stack.SessionSvc,
			OAuthStates: states,
			Cache:       dbStore,
			Audit:       stack.AuditSvc,
		},
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Health = buildHealthManager(stack, store, llmClient)
	deps.Health = stack.Health

	stack.Router, err = api.NewRouter(deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func buildHealthManager(stack *runtimeStack, store storage.Store, client *llm.Client) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager()
	manager.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))

	manager.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))
	manager.RegisterReadiness(checks.LLM(client))
	if local, ok := store.(*storage.LocalStore); ok {
		manager.RegisterReadiness(checks.LocalStorage(local.Dir()))
	}
	if stack.Cleaner != nil {
		manager.RegisterReadiness(checks.Maintenance(stack.Cleaner.Tracker(), 0))
	}
	return manager
}

// Shutdown stops background work and releases resources in reverse start order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Tasks != nil {
		if err := s.Tasks.Shutdown(ctx); err != nil {
			log.Warn("background tasks did not finish", zap.Error(err))
		}
	}

	if s.Memorials != nil {
		_ = s.Memorials.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver:       strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:         strings.TrimSpace(cfg.Database.Path),
		DSN:          strings.TrimSpace(cfg.Database.DSN),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		LogQueries:   cfg.Database.LogQueries,
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
