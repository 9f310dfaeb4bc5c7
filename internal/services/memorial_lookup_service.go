package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
)

const (
	// DefaultMemorialTTL is how long a public memorial snapshot stays cached.
	DefaultMemorialTTL = 60 * time.Second

	defaultLookupQueryTimeout = 10 * time.Second
)

// MemorialLookupService resolves public memorials by slug through a read-through cache.
// Every successful read increments the view counter exactly once and drops the cached
// snapshot, so a cached page is at most one increment behind the database.
type MemorialLookupService struct {
	store        MemorialStore
	cache        cache.Store
	tasks        *BackgroundTasks
	ttl          time.Duration
	queryTimeout time.Duration
	group        singleflight.Group
	log          *zap.Logger
}

// NewMemorialLookupService constructs the lookup service. ttl <= 0 uses DefaultMemorialTTL.
func NewMemorialLookupService(store MemorialStore, memCache cache.Store, tasks *BackgroundTasks, ttl time.Duration) (*MemorialLookupService, error) {
	if store == nil {
		return nil, errors.New("memorial lookup: store is required")
	}
	if memCache == nil {
		return nil, errors.New("memorial lookup: cache is required")
	}
	if tasks == nil {
		return nil, errors.New("memorial lookup: background tasks are required")
	}
	if ttl <= 0 {
		ttl = DefaultMemorialTTL
	}
	return &MemorialLookupService{
		store:        store,
		cache:        memCache,
		tasks:        tasks,
		ttl:          ttl,
		queryTimeout: defaultLookupQueryTimeout,
		log:          logger.WithModule("memorial-lookup"),
	}, nil
}

// NormaliseSlug URL-decodes and trims a slug taken from a request path.
func NormaliseSlug(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return strings.TrimSpace(decoded)
}

// Resolve returns the visible memorial with the given slug. Absent, unpublished and private
// memorials yield ErrMemorialNotFound; any other failure yields ErrMemorialLookupFailed.
func (s *MemorialLookupService) Resolve(ctx context.Context, rawSlug string) (*models.Memorial, error) {
	ctx = ensureContext(ctx)

	slug := NormaliseSlug(rawSlug)
	if slug == "" {
		return nil, ErrMemorialNotFound
	}
	key := cache.MemorialSlugKey(slug)

	snapshot, hit, err := cache.GetJSON[models.Memorial](ctx, s.cache, key)
	if err != nil {
		s.log.Warn("discarding unreadable memorial snapshot", zap.String("slug", slug), zap.Error(err))
	}
	if hit {
		metrics.MemorialLookups.WithLabelValues("cache").Inc()
		id := snapshot.ID
		s.tasks.Go(ctx, "memorial-view", func(taskCtx context.Context) error {
			return s.countView(taskCtx, id, key)
		})
		return snapshot, nil
	}

	id, found, err := s.store.FindPublishedID(ctx, slug)
	if err != nil {
		return nil, s.fail(slug, err)
	}
	if !found {
		metrics.MemorialLookups.WithLabelValues("not_found").Inc()
		return nil, ErrMemorialNotFound
	}

	if err := s.countView(ctx, id, key); err != nil {
		s.log.Warn("view count increment failed", zap.String("memorial_id", id), zap.Error(err))
	}

	result, err, _ := s.group.Do(slug, func() (any, error) {
		return s.load(ctx, slug, key)
	})
	if err != nil {
		if errors.Is(err, ErrMemorialNotFound) {
			metrics.MemorialLookups.WithLabelValues("not_found").Inc()
			return nil, ErrMemorialNotFound
		}
		return nil, s.fail(slug, err)
	}

	metrics.MemorialLookups.WithLabelValues("database").Inc()
	return result.(*models.Memorial), nil
}

// Invalidate drops the cached snapshot for slug. Write paths call it after changing
// anything a public page renders.
func (s *MemorialLookupService) Invalidate(ctx context.Context, slug string) {
	if s == nil {
		return
	}
	s.invalidateKey(ensureContext(ctx), cache.MemorialSlugKey(NormaliseSlug(slug)))
}

// countView increments the counter and then invalidates the snapshot. Invalidation runs
// even when the increment fails.
func (s *MemorialLookupService) countView(ctx context.Context, id, key string) error {
	err := s.store.IncrementViewCount(ctx, id)
	if err != nil {
		metrics.ViewIncrements.WithLabelValues("error").Inc()
	} else {
		metrics.ViewIncrements.WithLabelValues("ok").Inc()
	}
	s.invalidateKey(ctx, key)
	return err
}

// load runs the full query on a context detached from any single caller, since its result
// is shared by every request coalesced onto the same slug.
func (s *MemorialLookupService) load(ctx context.Context, slug, key string) (*models.Memorial, error) {
	queryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queryTimeout)
	defer cancel()

	memorial, found, err := s.store.FindPublishedDetail(queryCtx, slug)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMemorialNotFound
	}

	if err := cache.SetJSON(queryCtx, s.cache, key, memorial, s.ttl); err != nil {
		s.log.Warn("memorial snapshot not cached", zap.String("slug", slug), zap.Error(err))
	}
	return memorial, nil
}

func (s *MemorialLookupService) invalidateKey(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *MemorialLookupService) fail(slug string, err error) error {
	s.log.Error("memorial lookup failed", zap.String("slug", slug), zap.Error(err))
	metrics.MemorialLookups.WithLabelValues("error").Inc()
	return ErrMemorialLookupFailed.WithInternal(fmt.Errorf("resolve %q: %w", slug, err))
}
