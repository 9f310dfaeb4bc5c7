package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/database/testutil"
	"github.com/eternalmemory/eternal/internal/models"
)

type lookupFixture struct {
	db     *gorm.DB
	store  *flakyMemorialStore
	cache  *cache.MemoryStore
	tasks  *BackgroundTasks
	clock  *testClock
	svc    *MemorialLookupService
	author *models.User
}

func newLookupFixture(t *testing.T) *lookupFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gormStore, err := NewGormMemorialStore(db)
	require.NoError(t, err)

	clock := newTestClock()
	store := &flakyMemorialStore{MemorialStore: gormStore}
	memCache := cache.NewMemoryStore(cache.WithClock(clock.Now))
	tasks := NewBackgroundTasks(time.Second)

	svc, err := NewMemorialLookupService(store, memCache, tasks, 0)
	require.NoError(t, err)

	return &lookupFixture{
		db:     db,
		store:  store,
		cache:  memCache,
		tasks:  tasks,
		clock:  clock,
		svc:    svc,
		author: seedUser(t, db, "author@example.com", models.RoleUser),
	}
}

func TestResolveUnknownSlugIsNotFound(t *testing.T) {
	f := newLookupFixture(t)

	_, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.ErrorIs(t, err, ErrMemorialNotFound)

	_, err = f.svc.Resolve(context.Background(), "   ")
	require.ErrorIs(t, err, ErrMemorialNotFound)
}

func TestResolveHidesUnpublishedAndPrivateMemorials(t *testing.T) {
	f := newLookupFixture(t)

	draft := seedMemorial(t, f.db, f.author, memorialSeed{slug: "draft-page", status: models.StatusDraft, isPublic: true})
	seedMemorial(t, f.db, f.author, memorialSeed{slug: "archived-page", status: models.StatusArchived, isPublic: true})
	seedMemorial(t, f.db, f.author, memorialSeed{slug: "private-page", isPublic: false})

	for _, slug := range []string{"draft-page", "archived-page", "private-page"} {
		_, err := f.svc.Resolve(context.Background(), slug)
		require.ErrorIs(t, err, ErrMemorialNotFound, slug)
	}

	require.Zero(t, reloadMemorial(t, f.db, draft.ID).ViewCount)
}

func TestResolveMissIncrementsOnceAndCaches(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true, viewCount: 5})

	memorial, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)
	require.Equal(t, "jane-doe", memorial.Slug)
	require.EqualValues(t, 6, memorial.ViewCount)
	require.NotNil(t, memorial.Author)
	require.Empty(t, memorial.Author.Email)

	_, cached, err := f.cache.Get(context.Background(), cache.MemorialSlugKey("jane-doe"))
	require.NoError(t, err)
	require.True(t, cached)

	f.tasks.Wait()
	require.EqualValues(t, 6, reloadMemorial(t, f.db, seeded.ID).ViewCount)
	require.EqualValues(t, 1, f.store.increments.Load())
}

func TestResolveHitReturnsSnapshotAndCountsInBackground(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true, viewCount: 5})
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, "jane-doe")
	require.NoError(t, err)

	second, err := f.svc.Resolve(ctx, "jane-doe")
	require.NoError(t, err)
	require.Contains(t, []int64{6, 7}, second.ViewCount)
	require.EqualValues(t, 1, f.store.detailCalls.Load())

	f.tasks.Wait()
	require.EqualValues(t, 7, reloadMemorial(t, f.db, seeded.ID).ViewCount)

	_, cached, err := f.cache.Get(ctx, cache.MemorialSlugKey("jane-doe"))
	require.NoError(t, err)
	require.False(t, cached, "counting a view must invalidate the snapshot")

	third, err := f.svc.Resolve(ctx, "jane-doe")
	require.NoError(t, err)
	require.EqualValues(t, 8, third.ViewCount)
	require.EqualValues(t, 3, f.store.increments.Load())
}

func TestResolveViewCountIsMonotonic(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true})

	var last int64
	for i := 0; i < 6; i++ {
		_, err := f.svc.Resolve(context.Background(), "jane-doe")
		require.NoError(t, err)
		f.tasks.Wait()

		current := reloadMemorial(t, f.db, seeded.ID).ViewCount
		require.Equal(t, last+1, current)
		last = current
	}
}

func TestResolveDecodesEscapedSlug(t *testing.T) {
	f := newLookupFixture(t)
	seedMemorial(t, f.db, f.author, memorialSeed{slug: "张三-1a2b", isPublic: true})

	memorial, err := f.svc.Resolve(context.Background(), url.PathEscape("张三-1a2b"))
	require.NoError(t, err)
	require.Equal(t, "张三-1a2b", memorial.Slug)
}

func TestResolveSnapshotExpiresAfterTTL(t *testing.T) {
	f := newLookupFixture(t)
	seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true})
	key := cache.MemorialSlugKey("jane-doe")

	_, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)

	_, cached, err := f.cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, cached)

	f.clock.Advance(DefaultMemorialTTL)
	_, cached, err = f.cache.Get(context.Background(), key)
	require.NoError(t, err)
	require.False(t, cached)
}

func TestResolveSwallowsIncrementFailure(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true, viewCount: 5})
	f.store.incrementErr = errInjected

	memorial, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)
	require.EqualValues(t, 5, memorial.ViewCount)

	// Hit path: the background failure is logged, never returned.
	_, err = f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)
	f.tasks.Wait()

	require.EqualValues(t, 5, reloadMemorial(t, f.db, seeded.ID).ViewCount)
}

func TestResolveSurfacesStoreFailureAsGenericError(t *testing.T) {
	f := newLookupFixture(t)
	f.store.findIDErr = errInjected

	_, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.ErrorIs(t, err, ErrMemorialLookupFailed)
	require.NotErrorIs(t, err, ErrMemorialNotFound)
}

func TestResolveLoadsOnlyApprovedMessages(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true})

	require.NoError(t, f.db.Create(&models.Message{MemorialID: seeded.ID, GuestName: "a", Content: "approved", Status: models.MessageApproved}).Error)
	require.NoError(t, f.db.Create(&models.Message{MemorialID: seeded.ID, GuestName: "b", Content: "pending", Status: models.MessagePending}).Error)

	memorial, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)
	require.Len(t, memorial.Messages, 1)
	require.Equal(t, "approved", memorial.Messages[0].Content)
}

func TestResolveConcurrentReadersEachCountOnce(t *testing.T) {
	f := newLookupFixture(t)
	seeded := seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true})

	const readers = 8
	errs := make(chan error, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Resolve(context.Background(), "jane-doe")
			errs <- err
		}()
	}
	wg.Wait()
	f.tasks.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, readers, reloadMemorial(t, f.db, seeded.ID).ViewCount)
}

func TestInvalidateDropsSnapshot(t *testing.T) {
	f := newLookupFixture(t)
	seedMemorial(t, f.db, f.author, memorialSeed{slug: "jane-doe", isPublic: true})

	_, err := f.svc.Resolve(context.Background(), "jane-doe")
	require.NoError(t, err)

	f.svc.Invalidate(context.Background(), "jane-doe")

	_, cached, err := f.cache.Get(context.Background(), cache.MemorialSlugKey("jane-doe"))
	require.NoError(t, err)
	require.False(t, cached)
}
