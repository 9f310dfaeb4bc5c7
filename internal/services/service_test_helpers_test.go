package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
)

func seedUser(t *testing.T, db *gorm.DB, email string, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Email:    email,
		Name:     email,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type memorialSeed struct {
	slug      string
	status    models.MemorialStatus
	isPublic  bool
	viewCount int64
}

func seedMemorial(t *testing.T, db *gorm.DB, author *models.User, seed memorialSeed) *models.Memorial {
	t.Helper()

	if seed.status == "" {
		seed.status = models.StatusPublished
	}
	memorial := &models.Memorial{
		Slug:        seed.slug,
		SubjectName: "Jane Doe",
		Type:        models.MemorialPerson,
		Status:      seed.status,
		IsPublic:    seed.isPublic,
		ViewCount:   seed.viewCount,
		AuthorID:    author.ID,
	}
	require.NoError(t, db.Create(memorial).Error)
	return memorial
}

func reloadMemorial(t *testing.T, db *gorm.DB, id string) *models.Memorial {
	t.Helper()

	var memorial models.Memorial
	require.NoError(t, db.First(&memorial, "id = ?", id).Error)
	return &memorial
}

// flakyMemorialStore wraps a MemorialStore and injects failures.
type flakyMemorialStore struct {
	MemorialStore

	incrementErr error
	findIDErr    error
	detailCalls  atomic.Int32
	increments   atomic.Int32
}

func (s *flakyMemorialStore) FindPublishedID(ctx context.Context, slug string) (string, bool, error) {
	if s.findIDErr != nil {
		return "", false, s.findIDErr
	}
	return s.MemorialStore.FindPublishedID(ctx, slug)
}

func (s *flakyMemorialStore) IncrementViewCount(ctx context.Context, id string) error {
	s.increments.Add(1)
	if s.incrementErr != nil {
		return s.incrementErr
	}
	return s.MemorialStore.IncrementViewCount(ctx, id)
}

func (s *flakyMemorialStore) FindPublishedDetail(ctx context.Context, slug string) (*models.Memorial, bool, error) {
	s.detailCalls.Add(1)
	return s.MemorialStore.FindPublishedDetail(ctx, slug)
}

var errInjected = errors.New("injected failure")

type testClock struct {
	now atomic.Int64
}

func newTestClock() *testClock {
	c := &testClock{}
	c.now.Store(time.Date(2024, 4, 4, 8, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(0, c.now.Load()).UTC()
}

func (c *testClock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}
