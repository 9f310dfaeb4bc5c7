package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
)

// MemorialStore is the persistence surface the public slug lookup depends on.
type MemorialStore interface {
	// FindPublishedID returns the identifier of the visible memorial with slug.
	FindPublishedID(ctx context.Context, slug string) (string, bool, error)
	// IncrementViewCount atomically adds one view to the memorial.
	IncrementViewCount(ctx context.Context, id string) error
	// FindPublishedDetail loads the visible memorial with every public relation.
	FindPublishedDetail(ctx context.Context, slug string) (*models.Memorial, bool, error)
}

// publicUserColumns limits preloaded users to what a public page shows.
var publicUserColumns = []string{"id", "name", "avatar"}

// GormMemorialStore implements MemorialStore on gorm.
type GormMemorialStore struct {
	db *gorm.DB
}

// NewGormMemorialStore constructs a GormMemorialStore.
func NewGormMemorialStore(db *gorm.DB) (*GormMemorialStore, error) {
	if db == nil {
		return nil, errors.New("memorial store: db is required")
	}
	return &GormMemorialStore{db: db}, nil
}

// FindPublishedID implements MemorialStore.
func (s *GormMemorialStore) FindPublishedID(ctx context.Context, slug string) (string, bool, error) {
	var row struct{ ID string }
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Memorial{}).
		Scopes(ForSlug(slug).Visible().Scope()).
		Select("memorials.id").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("memorial store: find id: %w", err)
	}
	return row.ID, true, nil
}

// IncrementViewCount implements MemorialStore.
func (s *GormMemorialStore) IncrementViewCount(ctx context.Context, id string) error {
	return s.incrementCounter(ctx, id, "view_count")
}

// incrementCounter adds one to a counter column.
func (s *GormMemorialStore) incrementCounter(ctx context.Context, id, column string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Memorial{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return fmt.Errorf("memorial store: increment %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemorialNotFound
	}
	return nil
}

// FindPublishedDetail implements MemorialStore.
func (s *GormMemorialStore) FindPublishedDetail(ctx context.Context, slug string) (*models.Memorial, bool, error) {
	var memorial models.Memorial
	err := s.db.WithContext(ensureContext(ctx)).
		Scopes(ForSlug(slug).Visible().Scope(), preloadPublicRelations).
		Take(&memorial).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memorial store: find detail: %w", err)
	}
	return &memorial, true, nil
}

func preloadPublicUsers(db *gorm.DB) *gorm.DB {
	return db.Select(publicUserColumns)
}

func preloadPublicRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Author", preloadPublicUsers).
		Preload("Images", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("is_main DESC").Order("created_at ASC")
		}).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Where("status = ?", models.MessageApproved).Order("created_at DESC")
		}).
		Preload("Messages.Author", preloadPublicUsers).
		Preload("Candles", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at DESC")
		}).
		Preload("Candles.User", preloadPublicUsers).
		Preload("Likes").
		Preload("Likes.User", preloadPublicUsers).
		Preload("Tags", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("name ASC")
		})
}
