package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

// CandleLifetime is how long a lit candle burns.
const CandleLifetime = 24 * time.Hour

// LightCandleInput is a candle request.
type LightCandleInput struct {
	GuestName string
	Message   string
}

// LikeResult reports the like state after a toggle.
type LikeResult struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}

// TributeService handles candles and likes.
type TributeService struct {
	db        *gorm.DB
	memorials *MemorialService
	lookup    *MemorialLookupService
	now       func() time.Time
}

// NewTributeService constructs a TributeService.
func NewTributeService(db *gorm.DB, memorials *MemorialService, lookup *MemorialLookupService) (*TributeService, error) {
	if db == nil {
		return nil, errors.New("tribute service: db is required")
	}
	if memorials == nil {
		return nil, errors.New("tribute service: memorial service is required")
	}
	return &TributeService{db: db, memorials: memorials, lookup: lookup, now: time.Now}, nil
}

// LightCandle lights a candle on a visible memorial for CandleLifetime.
func (s *TributeService) LightCandle(ctx context.Context, actor Actor, memorialID string, input LightCandleInput) (*models.Candle, error) {
	ctx = ensureContext(ctx)

	message := strings.TrimSpace(input.Message)
	if utf8.RuneCountInString(message) > 200 {
		return nil, apperrors.NewBadRequest("寄语不能超过 200 字")
	}

	memorial, err := s.memorials.GetVisible(ctx, memorialID)
	if err != nil {
		return nil, err
	}

	candle := &models.Candle{
		MemorialID: memorial.ID,
		Message:    message,
		ExpiresAt:  s.now().Add(CandleLifetime),
	}
	if actor.Anonymous() {
		name := strings.TrimSpace(input.GuestName)
		if name == "" {
			return nil, apperrors.NewBadRequest("请填写您的称呼")
		}
		if utf8.RuneCountInString(name) > maxGuestNameLength {
			return nil, apperrors.NewBadRequest("称呼过长")
		}
		candle.GuestName = name
	} else {
		candle.UserID = stringPtr(actor.ID)
	}

	if err := s.db.WithContext(ctx).Create(candle).Error; err != nil {
		return nil, fmt.Errorf("tribute service: light candle: %w", err)
	}
	s.lookup.Invalidate(ctx, memorial.Slug)
	return candle, nil
}

// ActiveCandles counts candles still burning on a memorial.
func (s *TributeService) ActiveCandles(ctx context.Context, memorialID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Candle{}).
		Where("memorial_id = ? AND expires_at > ?", memorialID, s.now()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("tribute service: count candles: %w", err)
	}
	return count, nil
}

// ToggleLike likes a visible memorial, or removes the like when one exists.
func (s *TributeService) ToggleLike(ctx context.Context, actor Actor, memorialID string) (*LikeResult, error) {
	ctx = ensureContext(ctx)
	if actor.Anonymous() {
		return nil, apperrors.ErrUnauthorized
	}

	memorial, err := s.memorials.GetVisible(ctx, memorialID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	result := &LikeResult{}
	removed := db.Where("memorial_id = ? AND user_id = ?", memorial.ID, actor.ID).Delete(&models.Like{})
	if removed.Error != nil {
		return nil, fmt.Errorf("tribute service: toggle like: %w", removed.Error)
	}
	if removed.RowsAffected == 0 {
		// A concurrent toggle may have inserted the same pair first; the like stands either way.
		if err := db.Create(&models.Like{MemorialID: memorial.ID, UserID: actor.ID}).Error; err != nil && !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("tribute service: toggle like: %w", err)
		}
		result.Liked = true
	}
	if err := db.Model(&models.Like{}).Where("memorial_id = ?", memorial.ID).Count(&result.Count).Error; err != nil {
		return nil, fmt.Errorf("tribute service: count likes: %w", err)
	}

	s.lookup.Invalidate(ctx, memorial.Slug)
	return result, nil
}
