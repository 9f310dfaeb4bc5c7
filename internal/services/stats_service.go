package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/models"
)

const statsTTL = 30 * time.Second

// Stats summarises site activity for the admin dashboard.
type Stats struct {
	Users           int64                           `json:"users"`
	Memorials       map[models.MemorialStatus]int64 `json:"memorials"`
	PendingMessages int64                           `json:"pendingMessages"`
	ActiveCandles   int64                           `json:"activeCandles"`
	Likes           int64                           `json:"likes"`
	TotalViews      int64                           `json:"totalViews"`
	TotalShares     int64                           `json:"totalShares"`
	GeneratedAt     time.Time                       `json:"generatedAt"`
}

// StatsService aggregates dashboard counters.
type StatsService struct {
	db    *gorm.DB
	cache cache.Store
	now   func() time.Time
}

// NewStatsService constructs a StatsService. memCache may be nil.
func NewStatsService(db *gorm.DB, memCache cache.Store) (*StatsService, error) {
	if db == nil {
		return nil, errors.New("stats service: db is required")
	}
	return &StatsService{db: db, cache: memCache, now: time.Now}, nil
}

// Overview returns the dashboard counters, cached briefly.
func (s *StatsService) Overview(ctx context.Context) (*Stats, error) {
	ctx = ensureContext(ctx)
	key := cache.Key(cache.KindStats, "overview")
	if s.cache != nil {
		if cached, ok, _ := cache.GetJSON[Stats](ctx, s.cache, key); ok {
			return cached, nil
		}
	}

	db := s.db.WithContext(ctx)
	stats := &Stats{Memorials: map[models.MemorialStatus]int64{}, GeneratedAt: s.now().UTC()}

	if err := db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, fmt.Errorf("stats: users: %w", err)
	}

	var byStatus []struct {
		Status models.MemorialStatus
		Count  int64
	}
	if err := db.Model(&models.Memorial{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("stats: memorials: %w", err)
	}
	for _, row := range byStatus {
		stats.Memorials[row.Status] = row.Count
	}

	var totals struct {
		Views  int64
		Shares int64
	}
	if err := db.Model(&models.Memorial{}).
		Select("COALESCE(SUM(view_count), 0) AS views, COALESCE(SUM(share_count + link_copy_count + qr_view_count), 0) AS shares").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("stats: totals: %w", err)
	}
	stats.TotalViews, stats.TotalShares = totals.Views, totals.Shares

	if err := db.Model(&models.Message{}).Where("status = ?", models.MessagePending).Count(&stats.PendingMessages).Error; err != nil {
		return nil, fmt.Errorf("stats: messages: %w", err)
	}
	if err := db.Model(&models.Candle{}).Where("expires_at > ?", s.now()).Count(&stats.ActiveCandles).Error; err != nil {
		return nil, fmt.Errorf("stats: candles: %w", err)
	}
	if err := db.Model(&models.Like{}).Count(&stats.Likes).Error; err != nil {
		return nil, fmt.Errorf("stats: likes: %w", err)
	}

	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, key, stats, statsTTL)
	}
	return stats, nil
}
