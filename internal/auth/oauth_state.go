package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/crypto"
)

// DefaultOAuthStateTTL bounds how long a user may take on the consent screen.
const DefaultOAuthStateTTL = 10 * time.Minute

var (
	errStateExpired = errors.New("oauth state: expired")
	errStateInvalid = errors.New("oauth state: invalid")
)

// PendingLogin is the material needed to start a redirect and later finish it.
type PendingLogin struct {
	State     string
	Nonce     string
	Challenge string
}

// OAuthStateStore persists redirect state so any server process can finish the callback.
type OAuthStateStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewOAuthStateStore constructs a state store.
func NewOAuthStateStore(db *gorm.DB, ttl time.Duration, now func() time.Time) (*OAuthStateStore, error) {
	if db == nil {
		return nil, errors.New("oauth state: db is required")
	}
	if ttl <= 0 {
		ttl = DefaultOAuthStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &OAuthStateStore{db: db, ttl: ttl, now: now}, nil
}

// Begin records a new pending login.
func (s *OAuthStateStore) Begin(ctx context.Context) (PendingLogin, error) {
	state, err := crypto.GenerateToken(32)
	if err != nil {
		return PendingLogin{}, fmt.Errorf("oauth state: generate state: %w", err)
	}
	nonce, err := crypto.GenerateToken(32)
	if err != nil {
		return PendingLogin{}, fmt.Errorf("oauth state: generate nonce: %w", err)
	}
	pkce, err := GeneratePKCE()
	if err != nil {
		return PendingLogin{}, err
	}

	record := models.OAuthState{
		State:     state,
		Nonce:     nonce,
		Verifier:  pkce.Verifier,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return PendingLogin{}, fmt.Errorf("oauth state: persist: %w", err)
	}

	return PendingLogin{State: state, Nonce: nonce, Challenge: pkce.Challenge}, nil
}

// Consume deletes and returns the pending login for state. A state can be used once.
func (s *OAuthStateStore) Consume(ctx context.Context, state string) (*models.OAuthState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, errStateInvalid
	}

	var record models.OAuthState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&record, "state = ?", state).Error; err != nil {
			return err
		}
		return tx.Delete(&record).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errStateInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("oauth state: consume: %w", err)
	}

	if !s.now().Before(record.ExpiresAt) {
		return nil, errStateExpired
	}
	return &record, nil
}

// CleanupExpired removes states whose redirect was never completed.
func (s *OAuthStateStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.OAuthState{})
	if result.Error != nil {
		return 0, fmt.Errorf("oauth state: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
