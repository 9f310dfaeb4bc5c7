package models

import "time"

// Session is a refresh token issued at login. Only the token hash is stored.
type Session struct {
	BaseModel

	UserID     string     `gorm:"size:36;not null;index" json:"userId"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash  string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	IPAddress  string     `gorm:"size:64" json:"ipAddress"`
	UserAgent  string     `gorm:"size:255" json:"userAgent"`
	ExpiresAt  time.Time  `gorm:"index" json:"expiresAt"`
	LastUsedAt time.Time  `json:"lastUsedAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
}

// Active reports whether the session can still mint access tokens.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// OAuthState binds a Google sign-in redirect to its callback.
type OAuthState struct {
	BaseModel

	State     string    `gorm:"uniqueIndex;size:96;not null"`
	Nonce     string    `gorm:"size:96;not null"`
	Verifier  string    `gorm:"size:128;not null"`
	ExpiresAt time.Time `gorm:"index"`
}
