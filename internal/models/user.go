package models

import (
	"strings"
	"time"
)

// Role is a position in the administrative hierarchy USER < MODERATOR < ADMIN < SUPER_ADMIN.
type Role string

const (
	RoleUser       Role = "USER"
	RoleModerator  Role = "MODERATOR"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleModerator:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Rank returns the hierarchy level; unknown roles rank 0 and satisfy nothing.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r is min or above it in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// ParseRole normalises a role name.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := roleRank[role]
	return role, ok
}

// User is a registered account. Password is empty for accounts created through Google.
type User struct {
	BaseModel

	Email    string  `gorm:"uniqueIndex;size:191;not null" json:"email,omitempty"`
	Name     string  `gorm:"size:100;not null" json:"name"`
	Avatar   string  `gorm:"size:512" json:"avatar,omitempty"`
	Password string  `gorm:"size:255" json:"-"`
	GoogleID *string `gorm:"uniqueIndex;size:64" json:"-"`

	Role     Role `gorm:"size:16;not null;default:USER;index" json:"role,omitempty"`
	IsActive bool `gorm:"not null;default:true" json:"isActive,omitempty"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`

	Memorials []Memorial `gorm:"foreignKey:AuthorID" json:"-"`
	Sessions  []Session  `gorm:"foreignKey:UserID" json:"-"`
}
