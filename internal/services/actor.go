package services

import "github.com/eternalmemory/eternal/internal/models"

// Actor is the caller of a service operation. The zero value is an anonymous visitor.
type Actor struct {
	ID   string
	Role models.Role
}

// Anonymous reports whether the caller is signed out.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// AtLeast reports whether the actor holds min or a higher role.
func (a Actor) AtLeast(min models.Role) bool {
	return !a.Anonymous() && a.Role.AtLeast(min)
}

// CanManage reports whether the actor may edit the memorial: its author or an admin.
func (a Actor) CanManage(m *models.Memorial) bool {
	if m == nil || a.Anonymous() {
		return false
	}
	return m.AuthorID == a.ID || a.AtLeast(models.RoleAdmin)
}

// CanModerate reports whether the actor may approve messages on the memorial.
func (a Actor) CanModerate(m *models.Memorial) bool {
	return a.CanManage(m) || a.AtLeast(models.RoleModerator)
}
