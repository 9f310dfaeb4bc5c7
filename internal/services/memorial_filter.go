package services

import (
	"strings"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
)

// MemorialFilter is an immutable set of memorial predicates. Each method returns a
// copy, so a filter shared between call sites is never mutated. Status and visibility
// are fields rather than free-form conditions, which keeps "published but any status"
// style combinations out of reach.
type MemorialFilter struct {
	id         string
	slug       string
	authorID   string
	statuses   []models.MemorialStatus
	publicOnly bool
	kind       models.MemorialType
	search     string
	tag        string
}

// ForSlug matches a single memorial by slug.
func ForSlug(slug string) MemorialFilter {
	return MemorialFilter{slug: strings.TrimSpace(slug)}
}

// ForID matches a single memorial by identifier.
func ForID(id string) MemorialFilter {
	return MemorialFilter{id: strings.TrimSpace(id)}
}

// AllMemorials matches every memorial.
func AllMemorials() MemorialFilter {
	return MemorialFilter{}
}

// Published restricts the filter to PUBLISHED memorials.
func (f MemorialFilter) Published() MemorialFilter {
	return f.WithStatus(models.StatusPublished)
}

// PublicOnly restricts the filter to memorials visible to anonymous visitors.
func (f MemorialFilter) PublicOnly() MemorialFilter {
	f.publicOnly = true
	return f
}

// Visible combines Published and PublicOnly.
func (f MemorialFilter) Visible() MemorialFilter {
	return f.Published().PublicOnly()
}

// OwnedBy restricts the filter to memorials authored by userID.
func (f MemorialFilter) OwnedBy(userID string) MemorialFilter {
	f.authorID = strings.TrimSpace(userID)
	return f
}

// WithStatus replaces the accepted statuses. Unknown statuses are ignored.
func (f MemorialFilter) WithStatus(statuses ...models.MemorialStatus) MemorialFilter {
	accepted := make([]models.MemorialStatus, 0, len(statuses))
	for _, status := range statuses {
		if status.Valid() {
			accepted = append(accepted, status)
		}
	}
	f.statuses = accepted
	return f
}

// ExcludeDeleted accepts every status except DELETED.
func (f MemorialFilter) ExcludeDeleted() MemorialFilter {
	return f.WithStatus(models.StatusDraft, models.StatusPublished, models.StatusArchived)
}

// WithType restricts the filter to one memorial type. Unknown types clear the restriction.
func (f MemorialFilter) WithType(kind models.MemorialType) MemorialFilter {
	if !kind.Valid() {
		kind = ""
	}
	f.kind = kind
	return f
}

// Search matches subject names containing query.
func (f MemorialFilter) Search(query string) MemorialFilter {
	f.search = strings.TrimSpace(query)
	return f
}

// Tagged restricts the filter to memorials carrying the named tag.
func (f MemorialFilter) Tagged(name string) MemorialFilter {
	f.tag = strings.TrimSpace(name)
	return f
}

// Scope converts the filter into a gorm scope over the memorials table.
func (f MemorialFilter) Scope() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.id != "" {
			db = db.Where("memorials.id = ?", f.id)
		}
		if f.slug != "" {
			db = db.Where("memorials.slug = ?", f.slug)
		}
		if f.authorID != "" {
			db = db.Where("memorials.author_id = ?", f.authorID)
		}
		switch len(f.statuses) {
		case 0:
		case 1:
			db = db.Where("memorials.status = ?", f.statuses[0])
		default:
			db = db.Where("memorials.status IN ?", f.statuses)
		}
		if f.publicOnly {
			db = db.Where("memorials.is_public = ?", true)
		}
		if f.kind != "" {
			db = db.Where("memorials.type = ?", f.kind)
		}
		if f.search != "" {
			db = db.Where("LOWER(memorials.subject_name) LIKE ?", "%"+strings.ToLower(f.search)+"%")
		}
		if f.tag != "" {
			db = db.Where(
				"memorials.id IN (?)",
				db.Session(&gorm.Session{NewDB: true}).
					Table("memorial_tags").
					Select("memorial_tags.memorial_id").
					Joins("JOIN tags ON tags.id = memorial_tags.tag_id").
					Where("tags.name = ?", f.tag),
			)
		}
		return db
	}
}
