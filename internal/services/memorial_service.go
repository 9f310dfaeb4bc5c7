package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/cache"
	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
)

const (
	// PublicListTTL is how long a page of the public directory stays cached.
	PublicListTTL = 30 * time.Second

	maxSlugBase     = 48
	slugSuffixLen   = 6
	slugCreateTries = 5
	maxTagsPerPage  = 10
)

// ShareChannel names a counter bumped when a visitor shares a memorial.
type ShareChannel string

const (
	ShareDirect   ShareChannel = "share"
	ShareLinkCopy ShareChannel = "link_copy"
	ShareQRView   ShareChannel = "qr_view"
)

var shareColumns = map[ShareChannel]string{
	ShareDirect:   "share_count",
	ShareLinkCopy: "link_copy_count",
	ShareQRView:   "qr_view_count",
}

// CreateMemorialInput describes a new memorial.
type CreateMemorialInput struct {
	SubjectName  string
	Type         models.MemorialType
	IsPublic     *bool
	BirthDate    *time.Time
	DeathDate    *time.Time
	Epitaph      string
	Biography    string
	Relationship string
	Species      string
	Breed        string
	CoverImage   string
	Profile      map[string]any
	Tags         []string
}

// UpdateMemorialInput enumerates mutable memorial attributes; nil fields are left alone.
type UpdateMemorialInput struct {
	SubjectName  *string
	IsPublic     *bool
	BirthDate    *time.Time
	DeathDate    *time.Time
	Epitaph      *string
	Biography    *string
	Obituary     *string
	Relationship *string
	Species      *string
	Breed        *string
	CoverImage   *string
	Profile      map[string]any
}

// PublicListOptions filters the public directory.
type PublicListOptions struct {
	Page     int
	PageSize int
	Type     models.MemorialType
	Tag      string
	Query    string
}

// MemorialPage is one page of a memorial listing.
type MemorialPage struct {
	Items []models.Memorial `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// TagUsage is a tag with the number of visible memorials carrying it.
type TagUsage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// MemorialService manages the memorial lifecycle for authors and administrators.
type MemorialService struct {
	db     *gorm.DB
	lookup *MemorialLookupService
	lists  cache.Store
	audit  *AuditService
	now    func() time.Time
	log    *zap.Logger
}

// NewMemorialService constructs a MemorialService. lists may be nil to disable list caching.
func NewMemorialService(db *gorm.DB, lookup *MemorialLookupService, lists cache.Store, audit *AuditService) (*MemorialService, error) {
	if db == nil {
		return nil, errors.New("memorial service: db is required")
	}
	return &MemorialService{
		db:     db,
		lookup: lookup,
		lists:  lists,
		audit:  audit,
		now:    time.Now,
		log:    logger.WithModule("memorials"),
	}, nil
}

// Create stores a DRAFT memorial owned by actor under a fresh unique slug.
func (s *MemorialService) Create(ctx context.Context, actor Actor, input CreateMemorialInput) (*models.Memorial, error) {
	ctx = ensureContext(ctx)
	if actor.Anonymous() {
		return nil, apperrors.ErrUnauthorized
	}

	name := strings.TrimSpace(input.SubjectName)
	if name == "" {
		return nil, apperrors.NewBadRequest("逝者姓名不能为空")
	}
	if !input.Type.Valid() {
		return nil, apperrors.NewBadRequest("纪念类型无效")
	}
	if err := validateDates(input.BirthDate, input.DeathDate); err != nil {
		return nil, err
	}

	profile, err := encodeProfile(input.Profile)
	if err != nil {
		return nil, err
	}

	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}

	memorial := &models.Memorial{
		SubjectName:  name,
		Type:         input.Type,
		IsPublic:     isPublic,
		Status:       models.StatusDraft,
		BirthDate:    input.BirthDate,
		DeathDate:    input.DeathDate,
		Epitaph:      strings.TrimSpace(input.Epitaph),
		Biography:    strings.TrimSpace(input.Biography),
		Relationship: strings.TrimSpace(input.Relationship),
		Species:      strings.TrimSpace(input.Species),
		Breed:        strings.TrimSpace(input.Breed),
		CoverImage:   strings.TrimSpace(input.CoverImage),
		Profile:      profile,
		AuthorID:     actor.ID,
	}

	for attempt := 0; attempt < slugCreateTries; attempt++ {
		memorial.ID = ""
		memorial.Slug = GenerateSlug(name)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(memorial).Error; err != nil {
				return err
			}
			return replaceTags(tx, memorial, input.Tags)
		})
		if err == nil {
			return memorial, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("memorial service: create: %w", err)
		}
	}
	return nil, fmt.Errorf("memorial service: create: slug collisions: %w", err)
}

// Get returns a memorial the actor manages, regardless of status.
func (s *MemorialService) Get(ctx context.Context, actor Actor, id string) (*models.Memorial, error) {
	memorial, err := s.load(ctx, id, func(db *gorm.DB) *gorm.DB {
		return db.
			Preload("Images", func(tx *gorm.DB) *gorm.DB { return tx.Order("is_main DESC").Order("created_at ASC") }).
			Preload("Tags")
	})
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(memorial) {
		return nil, ErrMemorialNotFound
	}
	if memorial.Status == models.StatusDeleted && !actor.AtLeast(models.RoleAdmin) {
		return nil, ErrMemorialNotFound
	}
	return memorial, nil
}

// GetVisible returns a memorial that is published and public, without side effects.
func (s *MemorialService) GetVisible(ctx context.Context, id string) (*models.Memorial, error) {
	var memorial models.Memorial
	err := s.db.WithContext(ensureContext(ctx)).Scopes(ForID(id).Visible().Scope()).Take(&memorial).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemorialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memorial service: get visible: %w", err)
	}
	return &memorial, nil
}

// ListMine lists the actor's own memorials except deleted ones.
func (s *MemorialService) ListMine(ctx context.Context, actor Actor, page, perPage int) (*MemorialPage, error) {
	if actor.Anonymous() {
		return nil, apperrors.ErrUnauthorized
	}
	return s.list(ctx, AllMemorials().OwnedBy(actor.ID).ExcludeDeleted(), page, perPage)
}

// ListPublic lists visible memorials, newest first. Pages are cached briefly.
func (s *MemorialService) ListPublic(ctx context.Context, opts PublicListOptions) (*MemorialPage, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	filter := AllMemorials().Visible().WithType(opts.Type).Search(opts.Query).Tagged(opts.Tag)
	key := cache.Key(cache.KindPublicList, fmt.Sprintf("%d|%d|%s|%s|%s",
		page, perPage, opts.Type, strings.TrimSpace(opts.Tag), strings.ToLower(strings.TrimSpace(opts.Query))))

	if s.lists != nil {
		cached, ok, err := cache.GetJSON[MemorialPage](ctx, s.lists, key)
		if err != nil {
			s.log.Warn("discarding unreadable list page", zap.Error(err))
		}
		if ok {
			return cached, nil
		}
	}

	result, err := s.list(ctx, filter, page, perPage)
	if err != nil {
		return nil, err
	}

	if s.lists != nil {
		if err := cache.SetJSON(ctx, s.lists, key, result, PublicListTTL); err != nil {
			s.log.Warn("list page not cached", zap.Error(err))
		}
	}
	return result, nil
}

// AdminList lists memorials of any status for moderators.
func (s *MemorialService) AdminList(ctx context.Context, status models.MemorialStatus, query string, page, perPage int) (*MemorialPage, error) {
	filter := AllMemorials().Search(query)
	if status != "" {
		filter = filter.WithStatus(status)
	}
	return s.list(ctx, filter, page, perPage)
}

// Update applies the non-nil fields of input.
func (s *MemorialService) Update(ctx context.Context, actor Actor, id string, input UpdateMemorialInput) (*models.Memorial, error) {
	ctx = ensureContext(ctx)

	memorial, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if memorial.Status == models.StatusDeleted {
		return nil, ErrInvalidStatusTransition
	}

	updates := map[string]any{}
	setString := func(column string, value *string) {
		if value != nil {
			updates[column] = strings.TrimSpace(*value)
		}
	}
	if input.SubjectName != nil {
		name := strings.TrimSpace(*input.SubjectName)
		if name == "" {
			return nil, apperrors.NewBadRequest("逝者姓名不能为空")
		}
		updates["subject_name"] = name
	}
	setString("epitaph", input.Epitaph)
	setString("biography", input.Biography)
	setString("obituary", input.Obituary)
	setString("relationship", input.Relationship)
	setString("species", input.Species)
	setString("breed", input.Breed)
	setString("cover_image", input.CoverImage)
	if input.IsPublic != nil {
		updates["is_public"] = *input.IsPublic
	}

	birth, death := memorial.BirthDate, memorial.DeathDate
	if input.BirthDate != nil {
		birth = input.BirthDate
		updates["birth_date"] = input.BirthDate
	}
	if input.DeathDate != nil {
		death = input.DeathDate
		updates["death_date"] = input.DeathDate
	}
	if err := validateDates(birth, death); err != nil {
		return nil, err
	}

	if input.Profile != nil {
		profile, err := encodeProfile(input.Profile)
		if err != nil {
			return nil, err
		}
		updates["profile"] = profile
	}

	if len(updates) == 0 {
		return memorial, nil
	}

	if err := s.db.WithContext(ctx).Model(memorial).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("memorial service: update: %w", err)
	}
	s.lookup.Invalidate(ctx, memorial.Slug)

	return s.Get(ctx, actor, id)
}

// Publish moves a DRAFT or ARCHIVED memorial to PUBLISHED.
func (s *MemorialService) Publish(ctx context.Context, actor Actor, id string) (*models.Memorial, error) {
	return s.transition(ctx, actor, id, models.StatusPublished, models.StatusDraft, models.StatusArchived)
}

// Archive hides a PUBLISHED memorial without deleting it.
func (s *MemorialService) Archive(ctx context.Context, actor Actor, id string) (*models.Memorial, error) {
	return s.transition(ctx, actor, id, models.StatusArchived, models.StatusPublished)
}

// Delete soft deletes a memorial by moving it to DELETED.
func (s *MemorialService) Delete(ctx context.Context, actor Actor, id string) error {
	_, err := s.transition(ctx, actor, id, models.StatusDeleted, models.StatusDraft, models.StatusPublished, models.StatusArchived)
	return err
}

// SetStatus lets administrators force any status.
func (s *MemorialService) SetStatus(ctx context.Context, actor Actor, id string, status models.MemorialStatus) (*models.Memorial, error) {
	if !actor.AtLeast(models.RoleAdmin) {
		return nil, apperrors.ErrForbidden
	}
	if !status.Valid() {
		return nil, apperrors.NewBadRequest("无效的状态")
	}
	memorial, err := s.transition(ctx, actor, id, status)
	result := AuditSuccess
	if err != nil {
		result = AuditFailure
	}
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  actor.ID,
		Action:   "memorial.status.set",
		Resource: "memorial",
		TargetID: id,
		Result:   result,
		Metadata: map[string]any{"status": status},
	})
	return memorial, err
}

// transition moves the memorial to next when its current status is one of from. An
// empty from accepts any current status.
func (s *MemorialService) transition(ctx context.Context, actor Actor, id string, next models.MemorialStatus, from ...models.MemorialStatus) (*models.Memorial, error) {
	ctx = ensureContext(ctx)

	memorial, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if len(from) > 0 {
		allowed := false
		for _, status := range from {
			if memorial.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrInvalidStatusTransition
		}
	}

	updates := map[string]any{"status": next}
	if next == models.StatusPublished && memorial.PublishedAt == nil {
		now := s.now()
		updates["published_at"] = now
		memorial.PublishedAt = &now
	}
	if err := s.db.WithContext(ctx).Model(memorial).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("memorial service: set status: %w", err)
	}
	memorial.Status = next
	s.lookup.Invalidate(ctx, memorial.Slug)

	s.log.Info("memorial status changed",
		zap.String("memorial_id", memorial.ID),
		zap.String("actor_id", actor.ID),
		zap.String("status", string(next)),
	)
	return memorial, nil
}

// RecordShare bumps the counter for channel on a visible memorial.
func (s *MemorialService) RecordShare(ctx context.Context, id string, channel ShareChannel) (*models.Memorial, error) {
	ctx = ensureContext(ctx)

	column, ok := shareColumns[channel]
	if !ok {
		return nil, apperrors.NewBadRequest("无效的分享渠道")
	}

	memorial, err := s.GetVisible(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Memorial{}).
		Where("id = ?", memorial.ID).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).Error; err != nil {
		return nil, fmt.Errorf("memorial service: record share: %w", err)
	}
	s.lookup.Invalidate(ctx, memorial.Slug)

	return s.GetVisible(ctx, id)
}

// SetTags replaces the tag set of a memorial the actor manages.
func (s *MemorialService) SetTags(ctx context.Context, actor Actor, id string, names []string) ([]models.Tag, error) {
	ctx = ensureContext(ctx)

	memorial, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceTags(tx, memorial, names)
	}); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("memorial service: set tags: %w", err)
	}
	s.lookup.Invalidate(ctx, memorial.Slug)
	return memorial.Tags, nil
}

// ListTags returns every tag with its visible memorial count, most used first. The
// result is cached for PublicListTTL.
func (s *MemorialService) ListTags(ctx context.Context) ([]TagUsage, error) {
	ctx = ensureContext(ctx)
	key := cache.Key(cache.KindTagCloud, "all")
	if s.lists != nil {
		if cached, ok, _ := cache.GetJSON[[]TagUsage](ctx, s.lists, key); ok {
			return *cached, nil
		}
	}

	var usage []TagUsage
	err := s.db.WithContext(ctx).
		Table("tags").
		Select("tags.id, tags.name, COUNT(memorials.id) AS count").
		Joins("LEFT JOIN memorial_tags ON memorial_tags.tag_id = tags.id").
		Joins("LEFT JOIN memorials ON memorials.id = memorial_tags.memorial_id AND memorials.status = ? AND memorials.is_public = ?", models.StatusPublished, true).
		Group("tags.id, tags.name").
		Order("count DESC").
		Order("tags.name ASC").
		Scan(&usage).Error
	if err != nil {
		return nil, fmt.Errorf("memorial service: list tags: %w", err)
	}

	if s.lists != nil {
		if err := cache.SetJSON(ctx, s.lists, key, usage, PublicListTTL); err != nil {
			s.log.Warn("tag cloud not cached", zap.Error(err))
		}
	}
	return usage, nil
}

func (s *MemorialService) load(ctx context.Context, id string, preload func(*gorm.DB) *gorm.DB) (*models.Memorial, error) {
	var memorial models.Memorial
	query := s.db.WithContext(ensureContext(ctx)).Scopes(ForID(id).Scope())
	if preload != nil {
		query = preload(query)
	}
	err := query.Take(&memorial).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemorialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memorial service: load: %w", err)
	}
	return &memorial, nil
}

func (s *MemorialService) list(ctx context.Context, filter MemorialFilter, page, perPage int) (*MemorialPage, error) {
	ctx = ensureContext(ctx)
	page, perPage = normalisePage(page, perPage)

	query := s.db.WithContext(ctx).Model(&models.Memorial{}).Scopes(filter.Scope())

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("memorial service: count: %w", err)
	}

	var items []models.Memorial
	if err := query.
		Preload("Author", preloadPublicUsers).
		Preload("Tags").
		Order("memorials.created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("memorial service: list: %w", err)
	}

	return &MemorialPage{Items: items, Total: total, Page: page, Size: perPage}, nil
}

// replaceTags resolves names to tags, creating missing ones, and replaces the association.
func replaceTags(tx *gorm.DB, memorial *models.Memorial, names []string) error {
	names = normaliseNames(names)
	if len(names) > maxTagsPerPage {
		return apperrors.NewBadRequest(fmt.Sprintf("标签最多 %d 个", maxTagsPerPage))
	}

	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		if len([]rune(name)) > 32 {
			return apperrors.NewBadRequest("标签过长")
		}
		var tag models.Tag
		if err := tx.Where(models.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		tags = append(tags, tag)
	}

	if err := tx.Model(memorial).Association("Tags").Replace(tags); err != nil {
		return err
	}
	memorial.Tags = tags
	return nil
}

// GenerateSlug derives "<name>-<suffix>" keeping letters and digits of any script.
func GenerateSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}

	base := []rune(strings.Trim(b.String(), "-"))
	if len(base) > maxSlugBase {
		base = []rune(strings.Trim(string(base[:maxSlugBase]), "-"))
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:slugSuffixLen]
	if len(base) == 0 {
		return "memorial-" + suffix
	}
	return string(base) + "-" + suffix
}

func validateDates(birth, death *time.Time) error {
	if birth != nil && death != nil && death.Before(*birth) {
		return apperrors.NewBadRequest("离世日期不能早于出生日期")
	}
	return nil
}

func encodeProfile(profile map[string]any) (datatypes.JSON, error) {
	if len(profile) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, apperrors.NewBadRequest("资料格式无效")
	}
	return datatypes.JSON(raw), nil
}
