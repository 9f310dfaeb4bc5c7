package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

const (
	maxMessageLength   = 1000
	maxGuestNameLength = 64
)

// PostMessageInput is a guestbook submission.
type PostMessageInput struct {
	GuestName string
	Content   string
}

// MessagePage is one page of guestbook messages.
type MessagePage struct {
	Items []models.Message `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// MessageService manages guestbook messages and their moderation.
type MessageService struct {
	db        *gorm.DB
	memorials *MemorialService
	lookup    *MemorialLookupService
	audit     *AuditService
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, memorials *MemorialService, lookup *MemorialLookupService, audit *AuditService) (*MessageService, error) {
	if db == nil {
		return nil, errors.New("message service: db is required")
	}
	if memorials == nil {
		return nil, errors.New("message service: memorial service is required")
	}
	return &MessageService{db: db, memorials: memorials, lookup: lookup, audit: audit}, nil
}

// ListApproved returns the approved messages of a visible memorial, newest first.
func (s *MessageService) ListApproved(ctx context.Context, memorialID string, page, perPage int) (*MessagePage, error) {
	ctx = ensureContext(ctx)
	if _, err := s.memorials.GetVisible(ctx, memorialID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("memorial_id = ? AND status = ?", memorialID, models.MessageApproved)
	return s.page(query, page, perPage)
}

// ListByStatus returns messages across all memorials for the moderation queue.
func (s *MessageService) ListByStatus(ctx context.Context, status models.MessageStatus, page, perPage int) (*MessagePage, error) {
	if status == "" {
		status = models.MessagePending
	}
	query := s.db.WithContext(ensureContext(ctx)).Model(&models.Message{}).Where("status = ?", status)
	return s.page(query, page, perPage)
}

// Post adds a message to a visible memorial. Messages from the memorial's managers and
// moderators are approved immediately; everyone else waits for moderation.
func (s *MessageService) Post(ctx context.Context, actor Actor, memorialID string, input PostMessageInput) (*models.Message, error) {
	ctx = ensureContext(ctx)

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperrors.NewBadRequest("留言内容不能为空")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("留言不能超过 %d 字", maxMessageLength))
	}

	memorial, err := s.memorials.GetVisible(ctx, memorialID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		MemorialID: memorial.ID,
		Content:    content,
		Status:     models.MessagePending,
	}
	if actor.Anonymous() {
		name := strings.TrimSpace(input.GuestName)
		if name == "" {
			return nil, apperrors.NewBadRequest("请填写您的称呼")
		}
		if utf8.RuneCountInString(name) > maxGuestNameLength {
			return nil, apperrors.NewBadRequest("称呼过长")
		}
		message.GuestName = name
	} else {
		message.AuthorID = stringPtr(actor.ID)
		if actor.CanModerate(memorial) {
			message.Status = models.MessageApproved
		}
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("message service: create: %w", err)
	}
	if message.Status == models.MessageApproved {
		s.lookup.Invalidate(ctx, memorial.Slug)
	}
	return message, nil
}

// Moderate approves or rejects a message.
func (s *MessageService) Moderate(ctx context.Context, actor Actor, messageID string, status models.MessageStatus) (*models.Message, error) {
	ctx = ensureContext(ctx)

	if status != models.MessageApproved && status != models.MessageRejected {
		return nil, apperrors.NewBadRequest("无效的审核结果")
	}

	var message models.Message
	err := s.db.WithContext(ctx).Take(&message, "id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message service: load: %w", err)
	}

	var memorial models.Memorial
	if err := s.db.WithContext(ctx).Select("id", "slug", "author_id").Take(&memorial, "id = ?", message.MemorialID).Error; err != nil {
		return nil, fmt.Errorf("message service: load memorial: %w", err)
	}
	if !actor.CanModerate(&memorial) {
		return nil, apperrors.ErrForbidden
	}

	if err := s.db.WithContext(ctx).Model(&message).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("message service: moderate: %w", err)
	}
	message.Status = status
	s.lookup.Invalidate(ctx, memorial.Slug)

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  actor.ID,
		Action:   "message.moderate",
		Resource: "message",
		TargetID: message.ID,
		Result:   AuditSuccess,
		Metadata: map[string]any{"status": status, "memorialId": memorial.ID},
	})
	return &message, nil
}

func (s *MessageService) page(query *gorm.DB, page, perPage int) (*MessagePage, error) {
	page, perPage = normalisePage(page, perPage)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("message service: count: %w", err)
	}

	var items []models.Message
	if err := query.
		Preload("Author", preloadPublicUsers).
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("message service: list: %w", err)
	}
	return &MessagePage{Items: items, Total: total, Page: page, Size: perPage}, nil
}
