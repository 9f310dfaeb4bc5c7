package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
)

const (
	// DigitalLifeContextTurns is how many previous turns are replayed to the model.
	DigitalLifeContextTurns = 20

	maxChatMessageLength = 500
	maxObituaryNotes     = 2000
)

// ObituaryInput steers the drafted obituary.
type ObituaryInput struct {
	Tone  string
	Notes string
	Save  bool
}

// AIService drafts obituaries and runs digital life conversations.
type AIService struct {
	db        *gorm.DB
	memorials *MemorialService
	lookup    *MemorialLookupService
	llm       llm.Completer
	log       *zap.Logger
}

// NewAIService constructs an AIService. A nil completer makes every call fail with
// ErrLLMUnavailable.
func NewAIService(db *gorm.DB, memorials *MemorialService, lookup *MemorialLookupService, completer llm.Completer) (*AIService, error) {
	if db == nil {
		return nil, errors.New("ai service: db is required")
	}
	if memorials == nil {
		return nil, errors.New("ai service: memorial service is required")
	}
	return &AIService{
		db:        db,
		memorials: memorials,
		lookup:    lookup,
		llm:       completer,
		log:       logger.WithModule("ai"),
	}, nil
}

// DraftObituary asks the model for an obituary of a memorial the actor manages. With
// Save set the draft replaces the memorial's obituary.
func (s *AIService) DraftObituary(ctx context.Context, actor Actor, memorialID string, input ObituaryInput) (string, error) {
	ctx = ensureContext(ctx)

	notes := strings.TrimSpace(input.Notes)
	if utf8.RuneCountInString(notes) > maxObituaryNotes {
		return "", apperrors.NewBadRequest(fmt.Sprintf("补充说明不能超过 %d 字", maxObituaryNotes))
	}

	memorial, err := s.memorials.Get(ctx, actor, memorialID)
	if err != nil {
		return "", err
	}

	var prompt strings.Builder
	prompt.WriteString("请为以下逝者撰写一篇庄重、温暖的中文讣告，300 字以内，不要使用标题。\n")
	writeProfile(&prompt, memorial)
	if tone := strings.TrimSpace(input.Tone); tone != "" {
		fmt.Fprintf(&prompt, "语气：%s\n", tone)
	}
	if notes != "" {
		fmt.Fprintf(&prompt, "补充说明：%s\n", notes)
	}

	text, err := s.complete(ctx, "obituary", []llm.Message{
		{Role: llm.RoleSystem, Content: "你是一位擅长撰写悼念文字的作者。"},
		{Role: llm.RoleUser, Content: prompt.String()},
	})
	if err != nil {
		return "", err
	}

	if input.Save {
		if err := s.db.WithContext(ctx).Model(&models.Memorial{}).
			Where("id = ?", memorial.ID).
			Update("obituary", text).Error; err != nil {
			return "", fmt.Errorf("ai service: save obituary: %w", err)
		}
		s.lookup.Invalidate(ctx, memorial.Slug)
	}
	return text, nil
}

// Chat sends one message to the memorial's persona and returns the reply. Both turns are
// persisted only when the model answers.
func (s *AIService) Chat(ctx context.Context, actor Actor, memorialID, content string) (*models.DigitalLifeMessage, error) {
	ctx = ensureContext(ctx)
	if actor.Anonymous() {
		return nil, apperrors.ErrUnauthorized
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewBadRequest("消息不能为空")
	}
	if utf8.RuneCountInString(content) > maxChatMessageLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("消息不能超过 %d 字", maxChatMessageLength))
	}

	memorial, err := s.chatMemorial(ctx, actor, memorialID)
	if err != nil {
		return nil, err
	}

	history, err := s.recentTurns(ctx, memorial.ID, actor.ID, DigitalLifeContextTurns)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: personaPrompt(memorial)})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: content})

	reply, err := s.complete(ctx, "digital_life", messages)
	if err != nil {
		return nil, err
	}

	question := &models.DigitalLifeMessage{MemorialID: memorial.ID, UserID: actor.ID, Role: llm.RoleUser, Content: content}
	answer := &models.DigitalLifeMessage{MemorialID: memorial.ID, UserID: actor.ID, Role: llm.RoleAssistant, Content: reply}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(question).Error; err != nil {
			return err
		}
		// Keep the answer strictly after the question for history ordering.
		answer.CreatedAt = question.CreatedAt.Add(time.Microsecond)
		return tx.Create(answer).Error
	}); err != nil {
		return nil, fmt.Errorf("ai service: save turns: %w", err)
	}
	return answer, nil
}

// History returns the actor's conversation with a memorial, oldest first.
func (s *AIService) History(ctx context.Context, actor Actor, memorialID string, limit int) ([]models.DigitalLifeMessage, error) {
	ctx = ensureContext(ctx)
	if actor.Anonymous() {
		return nil, apperrors.ErrUnauthorized
	}
	memorial, err := s.chatMemorial(ctx, actor, memorialID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return s.recentTurns(ctx, memorial.ID, actor.ID, limit)
}

// chatMemorial allows visible memorials and, for previews, ones the actor manages.
func (s *AIService) chatMemorial(ctx context.Context, actor Actor, memorialID string) (*models.Memorial, error) {
	memorial, err := s.memorials.GetVisible(ctx, memorialID)
	if errors.Is(err, ErrMemorialNotFound) {
		return s.memorials.Get(ctx, actor, memorialID)
	}
	return memorial, err
}

func (s *AIService) recentTurns(ctx context.Context, memorialID, userID string, limit int) ([]models.DigitalLifeMessage, error) {
	var turns []models.DigitalLifeMessage
	if err := s.db.WithContext(ctx).
		Where("memorial_id = ? AND user_id = ?", memorialID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("ai service: load history: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

func (s *AIService) complete(ctx context.Context, purpose string, messages []llm.Message) (string, error) {
	if s.llm == nil {
		return "", ErrLLMUnavailable
	}
	reply, err := s.llm.Complete(ctx, purpose, messages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !errors.Is(err, llm.ErrDisabled) {
			s.log.Warn("language model call failed", zap.String("purpose", purpose), zap.Error(err))
		}
		return "", ErrLLMUnavailable.WithInternal(err)
	}
	return reply, nil
}

func personaPrompt(m *models.Memorial) string {
	var b strings.Builder
	if m.Type == models.MemorialPet {
		fmt.Fprintf(&b, "你将扮演一只名叫%s的宠物，用温柔、俏皮的语气回应主人。", m.SubjectName)
	} else {
		fmt.Fprintf(&b, "你将扮演已故的%s，以第一人称、温和的语气与思念你的人交谈。", m.SubjectName)
	}
	b.WriteString("不要声称自己仍然在世，不要编造与下列资料矛盾的事实，回复不超过 150 字。\n")
	writeProfile(&b, m)
	return b.String()
}

func writeProfile(b *strings.Builder, m *models.Memorial) {
	fmt.Fprintf(b, "姓名：%s\n", m.SubjectName)
	if m.Type == models.MemorialPet {
		if m.Species != "" {
			fmt.Fprintf(b, "物种：%s\n", m.Species)
		}
		if m.Breed != "" {
			fmt.Fprintf(b, "品种：%s\n", m.Breed)
		}
	}
	if m.BirthDate != nil {
		fmt.Fprintf(b, "出生：%s\n", m.BirthDate.Format("2006-01-02"))
	}
	if m.DeathDate != nil {
		fmt.Fprintf(b, "离世：%s\n", m.DeathDate.Format("2006-01-02"))
	}
	if m.Relationship != "" {
		fmt.Fprintf(b, "与创建者的关系：%s\n", m.Relationship)
	}
	if m.Epitaph != "" {
		fmt.Fprintf(b, "墓志铭：%s\n", m.Epitaph)
	}
	if m.Biography != "" {
		fmt.Fprintf(b, "生平：%s\n", m.Biography)
	}
}
