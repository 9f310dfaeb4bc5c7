package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/llm"
	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests [][]llm.Message
}

func (c *scriptedCompleter) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, append([]llm.Message(nil), messages...))
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "……", nil
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func newAIService(t *testing.T, f *memorialFixture, completer llm.Completer) *AIService {
	t.Helper()

	svc, err := NewAIService(f.db, f.svc, f.lookup, completer)
	require.NoError(t, err)
	return svc
}

func TestDraftObituarySavesOnRequest(t *testing.T) {
	f := newMemorialFixture(t)
	completer := &scriptedCompleter{replies: []string{"草稿一", "草稿二"}}
	svc := newAIService(t, f, completer)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	draft, err := svc.DraftObituary(ctx, f.owner, memorial.ID, ObituaryInput{Tone: "温暖"})
	require.NoError(t, err)
	require.Equal(t, "草稿一", draft)
	require.Empty(t, reloadMemorial(t, f.db, memorial.ID).Obituary)

	prompt := completer.requests[0][1].Content
	require.Contains(t, prompt, "Jane Doe")
	require.Contains(t, prompt, "语气：温暖")

	saved, err := svc.DraftObituary(ctx, f.owner, memorial.ID, ObituaryInput{Save: true})
	require.NoError(t, err)
	require.Equal(t, "草稿二", reloadMemorial(t, f.db, memorial.ID).Obituary)
	require.Equal(t, saved, reloadMemorial(t, f.db, memorial.ID).Obituary)

	_, err = svc.DraftObituary(ctx, f.visitor, memorial.ID, ObituaryInput{})
	require.ErrorIs(t, err, ErrMemorialNotFound)
}

func TestChatKeepsBoundedHistory(t *testing.T) {
	f := newMemorialFixture(t)
	completer := &scriptedCompleter{}
	svc := newAIService(t, f, completer)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	for i := 0; i < 12; i++ {
		_, err := svc.Chat(ctx, f.visitor, memorial.ID, "你好")
		require.NoError(t, err)
	}

	last := completer.requests[len(completer.requests)-1]
	require.Equal(t, llm.RoleSystem, last[0].Role)
	require.Len(t, last, 1+DigitalLifeContextTurns+1)
	require.Equal(t, llm.RoleUser, last[1].Role)
	require.Equal(t, llm.RoleAssistant, last[2].Role)

	history, err := svc.History(ctx, f.visitor, memorial.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 24)
	require.Equal(t, llm.RoleUser, history[0].Role)
	require.Equal(t, llm.RoleAssistant, history[len(history)-1].Role)

	others, err := svc.History(ctx, f.owner, memorial.ID, 0)
	require.NoError(t, err)
	require.Empty(t, others)
}

func TestChatUnavailable(t *testing.T) {
	f := newMemorialFixture(t)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	failing := newAIService(t, f, &scriptedCompleter{err: errors.New("provider down")})
	_, err := failing.Chat(ctx, f.visitor, memorial.ID, "在吗")
	require.ErrorIs(t, err, ErrLLMUnavailable)

	var turns int64
	require.NoError(t, f.db.Model(&models.DigitalLifeMessage{}).Count(&turns).Error)
	require.Zero(t, turns)

	disabled := newAIService(t, f, nil)
	_, err = disabled.DraftObituary(ctx, f.owner, memorial.ID, ObituaryInput{})
	require.ErrorIs(t, err, ErrLLMUnavailable)

	_, err = disabled.Chat(ctx, Actor{}, memorial.ID, "hi")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = disabled.Chat(ctx, f.visitor, memorial.ID, strings.Repeat("长", maxChatMessageLength+1))
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPersonaPromptForPets(t *testing.T) {
	prompt := personaPrompt(&models.Memorial{SubjectName: "旺财", Type: models.MemorialPet, Species: "狗", Breed: "柴犬"})
	require.Contains(t, prompt, "宠物")
	require.Contains(t, prompt, "品种：柴犬")
}
