package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

func newMessageService(t *testing.T, f *memorialFixture) *MessageService {
	t.Helper()

	audit, err := NewAuditService(f.db)
	require.NoError(t, err)
	svc, err := NewMessageService(f.db, f.svc, f.lookup, audit)
	require.NoError(t, err)
	return svc
}

func TestPostMessageModerationFlow(t *testing.T) {
	f := newMemorialFixture(t)
	svc := newMessageService(t, f)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	guest, err := svc.Post(ctx, Actor{}, memorial.ID, PostMessageInput{GuestName: " 路人 ", Content: "一路走好"})
	require.NoError(t, err)
	require.Equal(t, models.MessagePending, guest.Status)
	require.Equal(t, "路人", guest.GuestName)
	require.Nil(t, guest.AuthorID)

	own, err := svc.Post(ctx, f.owner, memorial.ID, PostMessageInput{Content: "想念你"})
	require.NoError(t, err)
	require.Equal(t, models.MessageApproved, own.Status)

	approved, err := svc.ListApproved(ctx, memorial.ID, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, approved.Total)
	require.Equal(t, own.ID, approved.Items[0].ID)

	queue, err := svc.ListByStatus(ctx, "", 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, queue.Total)

	_, err = svc.Moderate(ctx, f.visitor, guest.ID, models.MessageApproved)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	moderated, err := svc.Moderate(ctx, f.owner, guest.ID, models.MessageApproved)
	require.NoError(t, err)
	require.Equal(t, models.MessageApproved, moderated.Status)

	detail, err := f.lookup.Resolve(ctx, memorial.Slug)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)

	var audits int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", "message.moderate").Count(&audits).Error)
	require.EqualValues(t, 1, audits)
}

func TestPostMessageValidation(t *testing.T) {
	f := newMemorialFixture(t)
	svc := newMessageService(t, f)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	_, err := svc.Post(ctx, Actor{}, memorial.ID, PostMessageInput{Content: "没有署名"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Post(ctx, f.visitor, memorial.ID, PostMessageInput{Content: "   "})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = svc.Post(ctx, f.visitor, memorial.ID, PostMessageInput{Content: strings.Repeat("念", maxMessageLength+1)})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	draft, err := f.svc.Create(ctx, f.owner, CreateMemorialInput{SubjectName: "Draft", Type: models.MemorialPet})
	require.NoError(t, err)
	_, err = svc.Post(ctx, f.visitor, draft.ID, PostMessageInput{Content: "hello"})
	require.ErrorIs(t, err, ErrMemorialNotFound)

	_, err = svc.Moderate(ctx, f.admin, "missing", models.MessageRejected)
	require.ErrorIs(t, err, ErrMessageNotFound)

	_, err = svc.Moderate(ctx, f.admin, "missing", models.MessagePending)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestModeratorApprovesDirectly(t *testing.T) {
	f := newMemorialFixture(t)
	svc := newMessageService(t, f)
	ctx := context.Background()
	memorial := f.createPublished(t, "Jane Doe")

	moderator := seedUser(t, f.db, "mod@example.com", models.RoleModerator)
	message, err := svc.Post(ctx, Actor{ID: moderator.ID, Role: moderator.Role}, memorial.ID, PostMessageInput{Content: "安息"})
	require.NoError(t, err)
	require.Equal(t, models.MessageApproved, message.Status)
}
