package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/response"
)

type messagePayload struct {
	Message models.Message `json:"message"`
	Pending bool           `json:"pending"`
}

type messageListPayload struct {
	Messages []models.Message `json:"messages"`
	Meta     response.Meta    `json:"meta"`
}

func TestMessageHandler_GuestMessageIsModerated(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	_, moderator := env.UserToken(models.RoleModerator)
	memorial := env.PublishMemorial(owner, "Guestbook Person")

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/messages", map[string]string{
		"guestName": "老同学",
		"content":   "一路走好",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var posted messagePayload
	testutil.DecodeInto(t, w, &posted)
	require.True(t, posted.Pending)
	require.Equal(t, models.MessagePending, posted.Message.Status)

	list := env.Request(http.MethodGet, "/api/memorials/"+memorial.ID+"/messages", nil, "")
	require.Equal(t, http.StatusOK, list.Code)
	var approved messageListPayload
	testutil.DecodeInto(t, list, &approved)
	require.Empty(t, approved.Messages)

	queue := env.Request(http.MethodGet, "/api/admin/messages?status=pending", nil, moderator)
	require.Equal(t, http.StatusOK, queue.Code, queue.Body.String())
	var pending messageListPayload
	testutil.DecodeInto(t, queue, &pending)
	require.Len(t, pending.Messages, 1)

	approve := env.Request(http.MethodPost, "/api/admin/messages/"+posted.Message.ID+"/approve", nil, moderator)
	require.Equal(t, http.StatusOK, approve.Code, approve.Body.String())

	list = env.Request(http.MethodGet, "/api/memorials/"+memorial.ID+"/messages", nil, "")
	testutil.DecodeInto(t, list, &approved)
	require.Len(t, approved.Messages, 1)
	require.EqualValues(t, 1, approved.Meta.Total)

	detail := env.Request(http.MethodGet, "/api/memorials/slug/"+memorial.Slug, nil, "")
	require.Equal(t, http.StatusOK, detail.Code)
	var page memorialPayload
	testutil.DecodeInto(t, detail, &page)
	require.Len(t, page.Memorial.Messages, 1)
}

func TestMessageHandler_OwnerMessageIsApproved(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(owner, "Owner Notes")

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/messages", map[string]string{
		"content": "谢谢大家的陪伴",
	}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var posted messagePayload
	testutil.DecodeInto(t, w, &posted)
	require.False(t, posted.Pending)
}

func TestMessageHandler_Validation(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(owner, "Validation Person")
	draft := env.CreateMemorial(owner, "Draft Guestbook")

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/messages", map[string]string{
		"content": "没有署名",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, "guests must give a name")

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/messages", map[string]string{
		"guestName": "访客",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/memorials/"+draft.ID+"/messages", map[string]string{
		"guestName": "访客",
		"content":   "草稿不能留言",
	}, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessageHandler_QueueRequiresModerator(t *testing.T) {
	env := testutil.NewEnv(t)
	_, user := env.UserToken(models.RoleUser)
	_, moderator := env.UserToken(models.RoleModerator)

	w := env.Request(http.MethodGet, "/api/admin/messages", nil, user)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/messages?status=bogus", nil, moderator)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
