package handlers_test

import (
	"bytes"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/response"
)

type memorialPayload struct {
	Memorial models.Memorial `json:"memorial"`
}

type memorialListPayload struct {
	Memorials []models.Memorial `json:"memorials"`
	Meta      response.Meta     `json:"meta"`
}

func TestMemorialHandler_BySlugAbsent(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/memorials/slug/jane-doe", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, response.CacheNone.HeaderValue(), w.Header().Get("Cache-Control"))

	body := testutil.DecodeError(t, w)
	require.Equal(t, "纪念页不存在", body.Error)
	require.Equal(t, "MEMORIAL_NOT_FOUND", body.Code)
}

func TestMemorialHandler_BySlugCountsOneViewPerRead(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)

	memorial := env.PublishMemorial(token, "Jane Doe")
	require.NoError(t, env.DB.Model(&models.Memorial{}).Where("id = ?", memorial.ID).
		Updates(map[string]any{"slug": "jane-doe", "view_count": 5}).Error)

	first := env.Request(http.MethodGet, "/api/memorials/slug/jane-doe", nil, "")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Equal(t, response.CacheMemorialDetail.HeaderValue(), first.Header().Get("Cache-Control"))

	var payload memorialPayload
	testutil.DecodeInto(t, first, &payload)
	require.Equal(t, "jane-doe", payload.Memorial.Slug)
	require.EqualValues(t, 6, payload.Memorial.ViewCount)
	require.EqualValues(t, 6, env.ViewCount(memorial.ID))

	// An immediate re-read may be served from the snapshot; the counter still moves by one.
	second := env.Request(http.MethodGet, "/api/memorials/slug/jane-doe", nil, "")
	require.Equal(t, http.StatusOK, second.Code)
	testutil.DecodeInto(t, second, &payload)
	require.Contains(t, []int64{6, 7}, payload.Memorial.ViewCount)
	require.EqualValues(t, 7, env.ViewCount(memorial.ID))

	third := env.Request(http.MethodGet, "/api/memorials/slug/jane-doe", nil, "")
	require.Equal(t, http.StatusOK, third.Code)
	testutil.DecodeInto(t, third, &payload)
	require.EqualValues(t, 8, payload.Memorial.ViewCount)
	require.EqualValues(t, 8, env.ViewCount(memorial.ID))
}

func TestMemorialHandler_BySlugHidesDraftAndPrivate(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)

	draft := env.CreateMemorial(token, "Draft Person")
	w := env.Request(http.MethodGet, "/api/memorials/slug/"+draft.Slug, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.EqualValues(t, 0, env.ViewCount(draft.ID))

	published := env.PublishMemorial(token, "Private Person")
	update := env.Request(http.MethodPatch, "/api/memorials/"+published.ID, map[string]any{"isPublic": false}, token)
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())

	w = env.Request(http.MethodGet, "/api/memorials/slug/"+published.Slug, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemorialHandler_StatusChangeInvalidatesSnapshot(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(token, "Archived Soon")

	w := env.Request(http.MethodGet, "/api/memorials/slug/"+memorial.Slug, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	archive := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/archive", nil, token)
	require.Equal(t, http.StatusOK, archive.Code, archive.Body.String())

	w = env.Request(http.MethodGet, "/api/memorials/slug/"+memorial.Slug, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemorialHandler_CreateRequiresAuth(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/memorials", map[string]any{
		"subjectName": "Nobody",
		"type":        "PERSON",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMemorialHandler_CreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)

	w := env.Request(http.MethodPost, "/api/memorials", map[string]any{
		"subjectName": "Whiskers",
		"type":        "FISH",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/memorials", map[string]any{
		"subjectName": "Whiskers",
		"type":        "PET",
		"birthDate":   "yesterday",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemorialHandler_OwnerLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	_, stranger := env.UserToken(models.RoleUser)

	w := env.Request(http.MethodPost, "/api/memorials", map[string]any{
		"subjectName": "Whiskers",
		"type":        "PET",
		"species":     "cat",
		"birthDate":   "2010-04-01",
		"deathDate":   "2024-02-11",
		"tags":        []string{"猫咪", "家人"},
		"profile":     map[string]any{"favouriteToy": "yarn"},
	}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created memorialPayload
	testutil.DecodeInto(t, w, &created)
	require.Equal(t, models.StatusDraft, created.Memorial.Status)
	require.NotEmpty(t, created.Memorial.Slug)
	id := created.Memorial.ID

	get := env.Request(http.MethodGet, "/api/memorials/"+id, nil, owner)
	require.Equal(t, http.StatusOK, get.Code)
	require.Equal(t, response.CachePrivate.HeaderValue(), get.Header().Get("Cache-Control"))

	hidden := env.Request(http.MethodGet, "/api/memorials/"+id, nil, stranger)
	require.Equal(t, http.StatusNotFound, hidden.Code)

	foreign := env.Request(http.MethodPatch, "/api/memorials/"+id, map[string]any{"epitaph": "x"}, stranger)
	require.Equal(t, http.StatusNotFound, foreign.Code)

	patch := env.Request(http.MethodPatch, "/api/memorials/"+id, map[string]any{"epitaph": "永远怀念"}, owner)
	require.Equal(t, http.StatusOK, patch.Code, patch.Body.String())
	var updated memorialPayload
	testutil.DecodeInto(t, patch, &updated)
	require.Equal(t, "永远怀念", updated.Memorial.Epitaph)

	mine := env.Request(http.MethodGet, "/api/memorials/mine", nil, owner)
	require.Equal(t, http.StatusOK, mine.Code)
	var list memorialListPayload
	testutil.DecodeInto(t, mine, &list)
	require.Len(t, list.Memorials, 1)
	require.EqualValues(t, 1, list.Meta.Total)

	publish := env.Request(http.MethodPost, "/api/memorials/"+id+"/publish", nil, owner)
	require.Equal(t, http.StatusOK, publish.Code)
	again := env.Request(http.MethodPost, "/api/memorials/"+id+"/publish", nil, owner)
	require.Equal(t, http.StatusConflict, again.Code)

	del := env.Request(http.MethodDelete, "/api/memorials/"+id, nil, owner)
	require.Equal(t, http.StatusOK, del.Code, del.Body.String())

	var row models.Memorial
	require.NoError(t, env.DB.First(&row, "id = ?", id).Error)
	require.Equal(t, models.StatusDeleted, row.Status, "deletion is soft")

	gone := env.Request(http.MethodGet, "/api/memorials/slug/"+row.Slug, nil, "")
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestMemorialHandler_ListPublicAndTags(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)

	person := env.PublishMemorial(token, "Grandfather Li")
	env.CreateMemorial(token, "Unpublished")

	tags := env.Request(http.MethodPut, "/api/memorials/"+person.ID+"/tags", map[string]any{"tags": []string{"祖父", "教师"}}, token)
	require.Equal(t, http.StatusOK, tags.Code, tags.Body.String())

	w := env.Request(http.MethodGet, "/api/memorials?type=person", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, response.CacheMemorialList.HeaderValue(), w.Header().Get("Cache-Control"))

	var list memorialListPayload
	testutil.DecodeInto(t, w, &list)
	require.Len(t, list.Memorials, 1)
	require.Equal(t, person.ID, list.Memorials[0].ID)

	w = env.Request(http.MethodGet, "/api/memorials?type=robot", nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/tags", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "教师")
}

func TestMemorialHandler_ListHugePage(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)
	env.PublishMemorial(token, "Far Away")

	w := env.Request(http.MethodGet, "/api/memorials?page=9223372036854775807&perPage=100", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list memorialListPayload
	testutil.DecodeInto(t, w, &list)
	require.Empty(t, list.Memorials)
	require.Equal(t, 10000, list.Meta.Page)
	require.EqualValues(t, 1, list.Meta.Total)
}

func TestMemorialHandler_ShareAndQRCode(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleUser)
	memorial := env.PublishMemorial(token, "Shared Person")

	w := env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/share", map[string]string{"channel": "link_copy"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var share struct {
		LinkCopyCount int64  `json:"linkCopyCount"`
		ShareCount    int64  `json:"shareCount"`
		URL           string `json:"url"`
	}
	testutil.DecodeInto(t, w, &share)
	require.EqualValues(t, 1, share.LinkCopyCount)
	require.Zero(t, share.ShareCount)
	require.Contains(t, share.URL, memorial.Slug)

	w = env.Request(http.MethodPost, "/api/memorials/"+memorial.ID+"/share", map[string]string{"channel": "fax"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	qr := env.Request(http.MethodGet, "/api/memorials/"+memorial.ID+"/qrcode?size=128", nil, "")
	require.Equal(t, http.StatusOK, qr.Code, qr.Body.String())
	require.Equal(t, "image/png", qr.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(qr.Body.Bytes()))
	require.NoError(t, err)

	var row models.Memorial
	require.NoError(t, env.DB.First(&row, "id = ?", memorial.ID).Error)
	require.EqualValues(t, 1, row.QRViewCount)

	draft := env.CreateMemorial(token, "Draft Share")
	w = env.Request(http.MethodPost, "/api/memorials/"+draft.ID+"/share", map[string]string{"channel": "share"}, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
