package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eternalmemory/eternal/internal/handlers/testutil"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
)

func TestAdminHandler_StatsRequiresModerator(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	_, moderator := env.UserToken(models.RoleModerator)

	env.PublishMemorial(owner, "Counted One")
	env.CreateMemorial(owner, "Counted Draft")

	w := env.Request(http.MethodGet, "/api/admin/stats", nil, owner)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/stats", nil, moderator)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))

	var payload struct {
		Stats services.Stats `json:"stats"`
	}
	testutil.DecodeInto(t, w, &payload)
	require.GreaterOrEqual(t, payload.Stats.Users, int64(2))
	require.Equal(t, int64(1), payload.Stats.Memorials[models.StatusPublished])
	require.Equal(t, int64(1), payload.Stats.Memorials[models.StatusDraft])
}

func TestAdminHandler_MemorialStatusOverride(t *testing.T) {
	env := testutil.NewEnv(t)
	_, owner := env.UserToken(models.RoleUser)
	_, moderator := env.UserToken(models.RoleModerator)
	_, admin := env.UserToken(models.RoleAdmin)
	memorial := env.PublishMemorial(owner, "Override Me")

	body := map[string]string{"status": "ARCHIVED"}
	w := env.Request(http.MethodPost, "/api/admin/memorials/"+memorial.ID+"/status", body, moderator)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPost, "/api/admin/memorials/"+memorial.ID+"/status", body, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var row models.Memorial
	require.NoError(t, env.DB.First(&row, "id = ?", memorial.ID).Error)
	require.Equal(t, models.StatusArchived, row.Status)

	w = env.Request(http.MethodGet, "/api/memorials/slug/"+memorial.Slug, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPost, "/api/admin/memorials/"+memorial.ID+"/status", map[string]string{"status": "GONE"}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/memorials?status=ARCHIVED", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Memorials []models.Memorial `json:"memorials"`
	}
	testutil.DecodeInto(t, w, &list)
	require.Len(t, list.Memorials, 1)
	require.Equal(t, memorial.ID, list.Memorials[0].ID)

	w = env.Request(http.MethodGet, "/api/admin/memorials?status=bogus", nil, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_RoleChanges(t *testing.T) {
	env := testutil.NewEnv(t)
	target, _ := env.UserToken(models.RoleUser)
	admin, adminToken := env.UserToken(models.RoleAdmin)
	_, superToken := env.UserToken(models.RoleSuperAdmin)

	path := "/api/admin/users/" + target.ID + "/role"

	w := env.Request(http.MethodPatch, path, map[string]string{"role": "MODERATOR"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPatch, path, map[string]string{"role": "ADMIN"}, adminToken)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "ROLE_ESCALATION", testutil.DecodeError(t, w).Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+admin.ID+"/role", map[string]string{"role": "USER"}, adminToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPatch, path, map[string]string{"role": "ADMIN"}, superToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stored models.User
	require.NoError(t, env.DB.First(&stored, "id = ?", target.ID).Error)
	require.Equal(t, models.RoleAdmin, stored.Role)

	w = env.Request(http.MethodPatch, path, map[string]string{"role": "EMPEROR"}, superToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/users?role=ADMIN", nil, superToken)
	require.Equal(t, http.StatusOK, w.Code)
	var users struct {
		Users []models.User `json:"users"`
	}
	testutil.DecodeInto(t, w, &users)
	ids := make([]string, 0, len(users.Users))
	for _, u := range users.Users {
		ids = append(ids, u.ID)
	}
	require.Contains(t, ids, target.ID)
	require.Contains(t, ids, admin.ID)

	w = env.Request(http.MethodGet, "/api/admin/audit?action=user.role.change", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var audit struct {
		Logs []models.AuditLog `json:"logs"`
	}
	testutil.DecodeInto(t, w, &audit)
	require.GreaterOrEqual(t, len(audit.Logs), 3)
}

func TestAdminHandler_UserCannotListUsers(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.UserToken(models.RoleModerator)

	w := env.Request(http.MethodGet, "/api/admin/users", nil, token)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/api/admin/audit", nil, token)
	require.Equal(t, http.StatusForbidden, w.Code)
}
