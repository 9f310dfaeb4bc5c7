package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/database/testutil"
	"github.com/eternalmemory/eternal/internal/models"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

func newUserService(t *testing.T) (*gorm.DB, *UserService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewUserService(db, audit)
	require.NoError(t, err)
	return db, svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	_, svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: " Li@Example.com ", Password: "s3cret-pass", Name: "小李"})
	require.NoError(t, err)
	require.Equal(t, "li@example.com", user.Email)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotEqual(t, "s3cret-pass", user.Password)

	_, err = svc.Register(ctx, RegisterInput{Email: "li@example.com", Password: "another-pass", Name: "dup"})
	require.ErrorIs(t, err, ErrEmailTaken)

	authed, err := svc.Authenticate(ctx, "LI@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, user.ID, authed.ID)
	require.NotNil(t, authed.LastLoginAt)

	_, err = svc.Authenticate(ctx, "li@example.com", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	_, svc := newUserService(t)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "short", Name: "a"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestAuthenticateRejectsDisabledAccount(t *testing.T) {
	db, svc := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Email: "off@example.com", Password: "s3cret-pass", Name: "off"})
	require.NoError(t, err)
	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, err = svc.Authenticate(ctx, "off@example.com", "s3cret-pass")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestUpsertGoogleUserLinksExistingAccount(t *testing.T) {
	_, svc := newUserService(t)
	ctx := context.Background()

	local, err := svc.Register(ctx, RegisterInput{Email: "g@example.com", Password: "s3cret-pass", Name: "G"})
	require.NoError(t, err)

	identity := &auth.GoogleIdentity{Subject: "sub-1", Email: "g@example.com", EmailVerified: true, Name: "G", Picture: "https://img/g.png"}
	linked, err := svc.UpsertGoogleUser(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, local.ID, linked.ID)
	require.NotNil(t, linked.GoogleID)

	again, err := svc.UpsertGoogleUser(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, local.ID, again.ID)

	fresh, err := svc.UpsertGoogleUser(ctx, &auth.GoogleIdentity{Subject: "sub-2", Email: "new@example.com", EmailVerified: true})
	require.NoError(t, err)
	require.Equal(t, "new", fresh.Name)
	require.Empty(t, fresh.Password)

	_, err = svc.UpsertGoogleUser(ctx, &auth.GoogleIdentity{Subject: "sub-3", Email: "x@example.com"})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestChangeRoleEnforcesHierarchy(t *testing.T) {
	db, svc := newUserService(t)
	ctx := context.Background()

	super := seedUser(t, db, "super@example.com", models.RoleSuperAdmin)
	admin := seedUser(t, db, "admin@example.com", models.RoleAdmin)
	otherAdmin := seedUser(t, db, "admin2@example.com", models.RoleAdmin)
	member := seedUser(t, db, "member@example.com", models.RoleUser)

	adminActor := Actor{ID: admin.ID, Role: admin.Role}

	updated, err := svc.ChangeRole(ctx, adminActor, member.ID, models.RoleModerator)
	require.NoError(t, err)
	require.Equal(t, models.RoleModerator, updated.Role)

	_, err = svc.ChangeRole(ctx, adminActor, member.ID, models.RoleAdmin)
	require.ErrorIs(t, err, ErrRoleEscalation)

	_, err = svc.ChangeRole(ctx, adminActor, otherAdmin.ID, models.RoleUser)
	require.ErrorIs(t, err, ErrRoleEscalation)

	_, err = svc.ChangeRole(ctx, adminActor, super.ID, models.RoleUser)
	require.ErrorIs(t, err, ErrRoleEscalation)

	_, err = svc.ChangeRole(ctx, adminActor, admin.ID, models.RoleUser)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.ChangeRole(ctx, Actor{ID: member.ID, Role: models.RoleModerator}, otherAdmin.ID, models.RoleUser)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	promoted, err := svc.ChangeRole(ctx, Actor{ID: super.ID, Role: super.Role}, otherAdmin.ID, models.RoleSuperAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleSuperAdmin, promoted.Role)

	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", "user.role.change").Find(&logs).Error)
	require.Len(t, logs, 5)
}
