package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/auth"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/pkg/crypto"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
)

// RegisterInput describes the fields accepted when creating an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Query    string
	Role     models.Role
}

// UserService manages accounts, credentials and roles.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:    db,
		audit: audit,
		now:   time.Now,
		log:   logger.WithModule("users"),
	}, nil
}

// Register creates a local account with a hashed password.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return nil, apperrors.NewBadRequest("邮箱不能为空")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("昵称不能为空")
	}
	if len(input.Password) < crypto.MinPasswordLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("密码至少需要 %d 位", crypto.MinPasswordLength))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Name:     name,
		Password: hashed,
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("register", "success").Inc()
	return user, nil
}

// Authenticate checks email and password and records the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("password", "disabled").Inc()
		return nil, ErrAccountDisabled
	}

	s.touchLogin(ctx, &user)
	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()
	return &user, nil
}

// UpsertGoogleUser links a verified Google identity to an account, creating one on first
// sign-in. An existing local account with the same verified email is linked, not duplicated.
func (s *UserService) UpsertGoogleUser(ctx context.Context, identity *auth.GoogleIdentity) (*models.User, error) {
	ctx = ensureContext(ctx)
	if identity == nil || strings.TrimSpace(identity.Subject) == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if identity.Email == "" || !identity.EmailVerified {
		metrics.AuthAttempts.WithLabelValues("google", "unverified").Inc()
		return nil, apperrors.ErrUnauthorized.WithMessage("Google 账号邮箱未验证")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Take(&user, "google_id = ?", identity.Subject).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = tx.Take(&user, "email = ?", identity.Email).Error
		switch {
		case err == nil:
			user.GoogleID = &identity.Subject
			if user.Avatar == "" {
				user.Avatar = identity.Picture
			}
			return tx.Model(&user).Updates(map[string]any{"google_id": identity.Subject, "avatar": user.Avatar}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			name := identity.Name
			if name == "" {
				name = strings.SplitN(identity.Email, "@", 2)[0]
			}
			user = models.User{
				Email:    identity.Email,
				Name:     name,
				Avatar:   identity.Picture,
				GoogleID: &identity.Subject,
				Role:     models.RoleUser,
				IsActive: true,
			}
			return tx.Create(&user).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("user service: upsert google user: %w", err)
	}

	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("google", "disabled").Inc()
		return nil, ErrAccountDisabled
	}

	s.touchLogin(ctx, &user)
	metrics.AuthAttempts.WithLabelValues("google", "success").Inc()
	return &user, nil
}

// GetByID returns a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List returns users for the admin console.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if opts.Role != "" {
		query = query.Where("role = ?", opts.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset((page - 1) * perPage).Limit(perPage).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}

// ChangeRole moves a user within the hierarchy. Only SUPER_ADMIN may grant a role at or
// above its own or touch another SUPER_ADMIN; nobody may change their own role.
func (s *UserService) ChangeRole(ctx context.Context, actor Actor, targetID string, role models.Role) (*models.User, error) {
	ctx = ensureContext(ctx)

	if role.Rank() == 0 {
		return nil, apperrors.NewBadRequest("无效的角色")
	}
	if !actor.AtLeast(models.RoleAdmin) {
		return nil, apperrors.ErrForbidden
	}
	if actor.ID == targetID {
		return nil, apperrors.ErrForbidden.WithMessage("不能修改自己的角色")
	}

	target, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if actor.Role != models.RoleSuperAdmin {
		if role.Rank() >= actor.Role.Rank() || target.Role.Rank() >= actor.Role.Rank() {
			s.auditRole(ctx, actor, target.ID, target.Role, role, AuditDenied)
			return nil, ErrRoleEscalation
		}
	}

	previous := target.Role
	if err := s.db.WithContext(ctx).Model(target).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("user service: update role: %w", err)
	}
	target.Role = role

	s.log.Info("role changed",
		zap.String("actor_id", actor.ID),
		zap.String("user_id", target.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(role)),
	)
	s.auditRole(ctx, actor, target.ID, previous, role, AuditSuccess)
	return target, nil
}

func (s *UserService) auditRole(ctx context.Context, actor Actor, targetID string, from, to models.Role, result string) {
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  actor.ID,
		Action:   "user.role.change",
		Resource: "user",
		TargetID: targetID,
		Result:   result,
		Metadata: map[string]any{"from": from, "to": to},
	})
}

func (s *UserService) touchLogin(ctx context.Context, user *models.User) {
	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		s.log.Warn("failed to record login time", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.LastLoginAt = &now
}
