package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/eternalmemory/eternal/pkg/errors"
)

var (
	// ErrMemorialNotFound is returned for absent, unpublished or private memorials.
	ErrMemorialNotFound = apperrors.NewNotFound("MEMORIAL_NOT_FOUND", "纪念页不存在")
	// ErrMemorialLookupFailed is the generic failure surfaced for the public slug lookup.
	ErrMemorialLookupFailed = apperrors.New("MEMORIAL_LOOKUP_FAILED", "获取纪念页失败", http.StatusInternalServerError)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.NewNotFound("USER_NOT_FOUND", "用户不存在")
	// ErrEmailTaken is returned when registering an address that already has an account.
	ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "该邮箱已被注册", http.StatusConflict)
	// ErrAccountDisabled blocks sign-in for deactivated users.
	ErrAccountDisabled = apperrors.New("ACCOUNT_DISABLED", "账号已被停用", http.StatusForbidden)
	// ErrMessageNotFound indicates the guestbook message does not exist.
	ErrMessageNotFound = apperrors.NewNotFound("MESSAGE_NOT_FOUND", "留言不存在")
	// ErrImageNotFound indicates the image does not belong to the memorial.
	ErrImageNotFound = apperrors.NewNotFound("IMAGE_NOT_FOUND", "图片不存在")
	// ErrInvalidStatusTransition rejects lifecycle moves the state machine does not allow.
	ErrInvalidStatusTransition = apperrors.New("INVALID_STATUS_TRANSITION", "当前状态不允许此操作", http.StatusConflict)
	// ErrRoleEscalation prevents granting a role the actor does not outrank.
	ErrRoleEscalation = apperrors.New("ROLE_ESCALATION", "不能授予不低于自身的角色", http.StatusForbidden)
	// ErrLLMUnavailable is returned when the language model is disabled or failing.
	ErrLLMUnavailable = apperrors.New("LLM_UNAVAILABLE", "AI 服务暂时不可用", http.StatusServiceUnavailable)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}
