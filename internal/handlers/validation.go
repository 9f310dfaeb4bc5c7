package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/response"
	appValidator "github.com/eternalmemory/eternal/pkg/validator"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("请求格式无效"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "请求参数无效"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := failure.Field
		if field == "" {
			field = "field"
		}
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s 不能为空", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s 不是有效的邮箱地址", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s 长度不能少于 %s", field, failure.Param))
		case "max":
			messages = append(messages, fmt.Sprintf("%s 长度不能超过 %s", field, failure.Param))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s 必须是 %s 之一", field, failure.Param))
		default:
			messages = append(messages, fmt.Sprintf("%s 校验失败: %s", field, failure.Tag))
		}
	}
	return strings.Join(messages, "; ")
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// pagination reads page and perPage, tolerating the snake_case spelling older clients send.
func pagination(c *gin.Context) (int, int) {
	page := parseIntQuery(c, "page", defaultPage)
	perPage := parseIntQuery(c, "perPage", parseIntQuery(c, "per_page", defaultPerPage))
	if page < 1 {
		page = defaultPage
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
