package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/eternalmemory/eternal/pkg/errors"
)

// ErrorBody is the payload written for failed requests.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Meta describes pagination metadata.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewMeta computes pagination metadata for a page of results.
func NewMeta(page, perPage int, total int64) *Meta {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Meta{Page: page, PerPage: perPage, Total: total, TotalPages: pages}
}

// Success writes payload merged with "success": true. Payload keys name the resource,
// e.g. gin.H{"memorial": m}.
func Success(c *gin.Context, statusCode int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

// SuccessWithMeta writes a success payload including pagination metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, payload gin.H, meta *Meta) {
	body := gin.H{"success": true, "meta": meta}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

// Error writes the error envelope derived from err. Non AppErrors become a generic 500.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
