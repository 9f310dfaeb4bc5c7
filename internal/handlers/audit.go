package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/pkg/response"
)

// AuditHandler lists administrative audit entries.
type AuditHandler struct {
	svc *services.AuditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, perPage := pagination(c)

	filters := services.AuditFilters{
		ActorID:  c.Query("actorId"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
		Resource: c.Query("resource"),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: perPage, Filters: filters})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"logs": logs}, response.NewMeta(page, perPage, total))
}
