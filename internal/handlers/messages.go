package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/response"
)

// MessageHandler serves the guestbook and its moderation queue.
type MessageHandler struct {
	messages *services.MessageService
}

// NewMessageHandler constructs the handler.
func NewMessageHandler(messages *services.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type postMessageRequest struct {
	GuestName string `json:"guestName" validate:"max=64"`
	Content   string `json:"content" validate:"required,max=2000"`
}

// GET /api/memorials/:id/messages
func (h *MessageHandler) List(c *gin.Context) {
	page, perPage := pagination(c)
	result, err := h.messages.ListApproved(requestContext(c), c.Param("id"), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"messages": result.Items}, response.NewMeta(result.Page, result.Size, result.Total))
}

// POST /api/memorials/:id/messages
func (h *MessageHandler) Post(c *gin.Context) {
	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	message, err := h.messages.Post(requestContext(c), actorFromContext(c), c.Param("id"), services.PostMessageInput{
		GuestName: req.GuestName,
		Content:   req.Content,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": message,
		"pending": message.Status == models.MessagePending,
	})
}

// GET /api/admin/messages
func (h *MessageHandler) Queue(c *gin.Context) {
	status := models.MessageStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", models.MessagePending, models.MessageApproved, models.MessageRejected:
	default:
		response.Error(c, appErrors.NewBadRequest("无效的留言状态"))
		return
	}

	page, perPage := pagination(c)
	result, err := h.messages.ListByStatus(requestContext(c), status, page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"messages": result.Items}, response.NewMeta(result.Page, result.Size, result.Total))
}

// POST /api/admin/messages/:id/approve
func (h *MessageHandler) Approve(c *gin.Context) {
	h.moderate(c, models.MessageApproved)
}

// POST /api/admin/messages/:id/reject
func (h *MessageHandler) Reject(c *gin.Context) {
	h.moderate(c, models.MessageRejected)
}

func (h *MessageHandler) moderate(c *gin.Context, status models.MessageStatus) {
	message, err := h.messages.Moderate(requestContext(c), actorFromContext(c), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": message})
}
