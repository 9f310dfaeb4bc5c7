package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/pkg/response"
)

// AIHandler serves obituary drafting and digital life conversations.
type AIHandler struct {
	ai *services.AIService
}

// NewAIHandler constructs the handler.
func NewAIHandler(ai *services.AIService) *AIHandler {
	return &AIHandler{ai: ai}
}

type obituaryRequest struct {
	Tone  string `json:"tone" validate:"max=32"`
	Notes string `json:"notes" validate:"max=8000"`
	Save  bool   `json:"save"`
}

type chatRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// POST /api/memorials/:id/obituary
func (h *AIHandler) DraftObituary(c *gin.Context) {
	var req obituaryRequest
	if !bindAndValidate(c, &req) {
		return
	}

	text, err := h.ai.DraftObituary(requestContext(c), actorFromContext(c), c.Param("id"), services.ObituaryInput{
		Tone:  req.Tone,
		Notes: req.Notes,
		Save:  req.Save,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"obituary": text, "saved": req.Save})
}

// POST /api/memorials/:id/digital-life
func (h *AIHandler) Chat(c *gin.Context) {
	var req chatRequest
	if !bindAndValidate(c, &req) {
		return
	}

	reply, err := h.ai.Chat(requestContext(c), actorFromContext(c), c.Param("id"), req.Content)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reply": reply})
}

// GET /api/memorials/:id/digital-life
func (h *AIHandler) History(c *gin.Context) {
	turns, err := h.ai.History(requestContext(c), actorFromContext(c), c.Param("id"), parseIntQuery(c, "limit", services.DigitalLifeContextTurns))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SetCacheControl(c, response.CachePrivate)
	response.Success(c, http.StatusOK, gin.H{"messages": turns})
}
