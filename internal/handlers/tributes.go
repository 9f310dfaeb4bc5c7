package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/services"
	"github.com/eternalmemory/eternal/pkg/response"
)

// TributeHandler handles candles and likes.
type TributeHandler struct {
	tributes *services.TributeService
}

// NewTributeHandler constructs the handler.
func NewTributeHandler(tributes *services.TributeService) *TributeHandler {
	return &TributeHandler{tributes: tributes}
}

type lightCandleRequest struct {
	GuestName string `json:"guestName" validate:"max=64"`
	Message   string `json:"message" validate:"max=200"`
}

// POST /api/memorials/:id/candles
func (h *TributeHandler) LightCandle(c *gin.Context) {
	var req lightCandleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	candle, err := h.tributes.LightCandle(ctx, actorFromContext(c), c.Param("id"), services.LightCandleInput{
		GuestName: req.GuestName,
		Message:   req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	active, err := h.tributes.ActiveCandles(ctx, candle.MemorialID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"candle": candle, "activeCandles": active})
}

// POST /api/memorials/:id/like
func (h *TributeHandler) ToggleLike(c *gin.Context) {
	result, err := h.tributes.ToggleLike(requestContext(c), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"liked": result.Liked, "likeCount": result.Count})
}
