package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/services"
	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/response"
)

// multipartOverhead leaves room for form boundaries and the caption field.
const multipartOverhead = 1 << 20

// ImageHandler handles memorial photo uploads.
type ImageHandler struct {
	images *services.ImageService
}

// NewImageHandler constructs the handler.
func NewImageHandler(images *services.ImageService) *ImageHandler {
	return &ImageHandler{images: images}
}

// POST /api/memorials/:id/images
func (h *ImageHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.images.MaxUploadBytes()+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.NewBadRequest("请选择要上传的图片"))
		return
	}
	if header.Size > h.images.MaxUploadBytes() {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("无法读取上传的文件"))
		return
	}
	defer file.Close()

	image, err := h.images.Upload(requestContext(c), actorFromContext(c), c.Param("id"), file, c.PostForm("caption"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"image": image})
}

// DELETE /api/memorials/:id/images/:imageID
func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.images.Delete(requestContext(c), actorFromContext(c), c.Param("id"), c.Param("imageID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/memorials/:id/images/:imageID/main
func (h *ImageHandler) SetMain(c *gin.Context) {
	image, err := h.images.SetMain(requestContext(c), actorFromContext(c), c.Param("id"), c.Param("imageID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"image": image})
}
