package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/services"
	appErrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/response"
)

// MemorialHandler exposes memorial authoring, the public directory and the slug lookup.
type MemorialHandler struct {
	memorials *services.MemorialService
	lookup    *services.MemorialLookupService
	qr        *services.QRService
}

// NewMemorialHandler constructs the handler.
func NewMemorialHandler(memorials *services.MemorialService, lookup *services.MemorialLookupService, qr *services.QRService) *MemorialHandler {
	return &MemorialHandler{memorials: memorials, lookup: lookup, qr: qr}
}

type createMemorialRequest struct {
	SubjectName  string         `json:"subjectName" validate:"required,max=100"`
	Type         string         `json:"type" validate:"required,oneof=PERSON PET"`
	IsPublic     *bool          `json:"isPublic"`
	BirthDate    string         `json:"birthDate"`
	DeathDate    string         `json:"deathDate"`
	Epitaph      string         `json:"epitaph" validate:"max=255"`
	Biography    string         `json:"biography" validate:"max=20000"`
	Relationship string         `json:"relationship" validate:"max=64"`
	Species      string         `json:"species" validate:"max=64"`
	Breed        string         `json:"breed" validate:"max=64"`
	CoverImage   string         `json:"coverImage" validate:"omitempty,max=512"`
	Profile      map[string]any `json:"profile"`
	Tags         []string       `json:"tags" validate:"max=10,dive,max=32"`
}

type updateMemorialRequest struct {
	SubjectName  *string        `json:"subjectName" validate:"omitempty,max=100"`
	IsPublic     *bool          `json:"isPublic"`
	BirthDate    *string        `json:"birthDate"`
	DeathDate    *string        `json:"deathDate"`
	Epitaph      *string        `json:"epitaph" validate:"omitempty,max=255"`
	Biography    *string        `json:"biography" validate:"omitempty,max=20000"`
	Obituary     *string        `json:"obituary" validate:"omitempty,max=20000"`
	Relationship *string        `json:"relationship" validate:"omitempty,max=64"`
	Species      *string        `json:"species" validate:"omitempty,max=64"`
	Breed        *string        `json:"breed" validate:"omitempty,max=64"`
	CoverImage   *string        `json:"coverImage" validate:"omitempty,max=512"`
	Profile      map[string]any `json:"profile"`
}

type shareRequest struct {
	Channel string `json:"channel" validate:"required,oneof=share link_copy qr_view"`
}

type setTagsRequest struct {
	Tags []string `json:"tags" validate:"max=10,dive,max=32"`
}

// GET /api/memorials/slug/:slug
func (h *MemorialHandler) BySlug(c *gin.Context) {
	memorial, err := h.lookup.Resolve(requestContext(c), c.Param("slug"))
	if err != nil {
		response.SetCacheControl(c, response.CacheNone)
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CacheMemorialDetail)
	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// GET /api/memorials
func (h *MemorialHandler) ListPublic(c *gin.Context) {
	page, perPage := pagination(c)
	memorialType := models.MemorialType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	if memorialType != "" && !memorialType.Valid() {
		response.Error(c, appErrors.NewBadRequest("纪念类型无效"))
		return
	}

	result, err := h.memorials.ListPublic(requestContext(c), services.PublicListOptions{
		Page:     page,
		PageSize: perPage,
		Type:     memorialType,
		Tag:      c.Query("tag"),
		Query:    c.Query("q"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CacheMemorialList)
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"memorials": result.Items}, response.NewMeta(result.Page, result.Size, result.Total))
}

// GET /api/memorials/mine
func (h *MemorialHandler) ListMine(c *gin.Context) {
	page, perPage := pagination(c)
	result, err := h.memorials.ListMine(requestContext(c), actorFromContext(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CachePrivate)
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"memorials": result.Items}, response.NewMeta(result.Page, result.Size, result.Total))
}

// POST /api/memorials
func (h *MemorialHandler) Create(c *gin.Context) {
	var req createMemorialRequest
	if !bindAndValidate(c, &req) {
		return
	}

	birth, err := parseDate("birthDate", req.BirthDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	death, err := parseDate("deathDate", req.DeathDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	memorial, err := h.memorials.Create(requestContext(c), actorFromContext(c), services.CreateMemorialInput{
		SubjectName:  req.SubjectName,
		Type:         models.MemorialType(req.Type),
		IsPublic:     req.IsPublic,
		BirthDate:    birth,
		DeathDate:    death,
		Epitaph:      req.Epitaph,
		Biography:    req.Biography,
		Relationship: req.Relationship,
		Species:      req.Species,
		Breed:        req.Breed,
		CoverImage:   req.CoverImage,
		Profile:      req.Profile,
		Tags:         req.Tags,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"memorial": memorial})
}

// GET /api/memorials/:id
func (h *MemorialHandler) Get(c *gin.Context) {
	memorial, err := h.memorials.Get(requestContext(c), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CachePrivate)
	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// PATCH /api/memorials/:id
func (h *MemorialHandler) Update(c *gin.Context) {
	var req updateMemorialRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateMemorialInput{
		SubjectName:  req.SubjectName,
		IsPublic:     req.IsPublic,
		Epitaph:      req.Epitaph,
		Biography:    req.Biography,
		Obituary:     req.Obituary,
		Relationship: req.Relationship,
		Species:      req.Species,
		Breed:        req.Breed,
		CoverImage:   req.CoverImage,
		Profile:      req.Profile,
	}
	if req.BirthDate != nil {
		birth, err := parseDate("birthDate", *req.BirthDate)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.BirthDate = birth
	}
	if req.DeathDate != nil {
		death, err := parseDate("deathDate", *req.DeathDate)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.DeathDate = death
	}

	memorial, err := h.memorials.Update(requestContext(c), actorFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// POST /api/memorials/:id/publish
func (h *MemorialHandler) Publish(c *gin.Context) {
	memorial, err := h.memorials.Publish(requestContext(c), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// POST /api/memorials/:id/archive
func (h *MemorialHandler) Archive(c *gin.Context) {
	memorial, err := h.memorials.Archive(requestContext(c), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"memorial": memorial})
}

// DELETE /api/memorials/:id
func (h *MemorialHandler) Delete(c *gin.Context) {
	if err := h.memorials.Delete(requestContext(c), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/memorials/:id/share
func (h *MemorialHandler) Share(c *gin.Context) {
	var req shareRequest
	if !bindAndValidate(c, &req) {
		return
	}

	memorial, err := h.memorials.RecordShare(requestContext(c), c.Param("id"), services.ShareChannel(req.Channel))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"shareCount":    memorial.ShareCount,
		"linkCopyCount": memorial.LinkCopyCount,
		"qrViewCount":   memorial.QRViewCount,
		"url":           h.qr.PublicURL(memorial.Slug),
	})
}

// GET /api/memorials/:id/qrcode
func (h *MemorialHandler) QRCode(c *gin.Context) {
	png, err := h.qr.MemorialQRCode(requestContext(c), c.Param("id"), parseIntQuery(c, "size", services.DefaultQRSize))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CachePrivate)
	c.Data(http.StatusOK, "image/png", png)
}

// PUT /api/memorials/:id/tags
func (h *MemorialHandler) SetTags(c *gin.Context) {
	var req setTagsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tags, err := h.memorials.SetTags(requestContext(c), actorFromContext(c), c.Param("id"), req.Tags)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tags": tags})
}

// GET /api/tags
func (h *MemorialHandler) ListTags(c *gin.Context) {
	tags, err := h.memorials.ListTags(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SetCacheControl(c, response.CacheMemorialList)
	response.Success(c, http.StatusOK, gin.H{"tags": tags})
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Blank input means unset.
func parseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, appErrors.NewBadRequest(field + " 日期格式无效，应为 YYYY-MM-DD")
}
