package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eternalmemory/eternal/internal/imageproc"
	"github.com/eternalmemory/eternal/internal/models"
	"github.com/eternalmemory/eternal/internal/storage"
	apperrors "github.com/eternalmemory/eternal/pkg/errors"
	"github.com/eternalmemory/eternal/pkg/logger"
	"github.com/eternalmemory/eternal/pkg/metrics"
)

const maxImagesPerMemorial = 50

// ImageService stores memorial photos and their thumbnails.
type ImageService struct {
	db        *gorm.DB
	memorials *MemorialService
	lookup    *MemorialLookupService
	store     storage.Store
	processor *imageproc.Processor
	now       func() time.Time
	log       *zap.Logger
}

// NewImageService constructs an ImageService.
func NewImageService(db *gorm.DB, memorials *MemorialService, lookup *MemorialLookupService, store storage.Store, processor *imageproc.Processor) (*ImageService, error) {
	switch {
	case db == nil:
		return nil, errors.New("image service: db is required")
	case memorials == nil:
		return nil, errors.New("image service: memorial service is required")
	case store == nil:
		return nil, errors.New("image service: storage is required")
	}
	if processor == nil {
		processor = imageproc.NewProcessor(imageproc.Options{})
	}
	return &ImageService{
		db:        db,
		memorials: memorials,
		lookup:    lookup,
		store:     store,
		processor: processor,
		now:       time.Now,
		log:       logger.WithModule("images"),
	}, nil
}

// MaxUploadBytes reports the upload size limit enforced by the processor.
func (s *ImageService) MaxUploadBytes() int64 {
	return s.processor.MaxBytes()
}

// Upload processes r and attaches the result to a memorial the actor manages. The first
// image of a memorial becomes its main image and cover.
func (s *ImageService) Upload(ctx context.Context, actor Actor, memorialID string, r io.Reader, caption string) (*models.Image, error) {
	ctx = ensureContext(ctx)

	memorial, err := s.memorials.Get(ctx, actor, memorialID)
	if err != nil {
		return nil, err
	}
	if len(memorial.Images) >= maxImagesPerMemorial {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("每个纪念页最多 %d 张图片", maxImagesPerMemorial))
	}

	result, err := s.processor.Process(r)
	if err != nil {
		metrics.ImageUploads.WithLabelValues("rejected").Inc()
		switch {
		case errors.Is(err, imageproc.ErrTooLarge):
			return nil, apperrors.ErrPayloadTooLarge
		case errors.Is(err, imageproc.ErrUnsupportedImage):
			return nil, apperrors.NewBadRequest("不支持的图片格式")
		default:
			return nil, fmt.Errorf("image service: process: %w", err)
		}
	}

	key := storage.ObjectKey("memorials/"+memorial.ID, s.now(), ".jpg")
	thumbKey := strings.TrimSuffix(key, ".jpg") + "_thumb.jpg"

	url, err := s.store.Put(ctx, key, result.Image, result.MimeType)
	if err != nil {
		metrics.ImageUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("image service: store image: %w", err)
	}
	thumbURL, err := s.store.Put(ctx, thumbKey, result.Thumbnail, result.MimeType)
	if err != nil {
		s.discard(ctx, key)
		metrics.ImageUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("image service: store thumbnail: %w", err)
	}

	image := &models.Image{
		MemorialID:   memorial.ID,
		UploaderID:   actor.ID,
		URL:          url,
		ThumbnailURL: thumbURL,
		StorageKey:   key,
		ThumbKey:     thumbKey,
		Width:        result.Width,
		Height:       result.Height,
		SizeBytes:    int64(len(result.Image)),
		MimeType:     result.MimeType,
		Caption:      strings.TrimSpace(caption),
		IsMain:       len(memorial.Images) == 0,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(image).Error; err != nil {
			return err
		}
		if image.IsMain && memorial.CoverImage == "" {
			return tx.Model(&models.Memorial{}).Where("id = ?", memorial.ID).Update("cover_image", url).Error
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, key, thumbKey)
		metrics.ImageUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("image service: save: %w", err)
	}

	metrics.ImageUploads.WithLabelValues("success").Inc()
	s.lookup.Invalidate(ctx, memorial.Slug)
	return image, nil
}

// Delete removes an image and its objects. When the main image goes, the oldest
// remaining image takes its place.
func (s *ImageService) Delete(ctx context.Context, actor Actor, memorialID, imageID string) error {
	ctx = ensureContext(ctx)

	memorial, image, err := s.find(ctx, actor, memorialID, imageID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Image{}, "id = ?", image.ID).Error; err != nil {
			return err
		}
		if !image.IsMain {
			return nil
		}

		var next models.Image
		err := tx.Where("memorial_id = ?", memorial.ID).Order("created_at ASC").Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if memorial.CoverImage == image.URL {
				return tx.Model(&models.Memorial{}).Where("id = ?", memorial.ID).Update("cover_image", "").Error
			}
			return nil
		}
		if err != nil {
			return err
		}
		return promote(tx, memorial, &next)
	})
	if err != nil {
		return fmt.Errorf("image service: delete: %w", err)
	}

	s.discard(ctx, image.StorageKey, image.ThumbKey)
	s.lookup.Invalidate(ctx, memorial.Slug)
	return nil
}

// SetMain marks an image as the main image and uses it as the cover.
func (s *ImageService) SetMain(ctx context.Context, actor Actor, memorialID, imageID string) (*models.Image, error) {
	ctx = ensureContext(ctx)

	memorial, image, err := s.find(ctx, actor, memorialID, imageID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return promote(tx, memorial, image)
	}); err != nil {
		return nil, fmt.Errorf("image service: set main: %w", err)
	}

	image.IsMain = true
	s.lookup.Invalidate(ctx, memorial.Slug)
	return image, nil
}

func (s *ImageService) find(ctx context.Context, actor Actor, memorialID, imageID string) (*models.Memorial, *models.Image, error) {
	memorial, err := s.memorials.Get(ctx, actor, memorialID)
	if err != nil {
		return nil, nil, err
	}
	for i := range memorial.Images {
		if memorial.Images[i].ID == imageID {
			return memorial, &memorial.Images[i], nil
		}
	}
	return nil, nil, ErrImageNotFound
}

func (s *ImageService) discard(ctx context.Context, keys ...string) {
	var present []string
	for _, key := range keys {
		if key != "" {
			present = append(present, key)
		}
	}
	if err := s.store.Delete(ctx, present...); err != nil {
		s.log.Warn("failed to remove stored objects", zap.Strings("keys", present), zap.Error(err))
	}
}

func promote(tx *gorm.DB, memorial *models.Memorial, image *models.Image) error {
	if err := tx.Model(&models.Image{}).
		Where("memorial_id = ? AND id <> ?", memorial.ID, image.ID).
		Update("is_main", false).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Image{}).Where("id = ?", image.ID).Update("is_main", true).Error; err != nil {
		return err
	}
	return tx.Model(&models.Memorial{}).Where("id = ?", memorial.ID).Update("cover_image", image.URL).Error
}
