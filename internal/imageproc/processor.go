package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

const (
	DefaultMaxDimension  = 2048
	DefaultThumbnailSize = 320
	DefaultJPEGQuality   = 85
	DefaultMaxBytes      = 10 << 20
)

// ErrUnsupportedImage is returned when the upload is not a decodable image.
var ErrUnsupportedImage = errors.New("imageproc: unsupported image")

// ErrTooLarge is returned when the upload exceeds MaxBytes.
var ErrTooLarge = errors.New("imageproc: image too large")

// Options bounds the processing pipeline. Zero values fall back to the defaults.
type Options struct {
	MaxBytes      int64
	MaxDimension  int
	ThumbnailSize int
	JPEGQuality   int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.ThumbnailSize <= 0 {
		o.ThumbnailSize = DefaultThumbnailSize
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	return o
}

// Result holds the re-encoded image and its square thumbnail, both JPEG.
type Result struct {
	Image     []byte
	Thumbnail []byte
	Width     int
	Height    int
	MimeType  string
}

// Processor decodes uploads, bounds their size and produces thumbnails.
type Processor struct {
	opts Options
}

// NewProcessor constructs a Processor.
func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts.withDefaults()}
}

// MaxBytes reports the upload size limit.
func (p *Processor) MaxBytes() int64 {
	return p.opts.MaxBytes
}

// Process reads at most MaxBytes from r and returns the normalised image. EXIF
// orientation is applied before resizing and metadata is dropped by re-encoding.
func (p *Processor) Process(r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(io.LimitReader(r, p.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("imageproc: read: %w", err)
	}
	if int64(len(raw)) > p.opts.MaxBytes {
		return nil, ErrTooLarge
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrUnsupportedImage
	}
	// Refuse decompression bombs before allocating the full bitmap.
	if cfg.Width*cfg.Height > 64_000_000 {
		return nil, ErrTooLarge
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrUnsupportedImage
	}

	bounds := img.Bounds()
	if bounds.Dx() > p.opts.MaxDimension || bounds.Dy() > p.opts.MaxDimension {
		img = imaging.Fit(img, p.opts.MaxDimension, p.opts.MaxDimension, imaging.Lanczos)
	}

	full, err := p.encode(img)
	if err != nil {
		return nil, err
	}
	thumb, err := p.encode(imaging.Thumbnail(img, p.opts.ThumbnailSize, p.opts.ThumbnailSize, imaging.Lanczos))
	if err != nil {
		return nil, err
	}

	bounds = img.Bounds()
	return &Result{
		Image:     full,
		Thumbnail: thumb,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		MimeType:  "image/jpeg",
	}, nil
}

func (p *Processor) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("imageproc: encode: %w", err)
	}
	return buf.Bytes(), nil
}
