package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	DefaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// QRService renders share QR codes that point at a memorial's public page.
type QRService struct {
	memorials *MemorialService
	publicURL string
}

// NewQRService constructs a QRService. publicURL is the site origin, e.g. https://example.com.
func NewQRService(memorials *MemorialService, publicURL string) (*QRService, error) {
	if memorials == nil {
		return nil, errors.New("qr service: memorial service is required")
	}
	return &QRService{memorials: memorials, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// PublicURL returns the canonical URL of the memorial page for slug.
func (s *QRService) PublicURL(slug string) string {
	return s.publicURL + "/m/" + url.PathEscape(slug)
}

// MemorialQRCode returns a PNG QR code for a visible memorial and counts a qr_view.
func (s *QRService) MemorialQRCode(ctx context.Context, memorialID string, size int) ([]byte, error) {
	switch {
	case size <= 0:
		size = DefaultQRSize
	case size < minQRSize:
		size = minQRSize
	case size > maxQRSize:
		size = maxQRSize
	}

	memorial, err := s.memorials.RecordShare(ctx, memorialID, ShareQRView)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(s.PublicURL(memorial.Slug), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr service: encode: %w", err)
	}
	return png, nil
}
