package services

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorialQRCode(t *testing.T) {
	f := newMemorialFixture(t)
	svc, err := NewQRService(f.svc, "https://eternal.example.com/")
	require.NoError(t, err)
	memorial := f.createPublished(t, "张三")

	publicURL := svc.PublicURL(memorial.Slug)
	require.True(t, strings.HasPrefix(publicURL, "https://eternal.example.com/m/%E5%BC%A0%E4%B8%89-"), publicURL)

	data, err := svc.MemorialQRCode(context.Background(), memorial.ID, 10)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, minQRSize, img.Bounds().Dx())

	require.EqualValues(t, 1, reloadMemorial(t, f.db, memorial.ID).QRViewCount)

	_, err = svc.MemorialQRCode(context.Background(), "missing", 0)
	require.ErrorIs(t, err, ErrMemorialNotFound)
}
