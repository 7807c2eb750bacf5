package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"playhub/internal/config"
	"playhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Upload{}, &models.ImageVariant{}))

	root := t.TempDir()
	cfg := &config.Config{
		UploadPublicRoot:  root + "/public",
		UploadPrivateRoot: root + "/private",
	}
	return NewService(db, cfg), db
}

func tinyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestIngest_RejectsEmptyContent(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Ingest(context.Background(), IngestInput{Filename: "a.png", Content: nil})
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestIngest_StoresFileAndDetectsMIME(t *testing.T) {
	s, db := newTestService(t)
	content := tinyPNG(t, 50, 50)

	upload, err := s.Ingest(context.Background(), IngestInput{
		Filename: "photo.png",
		Content:  content,
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", upload.MimeType)
	assert.Equal(t, models.StoragePublic, upload.StorageType)
	assert.NotEmpty(t, upload.UUID)

	var reloaded models.Upload
	require.NoError(t, db.First(&reloaded, upload.ID).Error)
	assert.Equal(t, upload.UUID, reloaded.UUID)

	full := s.rootFor(upload.StorageType) + "/" + upload.StoragePath
	_, statErr := os.Stat(full)
	assert.NoError(t, statErr)
}

func TestIngest_GeneratesFullVariantForImages(t *testing.T) {
	s, _ := newTestService(t)
	content := tinyPNG(t, 50, 50)

	upload, err := s.Ingest(context.Background(), IngestInput{Filename: "photo.png", Content: content})
	require.NoError(t, err)
	require.NotEmpty(t, upload.Variants)

	var full *models.ImageVariant
	for i := range upload.Variants {
		if upload.Variants[i].VariantName == models.VariantFull {
			full = &upload.Variants[i]
		}
	}
	require.NotNil(t, full)
	assert.Equal(t, 50, full.Width)
	assert.Equal(t, 50, full.Height)
}

func TestIngest_SkipsUpscalingSmallerVariants(t *testing.T) {
	s, _ := newTestService(t)
	content := tinyPNG(t, 50, 50)

	upload, err := s.Ingest(context.Background(), IngestInput{Filename: "photo.png", Content: content})
	require.NoError(t, err)

	for _, v := range upload.Variants {
		assert.NotEqual(t, models.VariantThumb, v.VariantName, "a 50x50 source should never produce an upscaled thumb variant")
	}
}

func TestResolve_FallsBackWhenPrimaryVariantMissing(t *testing.T) {
	s, _ := newTestService(t)
	content := tinyPNG(t, 50, 50)
	ingested, err := s.Ingest(context.Background(), IngestInput{Filename: "photo.png", Content: content})
	require.NoError(t, err)

	upload, path, err := s.Resolve(context.Background(), ingested.UUID, models.VariantThumb)
	require.NoError(t, err)
	assert.Equal(t, ingested.UUID, upload.UUID)
	assert.NotEmpty(t, path)
}

func TestResolve_NotFoundForUnknownUUID(t *testing.T) {
	s, _ := newTestService(t)
	_, _, err := s.Resolve(context.Background(), "does-not-exist", models.VariantFull)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDelete_RemovesRowAndFiles(t *testing.T) {
	s, db := newTestService(t)
	content := tinyPNG(t, 50, 50)
	ingested, err := s.Ingest(context.Background(), IngestInput{Filename: "photo.png", Content: content})
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), ingested.UUID))

	var count int64
	require.NoError(t, db.Model(&models.Upload{}).Where("uuid = ?", ingested.UUID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	full := s.rootFor(ingested.StorageType) + "/" + ingested.StoragePath
	_, statErr := os.Stat(full)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDelete_NotFoundForUnknownUUID(t *testing.T) {
	s, _ := newTestService(t)
	err := s.Delete(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestIsImageMIME(t *testing.T) {
	assert.True(t, isImageMIME("image/png"))
	assert.True(t, isImageMIME("image/jpeg; charset=binary"))
	assert.False(t, isImageMIME("application/pdf"))
}

func TestExtensionForMIME(t *testing.T) {
	assert.Equal(t, ".png", extensionForMIME("image/png"))
	assert.Equal(t, ".jpg", extensionForMIME("image/jpeg"))
	assert.Equal(t, "", extensionForMIME("application/pdf"))
}
