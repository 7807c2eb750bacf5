// Package upload ingests files (single-shot multipart or chunked), generates
// the named responsive image variants, and serves them back with a
// documented fallback order when the primary rendition is missing on disk.
// The crop/resize/encode pipeline is adapted from
// internal/service/image_service.go; the public/private storage-root split
// and chunked session bookkeeping generalize the same file's upload-dir
// handling to a two-root layout.
package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"playhub/internal/config"
	"playhub/internal/jobqueue"
	"playhub/internal/models"
	"playhub/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
	"gorm.io/gorm"
)

const (
	jpegQuality = 82
	webpQuality = 70
)

// Service wires uploads against the relational store and the two storage
// roots (public/private) the config layer names.
type Service struct {
	db          *gorm.DB
	queue       *jobqueue.Queue
	publicRoot  string
	privateRoot string
	maxChunkMB  int
	sessionTTL  time.Duration
}

// NewService builds an upload.Service from application configuration. queue
// may be nil in tests that don't exercise variant generation.
func NewService(db *gorm.DB, cfg *config.Config, queue *jobqueue.Queue) *Service {
	s := &Service{
		db:          db,
		queue:       queue,
		publicRoot:  "/tmp/playhub/uploads/public",
		privateRoot: "/tmp/playhub/uploads/private",
		maxChunkMB:  8,
		sessionTTL:  30 * time.Minute,
	}
	if cfg != nil {
		if cfg.UploadPublicRoot != "" {
			s.publicRoot = cfg.UploadPublicRoot
		}
		if cfg.UploadPrivateRoot != "" {
			s.privateRoot = cfg.UploadPrivateRoot
		}
		if cfg.UploadMaxChunkMB > 0 {
			s.maxChunkMB = cfg.UploadMaxChunkMB
		}
		if cfg.UploadChunkSessionTTLM > 0 {
			s.sessionTTL = time.Duration(cfg.UploadChunkSessionTTLM) * time.Minute
		}
	}
	return s
}

func (s *Service) rootFor(storage models.StorageType) string {
	if storage == models.StoragePrivate {
		return s.privateRoot
	}
	return s.publicRoot
}

// IngestInput describes a single-shot multipart upload.
type IngestInput struct {
	UserID      *uint
	Filename    string
	ContentType string
	Content     []byte
	Storage     models.StorageType
	Description string
}

var uploadMetrics = observability.NewUploadMetrics()

// ResizeImagePayload is the resize_image job's payload shape.
type ResizeImagePayload struct {
	UploadID    uint               `json:"upload_id"`
	UploadUUID  string             `json:"upload_uuid"`
	StoredName  string             `json:"stored_name"`
	Extension   string             `json:"extension"`
	StorageType models.StorageType `json:"storage_type"`
	FilePath    string             `json:"file_path"`
}

// Ingest validates and stores one uploaded file, then enqueues resize_image
// to generate its responsive variants asynchronously — the non-chunked
// path. The call returns as soon as the original is durably on disk and
// recorded; variants appear on the Upload row once the job completes.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*models.Upload, error) {
	done := uploadMetrics.TrackIngest()
	enqueued := false
	defer func() { done(enqueued) }()

	if len(in.Content) == 0 {
		return nil, models.NewValidationError("no file content")
	}
	if in.Storage == "" {
		in.Storage = models.StoragePublic
	}

	detected := http.DetectContentType(in.Content)
	stored, err := s.store(in.Filename, detected, in.Content, in.Storage)
	if err != nil {
		return nil, err
	}

	upload := &models.Upload{
		UUID:         uuid4(),
		UserID:       in.UserID,
		OriginalName: in.Filename,
		StoredName:   stored.storedName,
		Extension:    stored.extension,
		MimeType:     detected,
		SizeBytes:    int64(len(in.Content)),
		StorageType:  in.Storage,
		StoragePath:  stored.relPath,
		Description:  in.Description,
	}
	if err := s.db.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	if isImageMIME(detected) && s.queue != nil {
		_, qerr := s.queue.Enqueue(ctx, "resize_image", ResizeImagePayload{
			UploadID:    upload.ID,
			UploadUUID:  upload.UUID,
			StoredName:  upload.StoredName,
			Extension:   upload.Extension,
			StorageType: upload.StorageType,
			FilePath:    upload.StoragePath,
		})
		enqueued = qerr == nil
		if qerr != nil {
			observability.GlobalLogger.ErrorContext(ctx, "failed to enqueue resize_image",
				"uuid", upload.UUID, "error", qerr.Error())
		}
	}

	observability.GlobalLogger.InfoContext(ctx, "upload ingested",
		"uuid", upload.UUID, "mime_type", upload.MimeType, "size_bytes", upload.SizeBytes, "variants_enqueued", enqueued)

	return upload, nil
}

// ProcessVariants is the resize_image job handler's body: it loads the
// original file back off disk, decodes it, generates every responsive
// variant, and deletes the source file on success — the source is
// redundant once the full-size variant has been written.
func (s *Service) ProcessVariants(ctx context.Context, payload ResizeImagePayload) error {
	var upload models.Upload
	if err := s.db.WithContext(ctx).First(&upload, payload.UploadID).Error; err != nil {
		return err
	}

	root := s.rootFor(payload.StorageType)
	full := filepath.Join(root, payload.FilePath)
	content, err := os.ReadFile(full)
	if err != nil {
		return err
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("decode upload %d: %w", payload.UploadID, err)
	}

	variants := s.generateVariants(ctx, &upload, decoded)
	if len(variants) == 0 {
		return fmt.Errorf("no variants generated for upload %d", payload.UploadID)
	}

	_ = os.Remove(full)
	observability.GlobalLogger.InfoContext(ctx, "upload variants generated",
		"uuid", upload.UUID, "variant_count", len(variants))
	return nil
}

type storedFile struct {
	storedName string
	extension  string
	relPath    string
}

func (s *Service) store(filename, mimeType string, content []byte, storage models.StorageType) (storedFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = extensionForMIME(mimeType)
	}
	name := uuid4() + ext
	rel := filepath.ToSlash(filepath.Join(name[:2], name))
	full := filepath.Join(s.rootFor(storage), rel)

	if err := writeFile(full, content); err != nil {
		return storedFile{}, models.NewInternalError(err)
	}
	return storedFile{storedName: name, extension: ext, relPath: rel}, nil
}

// generateVariants resizes decoded into every named breakpoint that would
// not require upscaling the source, plus an unresized "full" copy, writing
// each next to the original under the same storage root.
func (s *Service) generateVariants(ctx context.Context, upload *models.Upload, decoded image.Image) []models.ImageVariant {
	bounds := decoded.Bounds()
	root := s.rootFor(upload.StorageType)
	var out []models.ImageVariant

	fullBytes, err := encodeJPEG(decoded, jpegQuality)
	if err == nil {
		fullRel := variantRelPath(upload.StoredName, models.VariantFull)
		if writeFile(filepath.Join(root, fullRel), fullBytes) == nil {
			v := models.ImageVariant{
				UploadID: upload.ID, VariantName: models.VariantFull,
				Width: bounds.Dx(), Height: bounds.Dy(),
				SizeBytes: int64(len(fullBytes)), StoragePath: fullRel,
			}
			if s.db.WithContext(ctx).Create(&v).Error == nil {
				out = append(out, v)
			}
		}
	}

	for _, name := range []models.ImageVariantName{models.VariantThumb, models.VariantSmall, models.VariantMedium, models.VariantLarge} {
		maxDim := models.VariantBreakpoints[name]
		if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
			// never upscale past the source
			continue
		}
		resized := resizeToFit(decoded, maxDim, maxDim)
		rb := resized.Bounds()
		data, err := encodeJPEG(resized, jpegQuality)
		if err != nil {
			continue
		}
		rel := variantRelPath(upload.StoredName, name)
		if writeFile(filepath.Join(root, rel), data) != nil {
			continue
		}
		v := models.ImageVariant{
			UploadID: upload.ID, VariantName: name,
			Width: rb.Dx(), Height: rb.Dy(),
			SizeBytes: int64(len(data)), StoragePath: rel,
		}
		if s.db.WithContext(ctx).Create(&v).Error == nil {
			out = append(out, v)
		}
	}
	return out
}

func variantRelPath(storedName string, name models.ImageVariantName) string {
	base := strings.TrimSuffix(storedName, filepath.Ext(storedName))
	return filepath.ToSlash(filepath.Join(base[:2], fmt.Sprintf("%s.%s.jpg", base, name)))
}

// Resolve finds the Upload by UUID, then returns a readable path honoring
// VariantFallbackOrder when the requested variant is absent on disk.
func (s *Service) Resolve(ctx context.Context, id string, wanted models.ImageVariantName) (*models.Upload, string, error) {
	var upload models.Upload
	if err := s.db.WithContext(ctx).Preload("Variants").Where("uuid = ?", id).First(&upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", models.NewNotFoundError("upload", id)
		}
		return nil, "", models.NewInternalError(err)
	}

	root := s.rootFor(upload.StorageType)
	if wanted == "" {
		wanted = models.VariantFull
	}
	if path, ok := s.variantPath(root, upload.Variants, wanted); ok {
		return &upload, path, nil
	}
	for _, fallback := range models.VariantFallbackOrder {
		if path, ok := s.variantPath(root, upload.Variants, fallback); ok {
			return &upload, path, nil
		}
	}
	// last resort: the original file as ingested
	originalPath := filepath.Join(root, upload.StoragePath)
	if _, err := os.Stat(originalPath); err == nil {
		return &upload, originalPath, nil
	}
	return nil, "", models.NewNotFoundError("upload variant", id)
}

func (s *Service) variantPath(root string, variants []models.ImageVariant, name models.ImageVariantName) (string, bool) {
	for _, v := range variants {
		if v.VariantName != name {
			continue
		}
		full := filepath.Join(root, v.StoragePath)
		if _, err := os.Stat(full); err == nil {
			return full, true
		}
	}
	return "", false
}

// Delete removes an upload's row, its variants, and everything it wrote to
// disk. Missing files are tolerated — a storage-root migration or manual
// cleanup may have already removed them.
func (s *Service) Delete(ctx context.Context, id string) error {
	var upload models.Upload
	if err := s.db.WithContext(ctx).Preload("Variants").Where("uuid = ?", id).First(&upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("upload", id)
		}
		return models.NewInternalError(err)
	}

	root := s.rootFor(upload.StorageType)
	_ = os.Remove(filepath.Join(root, upload.StoragePath))
	for _, v := range upload.Variants {
		_ = os.Remove(filepath.Join(root, v.StoragePath))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", upload.ID).Delete(&models.ImageVariant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&upload).Error
	})
}

// Migrate moves an upload and its variants to a different storage root
// (e.g. public to private), following a filesystem resilience protocol: if
// a file isn't where its DB row says, every other known root is searched
// before giving up, so a storage root that was moved or repaired out from
// under the database doesn't turn a metadata edit into a 404. The main
// file's move governs the request — it aborts on failure; a variant that
// can't be found or moved is logged and skipped, the rest proceed.
func (s *Service) Migrate(ctx context.Context, id string, newStorage models.StorageType) (*models.Upload, error) {
	var upload models.Upload
	if err := s.db.WithContext(ctx).Preload("Variants").Where("uuid = ?", id).First(&upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("upload", id)
		}
		return nil, models.NewInternalError(err)
	}
	if upload.StorageType == newStorage {
		return &upload, nil
	}

	oldRoot := s.rootFor(upload.StorageType)
	newRoot := s.rootFor(newStorage)

	newMainPath, err := s.migrateFile(oldRoot, newRoot, upload.StoragePath)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("migrate upload %s: %w", id, err))
	}

	movedVariants := make(map[uint]string, len(upload.Variants))
	for _, v := range upload.Variants {
		moved, err := s.migrateFile(oldRoot, newRoot, v.StoragePath)
		if err != nil {
			observability.GlobalLogger.ErrorContext(ctx, "upload variant migration skipped",
				"uuid", id, "variant", string(v.VariantName), "error", err.Error())
			continue
		}
		movedVariants[v.ID] = moved
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload.StorageType = newStorage
		upload.StoragePath = newMainPath
		if err := tx.Save(&upload).Error; err != nil {
			return err
		}
		for variantID, path := range movedVariants {
			if err := tx.Model(&models.ImageVariant{}).Where("id = ?", variantID).
				Update("storage_path", path).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &upload, nil
}

// migrateFile locates relPath under oldRoot, falling back to every other
// known storage root (including the private profile-pictures subfolder)
// when it isn't where the caller expected, then renames it to the same
// relative path under newRoot.
func (s *Service) migrateFile(oldRoot, newRoot, relPath string) (string, error) {
	candidates := []string{oldRoot, s.publicRoot, s.privateRoot, filepath.Join(s.privateRoot, "profile-pictures")}
	foundRoot := ""
	for _, root := range candidates {
		if _, err := os.Stat(filepath.Join(root, relPath)); err == nil {
			foundRoot = root
			break
		}
	}
	if foundRoot == "" {
		return "", fmt.Errorf("source file for %q not found under any known storage root", relPath)
	}

	dest := filepath.Join(newRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(filepath.Join(foundRoot, relPath), dest); err != nil {
		return "", err
	}
	return relPath, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}
	scale := float64(maxWidth) / float64(w)
	if hs := float64(maxHeight) / float64(h); hs < scale {
		scale = hs
	}
	newW, newH := int(float64(w)*scale), int(float64(h)*scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// drawOver composites src onto dst at the given offset. The upload module has
// no fixed-ratio cropping requirement, so it is exercised only by tests that
// drive arbitrary compositing.
func drawOver(dst draw.Image, src image.Image, at image.Point) {
	draw.Draw(dst, dst.Bounds(), src, at, draw.Over)
}

func isImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func extensionForMIME(mimeType string) string {
	switch normalizeContentType(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func uuid4() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", buf[0:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}
