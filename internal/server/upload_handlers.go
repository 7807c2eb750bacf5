package server

import (
	"io"
	"strconv"

	"playhub/internal/models"
	"playhub/internal/upload"

	"github.com/gofiber/fiber/v2"
)

// uploadResponse mirrors the fields a client needs to build a responsive
// <picture> element without a second round trip.
type uploadResponse struct {
	UUID        string            `json:"uuid"`
	OriginalName string           `json:"original_name"`
	MimeType    string            `json:"mime_type"`
	SizeBytes   int64             `json:"size_bytes"`
	StorageType string            `json:"storage_type"`
	Variants    map[string]string `json:"variants"`
}

func toUploadResponse(u *models.Upload) uploadResponse {
	variants := make(map[string]string, len(u.Variants))
	for _, v := range u.Variants {
		variants[string(v.VariantName)] = "/api/uploads/" + u.UUID + "/" + string(v.VariantName)
	}
	return uploadResponse{
		UUID:         u.UUID,
		OriginalName: u.OriginalName,
		MimeType:     u.MimeType,
		SizeBytes:    u.SizeBytes,
		StorageType:  string(u.StorageType),
		Variants:     variants,
	}
}

// UploadFile handles POST /api/uploads — single-shot multipart ingest.
func (s *Server) UploadFile(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("no file uploaded"))
	}
	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("unable to read uploaded file"))
	}

	storage := models.StoragePublic
	if c.FormValue("storage") == string(models.StoragePrivate) {
		storage = models.StoragePrivate
	}

	var ownerID *uint
	if userID != 0 {
		ownerID = &userID
	}

	result, err := s.uploadSvc().Ingest(c.UserContext(), upload.IngestInput{
		UserID:      ownerID,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
		Storage:     storage,
		Description: c.FormValue("description"),
	})
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(toUploadResponse(result))
}

// StartChunkedUpload handles POST /api/uploads/chunked.
func (s *Server) StartChunkedUpload(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	var req struct {
		Filename    string `json:"filename"`
		TotalChunks int    `json:"total_chunks"`
		TotalSize   int64  `json:"total_size"`
		Storage     string `json:"storage"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	storage := models.StoragePublic
	if req.Storage == string(models.StoragePrivate) {
		storage = models.StoragePrivate
	}

	var ownerID *uint
	if userID != 0 {
		ownerID = &userID
	}

	session, err := s.uploadSvc().StartChunkedUpload(c.UserContext(), ownerID, req.Filename, req.TotalChunks, req.TotalSize, storage)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": session.UUID, "expires_at": session.ExpiresAt})
}

// PutChunk handles PUT /api/uploads/chunked/:session_id/:index.
func (s *Server) PutChunk(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid chunk index"))
	}

	data := c.Body()
	session, err := s.uploadSvc().PutChunk(c.UserContext(), sessionID, index, data)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"session_id": session.UUID, "received_chunk": index})
}

// CompleteChunkedUpload handles POST /api/uploads/chunked/:session_id/complete.
func (s *Server) CompleteChunkedUpload(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	result, err := s.uploadSvc().CompleteChunkedUpload(c.UserContext(), sessionID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(toUploadResponse(result))
}

// ServeUpload handles GET /api/uploads/:uuid/:variant?.
func (s *Server) ServeUpload(c *fiber.Ctx) error {
	id := c.Params("uuid")
	variant := models.ImageVariantName(c.Params("variant"))

	_, path, err := s.uploadSvc().Resolve(c.UserContext(), id, variant)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.SendFile(path)
}

// MigrateUploadMetadata handles PATCH /api/admin/uploads/:uuid/metadata,
// moving an upload (and its variants) to a new storage_type.
func (s *Server) MigrateUploadMetadata(c *fiber.Ctx) error {
	id := c.Params("uuid")
	var req struct {
		StorageType string `json:"storage_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	storage := models.StorageType(req.StorageType)
	if storage != models.StoragePublic && storage != models.StoragePrivate {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("storage_type must be public or private"))
	}

	result, err := s.uploadSvc().Migrate(c.UserContext(), id, storage)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusOK).JSON(toUploadResponse(result))
}

// DeleteUpload handles DELETE /api/uploads/:uuid.
func (s *Server) DeleteUpload(c *fiber.Ctx) error {
	id := c.Params("uuid")
	if err := s.uploadSvc().Delete(c.UserContext(), id); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) uploadSvc() *upload.Service {
	return s.uploadService
}
