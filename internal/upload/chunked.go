package upload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"playhub/internal/models"

	"gorm.io/gorm"
)

// StartChunkedUpload creates a new session row and its temp assembly file.
func (s *Service) StartChunkedUpload(ctx context.Context, userID *uint, filename string, totalChunks int, totalSize int64, storage models.StorageType) (*models.ChunkedSession, error) {
	if totalChunks <= 0 {
		return nil, models.NewValidationError("total_chunks must be positive")
	}
	if storage == "" {
		storage = models.StoragePublic
	}

	received := make([]bool, totalChunks)
	encoded, err := json.Marshal(received)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	session := &models.ChunkedSession{
		UUID:           uuid4(),
		UserID:         userID,
		Filename:       filename,
		TotalChunks:    totalChunks,
		TotalSize:      totalSize,
		StorageType:    storage,
		ReceivedChunks: string(encoded),
		ExpiresAt:      time.Now().UTC().Add(s.sessionTTL),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return session, nil
}

func (s *Service) chunkDir(sessionUUID string) string {
	return filepath.Join(s.privateRoot, ".chunks", sessionUUID)
}

// PutChunk writes one chunk to the session's scratch directory and marks it
// received. Chunks may arrive out of order and are tolerated if resent.
func (s *Service) PutChunk(ctx context.Context, sessionUUID string, index int, data []byte) (*models.ChunkedSession, error) {
	var session models.ChunkedSession
	if err := s.db.WithContext(ctx).Where("uuid = ?", sessionUUID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("chunked upload session", sessionUUID)
		}
		return nil, models.NewInternalError(err)
	}
	if session.IsExpired() {
		return nil, models.NewConflictError("chunked upload session has expired")
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, models.NewValidationError("chunk index out of range")
	}
	if int64(len(data)) > int64(s.maxChunkMB)*1024*1024 {
		return nil, models.NewValidationError("chunk exceeds max chunk size")
	}

	if err := writeFile(filepath.Join(s.chunkDir(sessionUUID), chunkName(index)), data); err != nil {
		return nil, models.NewInternalError(err)
	}

	var received []bool
	_ = json.Unmarshal([]byte(session.ReceivedChunks), &received)
	received[index] = true
	encoded, _ := json.Marshal(received)
	session.ReceivedChunks = string(encoded)
	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return &session, nil
}

func chunkName(index int) string {
	return strconv.Itoa(index) + ".part"
}

// allReceived reports whether every chunk index in the session has arrived.
func allReceived(session *models.ChunkedSession) bool {
	var received []bool
	if err := json.Unmarshal([]byte(session.ReceivedChunks), &received); err != nil {
		return false
	}
	for _, ok := range received {
		if !ok {
			return false
		}
	}
	return true
}

// CompleteChunkedUpload assembles every chunk in order into the final
// storage path, runs it through the same variant pipeline as Ingest, and
// discards the session and its scratch files.
func (s *Service) CompleteChunkedUpload(ctx context.Context, sessionUUID string) (*models.Upload, error) {
	var session models.ChunkedSession
	if err := s.db.WithContext(ctx).Where("uuid = ?", sessionUUID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("chunked upload session", sessionUUID)
		}
		return nil, models.NewInternalError(err)
	}
	if !allReceived(&session) {
		return nil, models.NewConflictError("chunked upload is not yet complete")
	}

	dir := s.chunkDir(sessionUUID)
	assembled := make([]byte, 0, session.TotalSize)
	for i := 0; i < session.TotalChunks; i++ {
		part, err := os.ReadFile(filepath.Join(dir, chunkName(i)))
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		assembled = append(assembled, part...)
	}
	_ = os.RemoveAll(dir)

	upload, err := s.Ingest(ctx, IngestInput{
		UserID:      session.UserID,
		Filename:    session.Filename,
		ContentType: "",
		Content:     assembled,
		Storage:     session.StorageType,
	})
	if err != nil {
		return nil, err
	}

	_ = s.db.WithContext(ctx).Delete(&session).Error
	return upload, nil
}

// PurgeExpiredSessions removes chunked-session rows (and their scratch
// directories) whose TTL has elapsed without completion. Meant to be called
// periodically from a background sweep goroutine, the same way
// gamecommand.Handler.SweepExpiredDisconnects is.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	var expired []models.ChunkedSession
	if err := s.db.WithContext(ctx).Where("expires_at < ?", time.Now().UTC()).Find(&expired).Error; err != nil {
		return 0, err
	}
	for _, sess := range expired {
		_ = os.RemoveAll(s.chunkDir(sess.UUID))
	}
	if len(expired) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("expires_at < ?", time.Now().UTC()).Delete(&models.ChunkedSession{})
	return result.RowsAffected, result.Error
}
