package upload

import (
	"context"
	"testing"
	"time"

	"playhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServiceWithChunks(t *testing.T) *Service {
	t.Helper()
	s, db := newTestService(t)
	require.NoError(t, db.AutoMigrate(&models.ChunkedSession{}))
	return s
}

func TestStartChunkedUpload_RejectsNonPositiveTotalChunks(t *testing.T) {
	s := newTestServiceWithChunks(t)
	_, err := s.StartChunkedUpload(context.Background(), nil, "a.png", 0, 100, "")
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestPutChunk_MarksIndexReceivedAndRejectsOutOfRange(t *testing.T) {
	s := newTestServiceWithChunks(t)
	session, err := s.StartChunkedUpload(context.Background(), nil, "a.png", 2, 20, "")
	require.NoError(t, err)

	updated, err := s.PutChunk(context.Background(), session.UUID, 0, []byte("hello"))
	require.NoError(t, err)
	assert.False(t, allReceived(&models.ChunkedSession{ReceivedChunks: updated.ReceivedChunks, TotalChunks: 2}))

	_, err = s.PutChunk(context.Background(), session.UUID, 5, []byte("oops"))
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestPutChunk_RejectsExpiredSession(t *testing.T) {
	s := newTestServiceWithChunks(t)
	session, err := s.StartChunkedUpload(context.Background(), nil, "a.png", 1, 10, "")
	require.NoError(t, err)

	session.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.db.Save(session).Error)

	_, err = s.PutChunk(context.Background(), session.UUID, 0, []byte("data"))
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestCompleteChunkedUpload_AssemblesChunksInOrder(t *testing.T) {
	s := newTestServiceWithChunks(t)
	content := tinyPNG(t, 10, 10)
	half := len(content) / 2

	session, err := s.StartChunkedUpload(context.Background(), nil, "photo.png", 2, int64(len(content)), "")
	require.NoError(t, err)

	_, err = s.PutChunk(context.Background(), session.UUID, 0, content[:half])
	require.NoError(t, err)
	_, err = s.PutChunk(context.Background(), session.UUID, 1, content[half:])
	require.NoError(t, err)

	upload, err := s.CompleteChunkedUpload(context.Background(), session.UUID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), upload.SizeBytes)
}

func TestCompleteChunkedUpload_RejectsIncompleteSession(t *testing.T) {
	s := newTestServiceWithChunks(t)
	session, err := s.StartChunkedUpload(context.Background(), nil, "photo.png", 2, 10, "")
	require.NoError(t, err)

	_, err = s.CompleteChunkedUpload(context.Background(), session.UUID)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestPurgeExpiredSessions_RemovesOnlyExpiredRows(t *testing.T) {
	s := newTestServiceWithChunks(t)
	expired, err := s.StartChunkedUpload(context.Background(), nil, "old.png", 1, 5, "")
	require.NoError(t, err)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.db.Save(expired).Error)

	active, err := s.StartChunkedUpload(context.Background(), nil, "new.png", 1, 5, "")
	require.NoError(t, err)

	count, err := s.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var remaining models.ChunkedSession
	require.NoError(t, s.db.Where("uuid = ?", active.UUID).First(&remaining).Error)

	var goneCount int64
	require.NoError(t, s.db.Model(&models.ChunkedSession{}).Where("uuid = ?", expired.UUID).Count(&goneCount).Error)
	assert.Equal(t, int64(0), goneCount)
}
