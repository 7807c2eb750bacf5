package models

import "time"

// StorageType names the root an upload's file lives under.
type StorageType string

const (
	StoragePublic  StorageType = "public"
	StoragePrivate StorageType = "private"
)

// Upload is the authoritative row for one ingested file, before or after
// variant generation.
type Upload struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"uniqueIndex;not null" json:"uuid"`
	UserID       *uint          `gorm:"index" json:"user_id,omitempty"`
	OriginalName string         `json:"original_name"`
	StoredName   string         `json:"stored_name"`
	Extension    string         `json:"extension"`
	MimeType     string         `json:"mime_type"`
	SizeBytes    int64          `json:"size_bytes"`
	StorageType  StorageType    `gorm:"not null" json:"storage_type"`
	StoragePath  string         `json:"storage_path"`
	Description  string         `json:"description,omitempty"` // e.g. "profile-picture"
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Variants     []ImageVariant `gorm:"foreignKey:UploadID" json:"variants,omitempty"`
}

// ImageVariantName is the closed set of named responsive renditions.
type ImageVariantName string

const (
	VariantThumb  ImageVariantName = "thumb"
	VariantSmall  ImageVariantName = "small"
	VariantMedium ImageVariantName = "medium"
	VariantLarge  ImageVariantName = "large"
	VariantFull   ImageVariantName = "full"
)

// VariantBreakpoints maps each resized (non-full) variant to its max dimension.
var VariantBreakpoints = map[ImageVariantName]int{
	VariantThumb:  100,
	VariantSmall:  320,
	VariantMedium: 768,
	VariantLarge:  1280,
}

// VariantFallbackOrder is the preference order download_public probes
// when the primary path is missing on disk.
var VariantFallbackOrder = []ImageVariantName{VariantMedium, VariantLarge, VariantSmall, VariantThumb}

// ImageVariant is one precomputed responsive rendition of an Upload.
type ImageVariant struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UploadID    uint             `gorm:"index;not null" json:"upload_id"`
	VariantName ImageVariantName `gorm:"not null" json:"variant_name"`
	StoredName  string           `json:"stored_name"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	SizeBytes   int64            `json:"size_bytes"`
	StoragePath string           `json:"storage_path"`
}

// ChunkedSession is the transient bookkeeping row for an in-progress chunked
// upload. ReceivedChunks is a JSON-encoded bitmap (one byte per chunk index,
// 0/1) persisted so a restart can recover in-flight sessions.
type ChunkedSession struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	UUID           string      `gorm:"uniqueIndex;not null" json:"uuid"`
	UserID         *uint       `gorm:"index" json:"user_id,omitempty"`
	Filename       string      `json:"filename"`
	TotalChunks    int         `json:"total_chunks"`
	TotalSize      int64       `json:"total_size"`
	StorageType    StorageType `json:"storage_type"`
	ReceivedChunks string      `gorm:"type:json" json:"-"` // JSON []bool
	CreatedAt      time.Time   `json:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

// IsExpired reports whether the session has outlived its TTL.
func (s *ChunkedSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
