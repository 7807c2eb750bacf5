package models

import "time"

// Competition groups entries that compete for a single prize, awarded once
// after EndDate passes.
type Competition struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `json:"name"`
	EndDate           time.Time  `json:"end_date"`
	PrizeMinorUnits   int64      `json:"prize_minor_units"`
	AwardedAt         *time.Time `json:"awarded_at,omitempty"`
	WinningEntryID    *uint      `json:"winning_entry_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// CompetitionEntry is one submission, scored on finalize.
type CompetitionEntry struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CompetitionID   uint      `gorm:"index;not null" json:"competition_id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	UploadID        *uint     `json:"upload_id,omitempty"`
	LikesCount      int       `gorm:"default:0" json:"likes_count"`
	AdminVotesCount int       `gorm:"default:0" json:"admin_votes_count"`
	Score           float64   `json:"score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
