package competition

import (
	"context"
	"errors"

	"playhub/internal/models"

	"gorm.io/gorm"
)

// Submit records a user's entry into an open competition. One entry per
// user per competition; resubmitting before the competition ends replaces
// the prior upload rather than creating a duplicate row.
func (s *Service) Submit(ctx context.Context, competitionID, userID uint, uploadID *uint) (*models.CompetitionEntry, error) {
	var comp models.Competition
	if err := s.db.WithContext(ctx).First(&comp, competitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("competition", competitionID)
		}
		return nil, models.NewInternalError(err)
	}
	if comp.AwardedAt != nil {
		return nil, models.NewConflictError("competition has already been awarded")
	}

	entry := models.CompetitionEntry{CompetitionID: competitionID, UserID: userID, UploadID: uploadID}
	err := s.db.WithContext(ctx).
		Where("competition_id = ? AND user_id = ?", competitionID, userID).
		Assign(models.CompetitionEntry{UploadID: uploadID}).
		FirstOrCreate(&entry).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &entry, nil
}

// Like increments an entry's public like count by one.
func (s *Service) Like(ctx context.Context, entryID uint) error {
	result := s.db.WithContext(ctx).Model(&models.CompetitionEntry{}).
		Where("id = ?", entryID).
		Update("likes_count", gorm.Expr("likes_count + 1"))
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("competition entry", entryID)
	}
	return nil
}

// AdminVote increments an entry's admin-vote count by one. Callers are
// expected to have already checked the caller holds admin privileges.
func (s *Service) AdminVote(ctx context.Context, entryID uint) error {
	result := s.db.WithContext(ctx).Model(&models.CompetitionEntry{}).
		Where("id = ?", entryID).
		Update("admin_votes_count", gorm.Expr("admin_votes_count + 1"))
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("competition entry", entryID)
	}
	return nil
}

// List returns every entry for a competition, ordered by score descending
// once judged (zero-score entries sort by submission order).
func (s *Service) List(ctx context.Context, competitionID uint) ([]models.CompetitionEntry, error) {
	var entries []models.CompetitionEntry
	if err := s.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("score DESC, created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}
