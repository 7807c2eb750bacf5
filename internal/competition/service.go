// Package competition scores and awards Competition entries once their
// EndDate passes. The atomic balance credit generalizes the
// transactional patterns internal/service's other services use for
// multi-row writes that must not partially apply.
package competition

import (
	"context"
	"errors"
	"time"

	"playhub/internal/models"
	"playhub/internal/observability"

	"gorm.io/gorm"
)

var competitionMetrics = observability.NewCompetitionMetrics()

// Service finalizes competitions against the relational store.
type Service struct {
	db *gorm.DB
}

// NewService wires a competition.Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// scoreWeight is the even split given to likes and admin votes:
// score = 0.5*(likes/max_likes) + 0.5*(admin_votes/max_admin_votes).
const scoreWeight = 0.5

// Finalize scores every entry in the named competition, selects a single
// winner (highest score; ties broken by more likes, then more admin votes,
// then earliest submission), credits the prize to the winner's balance, and
// marks the competition awarded. It is a no-op — returning an error — if the
// competition is already awarded or its EndDate has not yet passed.
func (s *Service) Finalize(ctx context.Context, competitionID uint, now time.Time) (*models.CompetitionEntry, error) {
	var winner *models.CompetitionEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comp models.Competition
		if err := tx.First(&comp, competitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("competition", competitionID)
			}
			return models.NewInternalError(err)
		}
		if comp.AwardedAt != nil {
			return models.NewConflictError("competition has already been awarded")
		}
		if now.Before(comp.EndDate) {
			return models.NewConflictError("competition has not yet ended")
		}

		var entries []models.CompetitionEntry
		if err := tx.Where("competition_id = ?", competitionID).Order("created_at ASC").Find(&entries).Error; err != nil {
			return models.NewInternalError(err)
		}
		if len(entries) == 0 {
			return models.NewConflictError("competition has no entries to judge")
		}

		maxLikes, maxAdmin := 0, 0
		for _, e := range entries {
			if e.LikesCount > maxLikes {
				maxLikes = e.LikesCount
			}
			if e.AdminVotesCount > maxAdmin {
				maxAdmin = e.AdminVotesCount
			}
		}

		for i := range entries {
			entries[i].Score = score(entries[i], maxLikes, maxAdmin)
			if err := tx.Model(&entries[i]).Update("score", entries[i].Score).Error; err != nil {
				return models.NewInternalError(err)
			}
		}

		best := &entries[0]
		for i := 1; i < len(entries); i++ {
			if beats(entries[i], *best) {
				best = &entries[i]
			}
		}

		comp.AwardedAt = &now
		comp.WinningEntryID = &best.ID
		if err := tx.Save(&comp).Error; err != nil {
			return models.NewInternalError(err)
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", best.UserID).
			Update("balance_minor_units", gorm.Expr("balance_minor_units + ?", comp.PrizeMinorUnits)).Error; err != nil {
			return models.NewInternalError(err)
		}

		winner = best
		return nil
	})
	if err != nil {
		competitionMetrics.RecordFinalize("rejected")
		return nil, err
	}
	competitionMetrics.RecordFinalize("awarded")
	observability.GlobalLogger.InfoContext(ctx, "competition finalized",
		"competition_id", competitionID, "winner_user_id", winner.UserID, "score", winner.Score)
	return winner, nil
}

func score(e models.CompetitionEntry, maxLikes, maxAdmin int) float64 {
	var likeFraction, adminFraction float64
	if maxLikes > 0 {
		likeFraction = float64(e.LikesCount) / float64(maxLikes)
	}
	if maxAdmin > 0 {
		adminFraction = float64(e.AdminVotesCount) / float64(maxAdmin)
	}
	return scoreWeight*likeFraction + scoreWeight*adminFraction
}

// beats reports whether candidate should replace incumbent as the leader,
// applying the tie-break chain: higher score, then more likes, then
// more admin votes, then earlier submission (incumbent already precedes
// candidate in submission order by construction, so a full tie keeps it).
func beats(candidate, incumbent models.CompetitionEntry) bool {
	if candidate.Score != incumbent.Score {
		return candidate.Score > incumbent.Score
	}
	if candidate.LikesCount != incumbent.LikesCount {
		return candidate.LikesCount > incumbent.LikesCount
	}
	if candidate.AdminVotesCount != incumbent.AdminVotesCount {
		return candidate.AdminVotesCount > incumbent.AdminVotesCount
	}
	return false
}
