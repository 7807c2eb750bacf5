package competition

import (
	"context"
	"testing"
	"time"

	"playhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Competition{}, &models.CompetitionEntry{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Password: "hash"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createCompetition(t *testing.T, db *gorm.DB, endDate time.Time) *models.Competition {
	t.Helper()
	comp := &models.Competition{Name: "weekly-gallery", EndDate: endDate, PrizeMinorUnits: 500}
	require.NoError(t, db.Create(comp).Error)
	return comp
}

func TestSubmit_CreatesEntry(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))

	entry, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, comp.ID, entry.CompetitionID)
	assert.Equal(t, user.ID, entry.UserID)
}

func TestSubmit_IsIdempotentPerUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))

	first, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSubmit_CompetitionNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")

	_, err := svc.Submit(context.Background(), 999, user.ID, nil)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestSubmit_RejectsAfterAward(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")
	comp := createCompetition(t, db, time.Now().Add(-time.Hour))
	awarded := time.Now()
	comp.AwardedAt = &awarded
	require.NoError(t, db.Save(comp).Error)

	_, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestLike_IncrementsCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))
	entry, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Like(context.Background(), entry.ID))
	require.NoError(t, svc.Like(context.Background(), entry.ID))

	var reloaded models.CompetitionEntry
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, 2, reloaded.LikesCount)
}

func TestLike_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	err := svc.Like(context.Background(), 999)
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestAdminVote_IncrementsCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	user := createUser(t, db, "alice")
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))
	entry, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)

	require.NoError(t, svc.AdminVote(context.Background(), entry.ID))

	var reloaded models.CompetitionEntry
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, 1, reloaded.AdminVotesCount)
}

func TestList_OrdersByScoreThenCreatedAt(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	e1, err := svc.Submit(context.Background(), comp.ID, alice.ID, nil)
	require.NoError(t, err)
	e2, err := svc.Submit(context.Background(), comp.ID, bob.ID, nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.CompetitionEntry{}).Where("id = ?", e2.ID).Update("score", 5.0).Error)
	require.NoError(t, db.Model(&models.CompetitionEntry{}).Where("id = ?", e1.ID).Update("score", 1.0).Error)

	entries, err := svc.List(context.Background(), comp.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e2.ID, entries[0].ID)
	assert.Equal(t, e1.ID, entries[1].ID)
}

func TestFinalize_PicksHighestScoreAndCreditsBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	comp := createCompetition(t, db, time.Now().Add(-time.Hour))
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	winning, err := svc.Submit(context.Background(), comp.ID, alice.ID, nil)
	require.NoError(t, err)
	losing, err := svc.Submit(context.Background(), comp.ID, bob.ID, nil)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.CompetitionEntry{}).Where("id = ?", winning.ID).
		Update("likes_count", 10).Error)
	require.NoError(t, db.Model(&models.CompetitionEntry{}).Where("id = ?", losing.ID).
		Update("likes_count", 2).Error)

	winner, err := svc.Finalize(context.Background(), comp.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, winning.ID, winner.ID)

	var reloadedComp models.Competition
	require.NoError(t, db.First(&reloadedComp, comp.ID).Error)
	require.NotNil(t, reloadedComp.AwardedAt)
	require.NotNil(t, reloadedComp.WinningEntryID)
	assert.Equal(t, winning.ID, *reloadedComp.WinningEntryID)

	var reloadedUser models.User
	require.NoError(t, db.First(&reloadedUser, alice.ID).Error)
	assert.Equal(t, int64(500), reloadedUser.BalanceMinorUnits)
}

func TestFinalize_RejectsBeforeEndDate(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	comp := createCompetition(t, db, time.Now().Add(24*time.Hour))
	user := createUser(t, db, "alice")
	_, err := svc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), comp.ID, time.Now())
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestFinalize_RejectsWithNoEntries(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	comp := createCompetition(t, db, time.Now().Add(-time.Hour))

	_, err := svc.Finalize(context.Background(), comp.ID, time.Now())
	require.Error(t, err)
	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestBeats_TieBreaksOnLikesThenAdminVotes(t *testing.T) {
	base := models.CompetitionEntry{Score: 1.0, LikesCount: 5, AdminVotesCount: 2}

	moreLikes := models.CompetitionEntry{Score: 1.0, LikesCount: 6, AdminVotesCount: 0}
	assert.True(t, beats(moreLikes, base))

	fewerLikes := models.CompetitionEntry{Score: 1.0, LikesCount: 4, AdminVotesCount: 9}
	assert.False(t, beats(fewerLikes, base))

	sameLikesMoreAdmin := models.CompetitionEntry{Score: 1.0, LikesCount: 5, AdminVotesCount: 3}
	assert.True(t, beats(sameLikesMoreAdmin, base))

	fullTie := models.CompetitionEntry{Score: 1.0, LikesCount: 5, AdminVotesCount: 2}
	assert.False(t, beats(fullTie, base))
}

func TestScore_WeightsLikesAndAdminVotesEvenly(t *testing.T) {
	e := models.CompetitionEntry{LikesCount: 5, AdminVotesCount: 5}
	assert.InDelta(t, 1.0, score(e, 10, 10), 0.0001)

	zero := models.CompetitionEntry{LikesCount: 0, AdminVotesCount: 0}
	assert.InDelta(t, 0.0, score(zero, 0, 0), 0.0001)
}
