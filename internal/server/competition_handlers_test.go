package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"playhub/internal/competition"
	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCompetitionTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Competition{}, &models.CompetitionEntry{}))
	return &Server{db: db, competitionSvc: competition.NewService(db)}, db
}

func TestListCompetitionEntries_ReturnsSubmittedEntries(t *testing.T) {
	s, db := newCompetitionTestServer(t)
	app := fiber.New()
	app.Get("/api/competitions/:id/entries", s.ListCompetitionEntries)

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, db.Create(user).Error)
	comp := &models.Competition{Name: "weekly", EndDate: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.Create(comp).Error)
	_, err := s.competitionSvc.Submit(context.Background(), comp.ID, user.ID, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/competitions/"+itoa(comp.ID)+"/entries", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Entries []models.CompetitionEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Entries, 1)
}

func TestSubmitCompetitionEntry_CreatesEntryForAuthenticatedUser(t *testing.T) {
	s, db := newCompetitionTestServer(t)
	app := fiber.New()
	app.Post("/api/competitions/:id/entries", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return s.SubmitCompetitionEntry(c)
	})

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, db.Create(user).Error)
	comp := &models.Competition{Name: "weekly", EndDate: time.Now().Add(24 * time.Hour)}
	require.NoError(t, db.Create(comp).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/competitions/"+itoa(comp.ID)+"/entries", nil)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestLikeCompetitionEntry_NotFoundReturns404(t *testing.T) {
	s, _ := newCompetitionTestServer(t)
	app := fiber.New()
	app.Post("/api/competitions/entries/:entryId/like", s.LikeCompetitionEntry)

	req := httptest.NewRequest(http.MethodPost, "/api/competitions/entries/999/like", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminVoteCompetitionEntry_RejectsNonAdmin(t *testing.T) {
	s, db := newCompetitionTestServer(t)
	app := fiber.New()
	app.Post("/api/competitions/entries/:entryId/admin-vote", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return s.AdminVoteCompetitionEntry(c)
	})

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash", IsAdmin: false}
	require.NoError(t, db.Create(user).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/competitions/entries/1/admin-vote", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFinalizeCompetition_RequiresAdmin(t *testing.T) {
	s, db := newCompetitionTestServer(t)
	app := fiber.New()
	app.Post("/api/competitions/:id/finalize", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(1))
		return s.FinalizeCompetition(c)
	})

	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "hash", IsAdmin: true}
	require.NoError(t, db.Create(user).Error)
	comp := &models.Competition{Name: "weekly", EndDate: time.Now().Add(-time.Hour)}
	require.NoError(t, db.Create(comp).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/competitions/"+itoa(comp.ID)+"/finalize", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no entries exist yet, finalize should report a conflict")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
