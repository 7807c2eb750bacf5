package server

import (
	"time"

	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListCompetitionEntries handles GET /api/competitions/:id/entries.
func (s *Server) ListCompetitionEntries(c *fiber.Ctx) error {
	id, perr := s.parseID(c, "id")
	if perr != nil {
		return nil
	}
	entries, err := s.competitionSvc.List(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// SubmitCompetitionEntry handles POST /api/competitions/:id/entries.
func (s *Server) SubmitCompetitionEntry(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	id, perr := s.parseID(c, "id")
	if perr != nil {
		return nil
	}
	var req struct {
		UploadID *uint `json:"upload_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	entry, err := s.competitionSvc.Submit(c.UserContext(), id, userID, req.UploadID)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// LikeCompetitionEntry handles POST /api/competitions/entries/:entryId/like.
func (s *Server) LikeCompetitionEntry(c *fiber.Ctx) error {
	entryID, perr := s.parseID(c, "entryId")
	if perr != nil {
		return nil
	}
	if err := s.competitionSvc.Like(c.UserContext(), entryID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AdminVoteCompetitionEntry handles POST /api/competitions/entries/:entryId/admin-vote.
func (s *Server) AdminVoteCompetitionEntry(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	isAdmin, err := s.isAdmin(c, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	if !isAdmin {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("admin vote requires admin privileges"))
	}

	entryID, perr := s.parseID(c, "entryId")
	if perr != nil {
		return nil
	}
	if err := s.competitionSvc.AdminVote(c.UserContext(), entryID); err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// FinalizeCompetition handles POST /api/competitions/:id/finalize (admin-only).
func (s *Server) FinalizeCompetition(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	isAdmin, err := s.isAdmin(c, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	if !isAdmin {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("finalize requires admin privileges"))
	}

	id, perr := s.parseID(c, "id")
	if perr != nil {
		return nil
	}
	winner, ferr := s.competitionSvc.Finalize(c.UserContext(), id, time.Now().UTC())
	if ferr != nil {
		return models.RespondWithError(c, mapServiceError(ferr), ferr)
	}
	return c.JSON(fiber.Map{"winning_entry": winner})
}
