package oauth

import (
	"time"

	"playhub/internal/models"
	"playhub/internal/observability"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const accessTokenTTL = time.Hour

var oauthMetrics = observability.NewOAuthMetrics()

// Token handles POST /api/oauth/token for the authorization_code and
// refresh_token grant types.
func (s *Server) Token(c *fiber.Ctx) error {
	var req struct {
		GrantType    string `json:"grant_type"`
		Code         string `json:"code"`
		RedirectURI  string `json:"redirect_uri"`
		ClientID     string `json:"client_id"`
		CodeVerifier string `json:"code_verifier"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	switch req.GrantType {
	case "authorization_code":
		return s.exchangeAuthorizationCode(c, req.Code, req.ClientID, req.RedirectURI, req.CodeVerifier)
	case "refresh_token":
		return s.exchangeRefreshToken(c, req.RefreshToken)
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("unsupported grant_type"))
	}
}

func (s *Server) exchangeAuthorizationCode(c *fiber.Ctx, code, clientID, redirectURI, verifier string) error {
	var record models.AuthorizationCode
	if err := s.db.Where("code = ?", code).First(&record).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid authorization code"))
	}
	if record.Consumed || record.IsExpired() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("authorization code is no longer valid"))
	}
	if record.RedirectURI != redirectURI {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("redirect_uri mismatch"))
	}
	if !verifyPKCE(record.CodeChallengeMethod, record.CodeChallenge, verifier) {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("PKCE verification failed"))
	}

	record.Consumed = true
	if err := s.db.Save(&record).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	access, err := randomToken(32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	refresh, err := randomToken(s.refreshTokenLength())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	at := models.AccessToken{
		TokenHash: hashToken(access),
		ClientID:  record.ClientID,
		UserID:    record.UserID,
		Scopes:    record.Scopes,
		ExpiresAt: time.Now().Add(accessTokenTTL),
	}
	if err := s.db.Create(&at).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	rt := models.ResourceRefreshToken{
		TokenHash: hashToken(refresh),
		ClientID:  record.ClientID,
		UserID:    record.UserID,
		Scopes:    record.Scopes,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
	if err := s.db.Create(&rt).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	oauthMetrics.RecordTokenIssued("authorization_code")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(accessTokenTTL.Seconds()),
		"scope":         decodeStrings(record.Scopes),
	})
}

// exchangeRefreshToken implements rotation: the presented refresh token is
// revoked in the same transaction that mints its replacement, so a stolen
// refresh token can be used to refresh at most once before both the thief's
// and the legitimate holder's copies stop working.
func (s *Server) exchangeRefreshToken(c *fiber.Ctx, refreshToken string) error {
	var rt models.ResourceRefreshToken
	if err := s.db.Where("token_hash = ?", hashToken(refreshToken)).First(&rt).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid refresh token"))
	}
	if !rt.IsValid() {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("refresh token is no longer valid"))
	}

	access, err := randomToken(32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	next, err := randomToken(s.refreshTokenLength())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Model(&models.ResourceRefreshToken{}).
			Where("id = ?", rt.ID).
			Update("revoked_at", now).Error; err != nil {
			return err
		}

		at := models.AccessToken{
			TokenHash: hashToken(access),
			ClientID:  rt.ClientID,
			UserID:    rt.UserID,
			Scopes:    rt.Scopes,
			ExpiresAt: time.Now().Add(accessTokenTTL),
		}
		if err := tx.Create(&at).Error; err != nil {
			return err
		}

		nextRT := models.ResourceRefreshToken{
			TokenHash: hashToken(next),
			ClientID:  rt.ClientID,
			UserID:    rt.UserID,
			Scopes:    rt.Scopes,
			ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
		}
		return tx.Create(&nextRT).Error
	})
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	oauthMetrics.RecordTokenIssued("refresh_token")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"access_token":  access,
		"refresh_token": next,
		"token_type":    "Bearer",
		"expires_in":    int(accessTokenTTL.Seconds()),
		"scope":         decodeStrings(rt.Scopes),
	})
}

// Revoke handles POST /api/oauth/revoke for access and refresh tokens.
// *.read scopes marked sticky on a client's grant are never revoked by this
// endpoint — only the token itself is invalidated, sticky read grants stay.
func (s *Server) Revoke(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	hash := hashToken(req.Token)

	now := time.Now().UTC()
	if err := s.db.Model(&models.ResourceRefreshToken{}).
		Where("token_hash = ?", hash).
		Update("revoked_at", now).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	_ = s.db.Where("token_hash = ?", hash).Delete(&models.AccessToken{}).Error

	return c.SendStatus(fiber.StatusOK)
}
