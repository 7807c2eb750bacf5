package oauth

import (
	"net/url"
	"strings"
	"time"

	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Authorize handles GET /api/oauth/authorize. The caller must already be
// authenticated (see middleware.AuthRequired); this handler validates the
// client/redirect/PKCE parameters in order (client+redirect_uri, scope
// resolution, PKCE presence for public clients), checks for an existing
// consent grant, and — if consent has already been given for every
// requested scope — 302-redirects to redirect_uri with the issued code and
// the caller's state instead of rendering a consent screen.
func (s *Server) Authorize(c *fiber.Ctx) error {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	scopeParam := c.Query("scope")
	state := c.Query("state")
	challenge := c.Query("code_challenge")
	challengeMethod := c.Query("code_challenge_method")
	userID, _ := c.Locals("userID").(uint)

	if clientID == "" || redirectURI == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("client_id and redirect_uri are required"))
	}

	parsed, err := url.Parse(redirectURI)
	if err != nil || (parsed.Scheme != "https" && parsed.Hostname() != "localhost") {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("redirect_uri must use https (or localhost)"))
	}

	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewNotFoundError("client", clientID))
	}
	allowed := decodeStrings(client.RedirectURIs)
	if !containsStr(allowed, redirectURI) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("redirect_uri is not registered for this client"))
	}

	requested := strings.Fields(scopeParam)
	granted, err := s.resolveGrantedScopes(&client, requested)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if client.ClientType == models.OAuthClientPublic {
		if challenge == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("code_challenge is required for public clients"))
		}
		if challengeMethod != "S256" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("code_challenge_method must be S256 for public clients"))
		}
	}

	var consent models.ConsentGrant
	hasConsent := s.db.Where("user_id = ? AND client_id = ?", userID, client.ID).First(&consent).Error == nil
	if hasConsent {
		previously := decodeStrings(consent.GrantedScopes)
		allCovered := true
		for _, sc := range granted {
			if !containsStr(previously, sc) {
				allCovered = false
				break
			}
		}
		if !allCovered {
			hasConsent = false
		}
	}

	if !hasConsent {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"consent_required": true,
			"client_name":      client.ClientID,
			"scopes":           granted,
			"state":            state,
		})
	}

	code, err := s.issueAuthorizationCode(client.ID, userID, redirectURI, granted, challenge, challengeMethod)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Redirect(callbackURL(redirectURI, code, state), fiber.StatusFound)
}

// callbackURL appends code and state query parameters to a registered
// redirect_uri, preserving any query parameters the client already set.
func callbackURL(redirectURI, code, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Consent handles POST /api/oauth/consent, recording the user's decision and
// issuing the authorization code once accepted.
func (s *Server) Consent(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	var req struct {
		ClientID            string   `json:"client_id"`
		RedirectURI         string   `json:"redirect_uri"`
		Scopes              []string `json:"scopes"`
		State               string   `json:"state"`
		CodeChallenge       string   `json:"code_challenge"`
		CodeChallengeMethod string   `json:"code_challenge_method"`
		Approve             bool     `json:"approve"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}
	if !req.Approve {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"denied": true})
	}

	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", req.ClientID).First(&client).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewNotFoundError("client", req.ClientID))
	}
	if client.ClientType == models.OAuthClientPublic && req.CodeChallengeMethod != "S256" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("code_challenge_method must be S256 for public clients"))
	}

	consent := models.ConsentGrant{UserID: userID, ClientID: client.ID, GrantedScopes: encodeStrings(req.Scopes)}
	if err := s.db.Where("user_id = ? AND client_id = ?", userID, client.ID).
		Assign(consent).FirstOrCreate(&consent).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	code, err := s.issueAuthorizationCode(client.ID, userID, req.RedirectURI, req.Scopes, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.Redirect(callbackURL(req.RedirectURI, code, req.State), fiber.StatusFound)
}

func (s *Server) issueAuthorizationCode(clientID, userID uint, redirectURI string, scopes []string, challenge, method string) (string, error) {
	code := uuid.NewString()
	record := models.AuthorizationCode{
		Code:                code,
		ClientID:            clientID,
		UserID:              userID,
		RedirectURI:         redirectURI,
		Scopes:              encodeStrings(scopes),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().Add(s.authCodeTTL()),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return "", err
	}
	return code, nil
}
