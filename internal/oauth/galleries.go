package oauth

import (
	"strconv"

	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AuthorizedScopes returns the scope set an OAuth bearer token carries, for
// use by the scope-required middleware the server wires around these
// routes.
func (s *Server) AuthorizedScopes(accessToken string) ([]string, uint, bool) {
	var at models.AccessToken
	if err := s.db.Where("token_hash = ?", hashToken(accessToken)).First(&at).Error; err != nil {
		return nil, 0, false
	}
	if at.IsExpired() {
		return nil, 0, false
	}
	return decodeStrings(at.Scopes), at.UserID, true
}

// ListGalleries handles GET /api/oauth/galleries.read-scoped requests.
func (s *Server) ListGalleries(c *fiber.Ctx) error {
	userID, _ := c.Locals("oauthUserID").(uint)
	var galleries []models.Gallery
	if err := s.db.Where("owner_id = ?", userID).Find(&galleries).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"galleries": galleries})
}

// CreateGallery handles POST /api/oauth/galleries (galleries.write scope).
func (s *Server) CreateGallery(c *fiber.Ctx) error {
	userID, _ := c.Locals("oauthUserID").(uint)
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("name is required"))
	}
	gallery := models.Gallery{OwnerID: userID, Name: req.Name}
	if err := s.db.Create(&gallery).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gallery)
}

// DeleteGallery handles DELETE /api/oauth/galleries/:id (galleries.delete
// scope), enforcing that the bearer token's user owns the gallery before
// deleting it.
func (s *Server) DeleteGallery(c *fiber.Ctx) error {
	userID, _ := c.Locals("oauthUserID").(uint)
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid gallery id"))
	}

	var gallery models.Gallery
	if err := s.db.First(&gallery, uint(id)).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("gallery", id))
	}
	if gallery.OwnerID != userID {
		return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("not the gallery owner"))
	}
	if err := s.db.Delete(&gallery).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RPCResult is the {status_code, body} envelope the oauth_* job kinds reply
// with over the job queue's correlation-ID channel, instead of writing
// directly to a fiber.Ctx the way the HTTP handlers above do.
type RPCResult struct {
	StatusCode int `json:"status_code"`
	Body       any `json:"body"`
}

// checkClientScope resolves clientID and confirms requiredScope is
// currently granted to it, the same grant resolution the HTTP scope
// middleware applies to a bearer token's own scope list — here there is no
// token, only the client_id the job payload carries, so the check goes
// straight to resolveGrantedScopes instead of through AuthorizedScopes.
func (s *Server) checkClientScope(clientID, requiredScope string) (models.OAuthClient, *RPCResult) {
	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return client, &RPCResult{StatusCode: 400, Body: fiber.Map{"error": "unknown client"}}
	}
	granted, err := s.resolveGrantedScopes(&client, []string{requiredScope})
	if err != nil {
		return client, &RPCResult{StatusCode: 500, Body: fiber.Map{"error": err.Error()}}
	}
	if !containsStr(granted, requiredScope) {
		return client, &RPCResult{StatusCode: 403, Body: fiber.Map{"error": "missing required scope " + requiredScope}}
	}
	return client, nil
}

// RPCListGalleries backs the oauth_list_galleries job: list every gallery
// owned by userID, identically to ListGalleries but without the Ctx.
func (s *Server) RPCListGalleries(clientID string, userID uint) RPCResult {
	if _, bad := s.checkClientScope(clientID, "galleries.read"); bad != nil {
		return *bad
	}
	var galleries []models.Gallery
	if err := s.db.Where("owner_id = ?", userID).Find(&galleries).Error; err != nil {
		return RPCResult{StatusCode: 500, Body: fiber.Map{"error": err.Error()}}
	}
	return RPCResult{StatusCode: 200, Body: fiber.Map{"galleries": galleries}}
}

// RPCListGalleryImages backs the oauth_list_gallery_images job. This domain
// has no image asset distinct from an upload, so a gallery's images are its
// owner's Upload rows — there is no gallery_id foreign key on Upload to
// narrow by, so every upload owned by userID is returned.
func (s *Server) RPCListGalleryImages(clientID string, userID uint, limit, offset int) RPCResult {
	if _, bad := s.checkClientScope(clientID, "galleries.read"); bad != nil {
		return *bad
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var uploads []models.Upload
	if err := s.db.Where("user_id = ?", userID).Limit(limit).Offset(offset).Find(&uploads).Error; err != nil {
		return RPCResult{StatusCode: 500, Body: fiber.Map{"error": err.Error()}}
	}
	return RPCResult{StatusCode: 200, Body: fiber.Map{"images": uploads}}
}

// RPCDeleteGallery backs the oauth_delete_gallery job.
func (s *Server) RPCDeleteGallery(clientID string, userID uint, galleryID uint) RPCResult {
	if _, bad := s.checkClientScope(clientID, "galleries.delete"); bad != nil {
		return *bad
	}
	var gallery models.Gallery
	if err := s.db.First(&gallery, galleryID).Error; err != nil {
		return RPCResult{StatusCode: 404, Body: fiber.Map{"error": "gallery not found"}}
	}
	if gallery.OwnerID != userID {
		return RPCResult{StatusCode: 403, Body: fiber.Map{"error": "not the gallery owner"}}
	}
	if err := s.db.Delete(&gallery).Error; err != nil {
		return RPCResult{StatusCode: 500, Body: fiber.Map{"error": err.Error()}}
	}
	return RPCResult{StatusCode: 200, Body: fiber.Map{"deleted": true}}
}

// RPCDeletePicture backs the oauth_delete_picture job — "picture" here is an
// Upload row, this domain's closest analog to the original job contract's
// gallery picture. deleter is the upload service's Delete method, passed in
// rather than imported directly to avoid an oauth -> upload package cycle.
func (s *Server) RPCDeletePicture(clientID string, userID uint, uploadUUID string, deleter func(uuid string) error) RPCResult {
	if _, bad := s.checkClientScope(clientID, "galleries.delete"); bad != nil {
		return *bad
	}
	var upload models.Upload
	if err := s.db.Where("uuid = ?", uploadUUID).First(&upload).Error; err != nil {
		return RPCResult{StatusCode: 404, Body: fiber.Map{"error": "picture not found"}}
	}
	if upload.UserID == nil || *upload.UserID != userID {
		return RPCResult{StatusCode: 403, Body: fiber.Map{"error": "not the picture owner"}}
	}
	if err := deleter(uploadUUID); err != nil {
		return RPCResult{StatusCode: 500, Body: fiber.Map{"error": err.Error()}}
	}
	return RPCResult{StatusCode: 200, Body: fiber.Map{"deleted": true}}
}

// ScopeRequired returns middleware that rejects an OAuth bearer request
// lacking requiredScope, resolving the token from the Authorization header.
func (s *Server) ScopeRequired(requiredScope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("bearer token required"))
		}
		token := header[len(prefix):]

		scopes, userID, ok := s.AuthorizedScopes(token)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("invalid or expired access token"))
		}
		if !containsStr(scopes, requiredScope) {
			return models.RespondWithError(c, fiber.StatusForbidden, models.NewForbiddenError("missing required scope "+requiredScope))
		}
		c.Locals("oauthUserID", userID)
		c.Locals("oauthScopes", scopes)
		return c.Next()
	}
}
