package oauth

import (
	"playhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// EnableProduct handles POST /api/oauth/products/enable. Enabling an API
// product auto-grants every scope in its bundle atomically — a single
// ClientProductGrant row, expanded at authorize/token time by
// resolveGrantedScopes rather than fanned out into individual scope rows.
func (s *Server) EnableProduct(c *fiber.Ctx) error {
	var req struct {
		ClientID   string `json:"client_id"`
		ProductKey string `json:"product_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	client, product, err := s.lookupClientAndProduct(req.ClientID, req.ProductKey)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	grant := models.ClientProductGrant{ClientID: client.ID, APIProductKey: product.Key}
	if err := s.db.Where("client_id = ? AND api_product_key = ?", client.ID, product.Key).
		FirstOrCreate(&grant).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"enabled": true, "scopes": decodeStrings(product.Scopes)})
}

// DisableProduct handles POST /api/oauth/products/disable. Removing the
// product link drops the bundle, but any *.read scope it granted is made
// sticky first — once a client has read access to a resource through a
// product, disabling the product must not silently revoke reads already in
// flight against it.
func (s *Server) DisableProduct(c *fiber.Ctx) error {
	var req struct {
		ClientID   string `json:"client_id"`
		ProductKey string `json:"product_key"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	client, product, err := s.lookupClientAndProduct(req.ClientID, req.ProductKey)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	for _, name := range decodeStrings(product.Scopes) {
		sc := models.Scope{Name: name}
		if !sc.IsReadScope() {
			continue
		}
		grant := models.ClientScopeGrant{ClientID: client.ID, ScopeName: name, StickyRead: true}
		if err := s.db.Where("client_id = ? AND scope_name = ?", client.ID, name).
			Assign(models.ClientScopeGrant{StickyRead: true}).FirstOrCreate(&grant).Error; err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
	}

	if err := s.db.Where("client_id = ? AND api_product_key = ?", client.ID, product.Key).
		Delete(&models.ClientProductGrant{}).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

// RevokeScope handles POST /api/oauth/scopes/revoke. A *.read scope still
// reachable through an active API product grant, or already marked sticky
// from a disabled one, cannot be revoked directly: the request is rejected
// with error=scope_locked instead of leaving the grant in an inconsistent
// state.
func (s *Server) RevokeScope(c *fiber.Ctx) error {
	var req struct {
		ClientID string `json:"client_id"`
		Scope    string `json:"scope"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("invalid request body"))
	}

	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", req.ClientID).First(&client).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewNotFoundError("client", req.ClientID))
	}

	sc := models.Scope{Name: req.Scope}
	if sc.IsReadScope() {
		granted, err := s.resolveGrantedScopes(&client, []string{req.Scope})
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if len(granted) > 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scope_locked"})
		}
	}

	if err := s.db.Where("client_id = ? AND scope_name = ?", client.ID, req.Scope).
		Delete(&models.ClientScopeGrant{}).Error; err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) lookupClientAndProduct(clientID, productKey string) (models.OAuthClient, models.APIProduct, error) {
	var client models.OAuthClient
	if err := s.db.Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return client, models.APIProduct{}, models.NewNotFoundError("client", clientID)
	}
	var product models.APIProduct
	if err := s.db.Where("key = ?", productKey).First(&product).Error; err != nil {
		return client, product, models.NewNotFoundError("api_product", productKey)
	}
	return client, product, nil
}
