// Package oauth implements an authorization-code + PKCE OAuth server for
// third-party clients. Client/scope/consent storage follows the
// dexidp/dex split of concerns (clients, auth requests, refresh tokens,
// consent each get their own persisted shape rather than one combined
// blob) adapted to this single-provider, single-redirect flow; session
// mechanics (bcrypt password check, JWT bearer issuance) are lifted from
// internal/server/auth_handlers.go.
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"playhub/internal/config"
	"playhub/internal/models"

	"gorm.io/gorm"
)

// Server holds the dependencies the authorize/token/revoke handlers share.
type Server struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewServer wires an oauth.Server against the relational store.
func NewServer(db *gorm.DB, cfg *config.Config) *Server {
	return &Server{db: db, cfg: cfg}
}

func (s *Server) authCodeTTL() time.Duration {
	if s.cfg != nil && s.cfg.OAuthAuthCodeTTLSecond > 0 {
		d := time.Duration(s.cfg.OAuthAuthCodeTTLSecond) * time.Second
		if d > 60*time.Second {
			d = 60 * time.Second
		}
		return d
	}
	return 60 * time.Second
}

func (s *Server) refreshTokenLength() int {
	if s.cfg != nil && s.cfg.OAuthRefreshTokenLength >= 32 {
		return s.cfg.OAuthRefreshTokenLength
	}
	return 48
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func containsStr(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// resolveGrantedScopes expands a client's requested scopes against its
// product grants and standalone scope grants, honoring the sticky-read
// rule: a *.read scope already marked sticky remains available even if its
// originating product grant has since been removed.
func (s *Server) resolveGrantedScopes(client *models.OAuthClient, requested []string) ([]string, error) {
	var standalone []models.ClientScopeGrant
	if err := s.db.Where("client_id = ?", client.ID).Find(&standalone).Error; err != nil {
		return nil, err
	}
	granted := make(map[string]bool, len(standalone))
	for _, g := range standalone {
		granted[g.ScopeName] = true
	}

	var products []models.ClientProductGrant
	if err := s.db.Where("client_id = ?", client.ID).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, pg := range products {
		var product models.APIProduct
		if err := s.db.Where("key = ?", pg.APIProductKey).First(&product).Error; err != nil {
			continue
		}
		for _, name := range decodeStrings(product.Scopes) {
			granted[name] = true
		}
	}

	out := make([]string, 0, len(requested))
	for _, name := range requested {
		if granted[name] {
			out = append(out, name)
		}
	}
	return out, nil
}
