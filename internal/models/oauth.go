package models

import "time"

// OAuthClientType is the closed set of registrable client types.
type OAuthClientType string

const (
	OAuthClientPublic       OAuthClientType = "public"
	OAuthClientConfidential OAuthClientType = "confidential"
)

// OAuthClient is a registered third-party consumer of the authorization server.
type OAuthClient struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ClientID          string          `gorm:"uniqueIndex;not null" json:"client_id"`
	ClientType        OAuthClientType `gorm:"not null" json:"client_type"`
	ClientSecretHash  string          `json:"-"`
	OwnerUserID       uint            `gorm:"index;not null" json:"owner_user_id"`
	RedirectURIs      string          `gorm:"type:json" json:"-"` // JSON []string, https-only except localhost
	AuthorizedDomains string          `gorm:"type:json" json:"-"` // JSON []string
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Scope names a single grantable capability. A Scope with an APIProductKey
// set belongs to that product's bundle.
type Scope struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Name          string  `gorm:"uniqueIndex;not null" json:"name"` // e.g. "galleries.read"
	APIProductKey *string `json:"api_product_id,omitempty"`
}

// IsReadScope reports whether the scope is a non-revocable "*.read" scope.
func (s *Scope) IsReadScope() bool {
	n := s.Name
	return len(n) >= 5 && n[len(n)-5:] == ".read"
}

// APIProduct bundles a set of scopes that are auto-granted together.
type APIProduct struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Scopes    string    `gorm:"type:json" json:"-"` // JSON []string of scope names
	CreatedAt time.Time `json:"created_at"`
}

// ClientProductGrant records an API product enabled on a client, the source
// of the "sticky read scope" rule: disabling the product removes this row,
// but *.read scopes already surfaced through it remain separately granted.
type ClientProductGrant struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClientID      uint      `gorm:"index:idx_client_product,unique;not null" json:"client_id"`
	APIProductKey string    `gorm:"index:idx_client_product,unique;not null" json:"api_product_key"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClientScopeGrant records one scope directly granted to a client, whether
// via an API product or standalone. StickyRead=true marks a "*.read" scope
// that survived its product being disabled and can no longer be revoked.
type ClientScopeGrant struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClientID   uint      `gorm:"index:idx_client_scope,unique;not null" json:"client_id"`
	ScopeName  string    `gorm:"index:idx_client_scope,unique;not null" json:"scope_name"`
	StickyRead bool      `gorm:"default:false" json:"sticky_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConsentGrant remembers a user's consent decision for a client so
// /authorize can skip the consent screen on subsequent visits.
type ConsentGrant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index:idx_user_client,unique;not null" json:"user_id"`
	ClientID       uint      `gorm:"index:idx_user_client,unique;not null" json:"client_id"`
	GrantedScopes  string    `gorm:"type:json" json:"-"` // JSON []string
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AuthorizationCode is the short-lived code issued at the end of /authorize.
// Single-use: Consumed flips to true the instant /token exchanges it.
type AuthorizationCode struct {
	ID                  uint      `gorm:"primaryKey" json:"-"`
	Code                string    `gorm:"uniqueIndex;not null" json:"-"`
	ClientID            uint      `gorm:"index;not null" json:"-"`
	UserID              uint      `gorm:"index;not null" json:"-"`
	RedirectURI         string    `json:"-"`
	Scopes              string    `gorm:"type:json" json:"-"` // JSON []string
	CodeChallenge       string    `json:"-"`
	CodeChallengeMethod string    `json:"-"`
	ExpiresAt           time.Time `json:"-"`
	Consumed            bool      `gorm:"default:false" json:"-"`
	CreatedAt           time.Time `json:"-"`
}

// IsExpired reports whether the authorization code has passed its TTL (≤60s).
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// AccessToken is an OAuth bearer token minted for a client/user/scope set.
type AccessToken struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	TokenHash string    `gorm:"uniqueIndex;not null" json:"-"`
	ClientID  uint      `gorm:"index;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"-"`
	Scopes    string    `gorm:"type:json" json:"-"`
	ExpiresAt time.Time `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// IsExpired reports whether the access token has passed its expiry instant.
func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// ResourceRefreshToken is the OAuth-side refresh token (distinct from the
// session RefreshToken used by the first-party web session).
type ResourceRefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ClientID  uint       `gorm:"index;not null" json:"-"`
	UserID    uint       `gorm:"index;not null" json:"-"`
	Scopes    string     `gorm:"type:json" json:"-"`
	ExpiresAt time.Time  `json:"-"`
	RevokedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"-"`
}

// IsValid reports whether the resource refresh token can still be exchanged.
func (t *ResourceRefreshToken) IsValid() bool {
	if t.RevokedAt != nil {
		return false
	}
	return time.Now().Before(t.ExpiresAt)
}

// Gallery is the minimal resource the galleries.* scopes guard. Deep CRUD
// beyond ownership-checked read/write/edit/delete is out of scope.
type Gallery struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"index;not null" json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
