package models

import "time"

// RefreshToken is stored hashed at rest; the raw 32-byte opaque token exists
// only in the HTTP response and the client cookie. Validating a token
// rotates the chain: the row is revoked and a fresh one issued.
type RefreshToken struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	TokenHash  string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// IsValid reports whether the token is still usable: not revoked, not expired.
func (r *RefreshToken) IsValid() bool {
	if r.RevokedAt != nil {
		return false
	}
	return time.Now().Before(r.ExpiresAt)
}
