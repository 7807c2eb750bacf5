package models

import "time"

// ActivationPurpose is the closed set of single-use hash purposes.
type ActivationPurpose string

const (
	PurposeActivation          ActivationPurpose = "activation"
	PurposePasswordReset       ActivationPurpose = "password_reset"
	PurposeUserMustSetPassword ActivationPurpose = "user_must_set_password"
	PurposeEmailChangeOld      ActivationPurpose = "email_change_old"
	PurposeEmailChangeNew      ActivationPurpose = "email_change_new"
	PurposePasswordChange      ActivationPurpose = "password_change"
)

// ActivationHashLength is the length of the random hex hash issued to users.
const ActivationHashLength = 40

// ActivationHash is a single-use, time-bounded code tied to one user and purpose.
type ActivationHash struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     uint              `gorm:"index;not null" json:"user_id"`
	Hash       string            `gorm:"uniqueIndex;size:40;not null" json:"hash"`
	Purpose    ActivationPurpose `gorm:"not null" json:"purpose"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ConsumedAt *time.Time        `json:"consumed_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// IsExpired reports whether the hash has passed its expiry instant.
func (a *ActivationHash) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// IsConsumed reports whether the hash has already been used.
func (a *ActivationHash) IsConsumed() bool {
	return a.ConsumedAt != nil
}
