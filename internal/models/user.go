package models

import (
	"time"

	"gorm.io/gorm"
)

// Permission tiers, compared against RequirePermission(tier).
const (
	PermissionUser       = 1
	PermissionAdmin      = 10
	PermissionModerator  = 50
	PermissionSuperAdmin = 100
)

// User is the authoritative identity row. Money is always integer minor
// units (cents); no float arithmetic touches balance.
type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Username            string         `gorm:"unique;not null" json:"username"`
	Email               string         `gorm:"unique;not null" json:"email"`
	Password            string         `gorm:"not null" json:"-"`
	FirstName           string         `json:"first_name"`
	LastName            string         `json:"last_name"`
	Bio                 string         `json:"bio"`
	Avatar              string         `json:"avatar"`
	AvatarUploadID      *uint          `json:"avatar_upload_id,omitempty"`
	BalanceMinorUnits   int64          `gorm:"default:0" json:"balance_minor_units"`
	Permissions         int            `gorm:"default:1" json:"permissions"`
	IsAdmin             bool           `gorm:"default:false" json:"is_admin"`
	IsBanned            bool           `gorm:"default:false" json:"is_banned"`
	Activated           bool           `gorm:"default:false" json:"activated"`
	UserMustSetPassword bool           `gorm:"default:false" json:"user_must_set_password"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasPermission reports whether the user's tier meets or exceeds required.
func (u *User) HasPermission(required int) bool {
	if u.IsAdmin && required <= PermissionAdmin {
		return true
	}
	return u.Permissions >= required
}

// RoomBan records a user's ban from a specific game room: a joined row,
// not a duplicated username string on the room itself.
type RoomBan struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index;not null" json:"room_id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Username  *string   `json:"username"` // known display name at ban time, or null
	CreatedAt time.Time `json:"created_at"`
}
