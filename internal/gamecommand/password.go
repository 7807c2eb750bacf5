package gamecommand

import "golang.org/x/crypto/bcrypt"

// hashRoomPassword hashes an optional room password the same way the
// teacher hashes account passwords (internal/server/auth_handlers.go).
func hashRoomPassword(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return ""
	}
	return string(hash)
}

func checkRoomPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
