package oauth

import (
	"crypto/sha256"
	"encoding/base64"
)

// verifyPKCE checks an S256 PKCE code_verifier against the stored challenge.
// No PKCE helper library appears anywhere in the example pack; two stdlib
// calls are more honest than pulling in a dependency for this.
func verifyPKCE(method, challenge, verifier string) bool {
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return computed == challenge
	case "plain", "":
		return verifier == challenge
	default:
		return false
	}
}
