package validator

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// passwordMatches compares a configured credential (which may be a bcrypt
// hash or a plaintext pre-shared secret) against the password supplied in
// PI_05_ACCESS_CONTROL, grounded on kryptco-kr's heavy reliance on
// golang.org/x/crypto for credential handling.
func passwordMatches(configured, given string) bool {
	if isBcryptHash(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(given)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
