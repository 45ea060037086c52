package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost matches the work factor used by existing password hashes.
const bcryptCost = 12

// HashPassword produces a salted one-way digest of plaintext. Failures
// are fatal to the calling operation.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plaintext matches hash. It never
// fails on mismatched input; any error means false.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
