// Package security implements the one-way password hash used for queue
// credentials and the short-lived session tokens issued after a successful
// verification.
package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost is bcrypt's default work factor.
const bcryptCost = 10

// HashPassword hashes plaintext with bcrypt, truncating to bcrypt's 72-byte
// input limit.
func HashPassword(plaintext string) (string, error) {
	b := []byte(plaintext)
	if len(b) > 72 {
		b = b[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(b, bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches hash.
func VerifyPassword(hash, plaintext string) bool {
	b := []byte(plaintext)
	if len(b) > 72 {
		b = b[:72]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), b) == nil
}
