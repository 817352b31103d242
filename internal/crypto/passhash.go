// Package crypto implements server-side password hashing and reset-token helpers.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted for stored passwords.
const MinCost = 10

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

func clampCost(cost int) int {
	switch {
	case cost < MinCost:
		return MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns a salted bcrypt hash. Costs below MinCost are raised to MinCost.
func HashPassword(password []byte, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, clampCost(cost))
}

// VerifyPassword reports whether password matches the bcrypt hash.
func VerifyPassword(password, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}

// DummyHash hashes a random secret at the same effective cost HashPassword
// uses. Logins for unknown accounts compare against it so they take as long
// as a wrong password.
func DummyHash(cost int) ([]byte, error) {
	secret, err := RandBytes(32)
	if err != nil {
		return nil, err
	}
	return HashPassword([]byte(base64.RawStdEncoding.EncodeToString(secret)), cost)
}

// NewResetToken returns a URL-safe token for the user and the digest to persist.
func NewResetToken() (token string, digest []byte, err error) {
	raw, err := RandBytes(32)
	if err != nil {
		return "", nil, err
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, TokenDigest(token), nil
}

// TokenDigest is the SHA-256 of a reset token string.
func TokenDigest(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}
