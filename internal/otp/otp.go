// Package otp generates and verifies numeric one-time codes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// DefaultLength is the default number of digits in a generated code.
const DefaultLength = 6

// Generate returns a numeric OTP string of the given length (e.g. "123456").
// Each digit is independently uniform over 0–9; uses crypto/rand.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("otp: length must be positive")
	}
	s := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		// Reject bytes >= 250 so b%10 stays uniform.
		if buf[0] >= 250 {
			continue
		}
		s[i] = '0' + buf[0]%10
		i++
	}
	return string(s), nil
}

// Hash returns a SHA-256 hash of the OTP string, hex-encoded.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal performs constant-time comparison of the provided code's hash with the stored hash.
func Equal(providedCode, storedHash string) bool {
	providedHash := Hash(providedCode)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
