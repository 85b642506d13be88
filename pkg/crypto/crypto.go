package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// ErrEmptyKey is returned when a keyed digest is requested without a key.
var ErrEmptyKey = errors.New("crypto: key must not be empty")

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// KeyedDigest returns the hex encoded BLAKE2b-256 MAC of value under key.
// Keys longer than the BLAKE2b limit are compressed first.
func KeyedDigest(key []byte, value string) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}

	h, err := blake2b.New256(key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ConstantTimeEqual compares two strings without leaking timing on content.
// Strings of different length compare unequal.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
