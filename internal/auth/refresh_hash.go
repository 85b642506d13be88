package auth

import (
	"errors"

	"github.com/charlesng35/authcore/pkg/crypto"
)

// RefreshHasher derives the stored form of a refresh token as a BLAKE2b MAC keyed by a server pepper.
type RefreshHasher struct {
	pepper []byte
}

// NewRefreshHasher returns a hasher keyed by pepper.
func NewRefreshHasher(pepper string) (*RefreshHasher, error) {
	if pepper == "" {
		return nil, errors.New("refresh hasher: pepper must be provided")
	}
	return &RefreshHasher{pepper: []byte(pepper)}, nil
}

// Hash returns the hex digest persisted in sessions.refresh_token_hash.
func (h *RefreshHasher) Hash(token string) (string, error) {
	return crypto.KeyedDigest(h.pepper, token)
}

// Equal reports whether token hashes to stored, comparing in constant time.
func (h *RefreshHasher) Equal(token, stored string) bool {
	digest, err := h.Hash(token)
	if err != nil {
		return false
	}
	return crypto.ConstantTimeEqual(digest, stored)
}
