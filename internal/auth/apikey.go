package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// APIKeyStore holds the SHA-256 hashes of the keys allowed to request tokens.
type APIKeyStore struct {
	hashes []string
}

func NewAPIKeyStore(keys []string) *APIKeyStore {
	s := &APIKeyStore{}
	for _, k := range keys {
		if k != "" {
			s.hashes = append(s.hashes, HashAPIKey(k))
		}
	}
	return s
}

// Valid reports whether key is one of the configured keys. Every stored hash
// is compared so timing does not depend on which key matched.
func (s *APIKeyStore) Valid(key string) bool {
	if key == "" {
		return false
	}
	hash := []byte(HashAPIKey(key))
	match := 0
	for _, h := range s.hashes {
		match |= subtle.ConstantTimeCompare([]byte(h), hash)
	}
	return match == 1
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// SubjectForKey derives the token subject for an API key, so logs and the
// usage table never hold the key itself.
func SubjectForKey(key string) string {
	return "key-" + HashAPIKey(key)[:16]
}
