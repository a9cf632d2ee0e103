// Package auth provides API key utilities for the gvmscan REST API.
// Keys are random tokens handed to clients once; the server configuration
// only ever holds their bcrypt hashes.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyLength is the length of the random part of an API key
	KeyLength = 32
	// KeyPrefix is the standard prefix for all API keys
	KeyPrefix = "gvs"
	// DisplayPrefixLength is the number of random characters shown in logs
	DisplayPrefixLength = 8

	// DefaultCost is the bcrypt cost for hashing API keys
	DefaultCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt (72 bytes)
	BcryptMaxInputLength = 72
)

// GeneratedKey is a newly generated API key and the hash to put in the
// server configuration.
type GeneratedKey struct {
	Key           string `json:"key" yaml:"key"`
	Hash          string `json:"hash" yaml:"hash"`
	DisplayPrefix string `json:"display_prefix" yaml:"display_prefix"`
}

// GenerateKey creates a new random API key and hashes it with cost.
func GenerateKey(cost int) (*GeneratedKey, error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters
	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	randomPart = randomPart[:KeyLength]

	key := KeyPrefix + "_" + randomPart
	hash, err := HashKey(key, cost)
	if err != nil {
		return nil, err
	}

	return &GeneratedKey{
		Key:           key,
		Hash:          hash,
		DisplayPrefix: DisplayPrefix(key),
	}, nil
}

// HashKey creates a bcrypt hash of an API key. A cost outside bcrypt's
// range falls back to DefaultCost.
func HashKey(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword(keyBytes(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// ValidateKey reports whether key matches the stored bcrypt hash.
func ValidateKey(key, storedHash string) bool {
	if key == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), keyBytes(key)) == nil
}

// MatchesAny reports whether key matches one of hashes.
func MatchesAny(key string, hashes []string) bool {
	for _, h := range hashes {
		if ValidateKey(key, h) {
			return true
		}
	}
	return false
}

// keyBytes pre-hashes keys longer than bcrypt accepts.
func keyBytes(key string) []byte {
	b := []byte(key)
	if len(b) > BcryptMaxInputLength {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return b
}

// IsValidKeyFormat checks that key looks like a generated API key.
func IsValidKeyFormat(key string) bool {
	rest, ok := strings.CutPrefix(key, KeyPrefix+"_")
	if !ok || len(rest) != KeyLength {
		return false
	}
	for _, c := range rest {
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

// DisplayPrefix returns a log-safe prefix of key.
func DisplayPrefix(key string) string {
	if !IsValidKeyFormat(key) {
		return "invalid_key"
	}
	return key[:len(KeyPrefix)+1+DisplayPrefixLength] + "..."
}
