package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const apiKeyPrefix = "omc_"

// GenerateAPIKey creates a new API key.
// Format: omc_<uuid>_<random_secret>
func GenerateAPIKey() (string, error) {
	id := uuid.New()

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return fmt.Sprintf("%s%s_%s", apiKeyPrefix, id.String(), hex.EncodeToString(secretBytes)), nil
}

// ValidKeyFormat checks prefix and length before any hashing is done.
func ValidKeyFormat(key string) bool {
	if len(key) != len(apiKeyPrefix)+36+1+64 {
		return false
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return false
	}
	_, err := uuid.Parse(key[len(apiKeyPrefix) : len(apiKeyPrefix)+36])
	return err == nil
}
