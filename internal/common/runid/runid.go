package runid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxRunIDLength is the maximum total length (same as UUID: 36 chars)
	MaxRunIDLength = 36
	// PrefixLength is the length of the random prefix
	PrefixLength = 5
	// MaxLabelLength is the max length for the sanitized label portion
	// 36 total - 5 prefix - 1 hyphen = 30
	MaxLabelLength = MaxRunIDLength - PrefixLength - 1
)

var (
	// sanitizeRegex removes all characters except a-z, A-Z, 0-9, and hyphens
	sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	// consecutiveHyphensRegex matches one or more consecutive hyphens
	consecutiveHyphensRegex = regexp.MustCompile(`-+`)
)

// New creates a unique run identifier from an optional label (task or job name).
// The label is sanitized (keeping only [a-zA-Z0-9-]) and prefixed with 5 random
// alphanumeric characters for uniqueness: {5-random-chars}-{sanitized-label}.
// If the label is empty or becomes empty after sanitization, falls back to UUID.
// The total length is capped at 36 characters (UUID length), so run ids are safe
// to use anywhere a job id fits.
func New(label string) string {
	sanitized := strings.ReplaceAll(label, " ", "-")
	sanitized = sanitizeRegex.ReplaceAllString(sanitized, "")
	sanitized = consecutiveHyphensRegex.ReplaceAllString(sanitized, "-")

	sanitized = strings.TrimPrefix(sanitized, "-")
	sanitized = strings.TrimSuffix(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}

	prefix := generateRandomPrefix()

	if len(sanitized) > MaxLabelLength {
		sanitized = sanitized[:MaxLabelLength]
	}

	return prefix + "-" + sanitized
}

// generateRandomPrefix creates a 5-character random alphanumeric string using crypto/rand
func generateRandomPrefix() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to UUID-based prefix if crypto/rand fails
		return uuid.New().String()[:PrefixLength]
	}

	return hex.EncodeToString(bytes)[:PrefixLength]
}
