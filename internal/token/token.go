// Package token issues the opaque bearer credentials that gate meeting access.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// ByteLength is the entropy of one token in bytes.
	ByteLength = 32
	// EncodedLength is the length of a rendered token (lowercase hex).
	EncodedLength = ByteLength * 2
	// DefaultMaxAttempts bounds the uniqueness probe in GenerateUnique.
	DefaultMaxAttempts = 5
)

// ErrExhaustedRetries is returned when GenerateUnique cannot find an unused
// token within its attempt bound.
var ErrExhaustedRetries = errors.New("token: exhausted unique-generation attempts")

// ExistsFunc probes the durable store for a token collision.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generate returns 32 cryptographically random bytes rendered as 64 lowercase
// hex characters. It fails only when the secure random source is unavailable,
// in which case the caller cannot proceed.
func Generate() (string, error) {
	b := make([]byte, ByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateUnique returns a token for which exists reports false. Collisions
// are astronomically unlikely, so the loop is bounded rather than open-ended;
// once maxAttempts is exhausted it fails with ErrExhaustedRetries.
// maxAttempts <= 0 selects DefaultMaxAttempts. The probe is an optimization
// only: the store's unique constraint remains the authority under concurrent
// inserts.
func GenerateUnique(ctx context.Context, exists ExistsFunc, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		t, err := Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, t)
		if err != nil {
			return "", fmt.Errorf("probe token: %w", err)
		}
		if !taken {
			return t, nil
		}
	}
	return "", ErrExhaustedRetries
}
