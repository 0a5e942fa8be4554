package token

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestGenerate_Format(t *testing.T) {
	req := require.New(t)

	tok, err := Generate()

	req.NoError(err)
	req.Len(tok, EncodedLength)
	req.Regexp(hexToken, tok)
}

func TestGenerate_NoCollisions(t *testing.T) {
	req := require.New(t)

	// 256 bits of entropy: any repeat across 10k draws is a generator bug.
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := Generate()
		req.NoError(err)
		_, dup := seen[tok]
		req.False(dup, "duplicate token issued: %s", tok)
		seen[tok] = struct{}{}
	}
}

func TestGenerateUnique_FirstAttemptFree(t *testing.T) {
	req := require.New(t)
	probes := 0
	exists := func(ctx context.Context, tok string) (bool, error) {
		probes++
		return false, nil
	}

	tok, err := GenerateUnique(context.Background(), exists, 0)

	req.NoError(err)
	req.Regexp(hexToken, tok)
	req.Equal(1, probes)
}

func TestGenerateUnique_RetriesThenSucceeds(t *testing.T) {
	req := require.New(t)
	probes := 0
	exists := func(ctx context.Context, tok string) (bool, error) {
		probes++
		return probes < 3, nil // first two draws collide
	}

	tok, err := GenerateUnique(context.Background(), exists, 5)

	req.NoError(err)
	req.NotEmpty(tok)
	req.Equal(3, probes)
}

func TestGenerateUnique_ExhaustedRetries(t *testing.T) {
	req := require.New(t)
	probes := 0
	exists := func(ctx context.Context, tok string) (bool, error) {
		probes++
		return true, nil // every draw collides
	}

	_, err := GenerateUnique(context.Background(), exists, 5)

	req.ErrorIs(err, ErrExhaustedRetries)
	req.Equal(5, probes)
}

func TestGenerateUnique_ProbeFailurePropagates(t *testing.T) {
	req := require.New(t)
	probeErr := errors.New("store down")
	exists := func(ctx context.Context, tok string) (bool, error) {
		return false, probeErr
	}

	_, err := GenerateUnique(context.Background(), exists, 5)

	req.ErrorIs(err, probeErr)
}
