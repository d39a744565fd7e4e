// Package pkce produces Proof Key for Code Exchange material (RFC 7636)
// for the authorization-code flow.
//
// A Pair is generated once per login flow and is immutable afterwards: the
// verifier goes into the token exchange, the derived challenge into the
// authorize URL.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// minVerifierLength is the lower bound we accept for a generated verifier.
// RFC 7636 allows 43-128 characters; staying at 50+ keeps a comfortable
// entropy margin after stripping the base64 punctuation.
const minVerifierLength = 50

// Pair binds a code verifier to its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
}

// NewPair generates a fresh verifier and derives its challenge.
func NewPair() (Pair, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
	}, nil
}

// GenerateVerifier produces a cryptographically random, purely alphanumeric
// verifier of at least 50 characters. Base64 punctuation is stripped rather
// than escaped, so generation retries on the (rare) draw that falls below
// the length floor.
func GenerateVerifier() (string, error) {
	for {
		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}

		verifier := stripNonAlphanumeric(base64.RawURLEncoding.EncodeToString(buf))
		if len(verifier) >= minVerifierLength {
			return verifier, nil
		}
	}
}

// DeriveChallenge returns the S256 code challenge for verifier:
// base64url(SHA-256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func stripNonAlphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
