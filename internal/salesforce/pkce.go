package salesforce

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/oauth2"
)

const maxVerifierLength = 128

// GenerateCodeVerifier returns a PKCE verifier: 32 random bytes, base64url
// without padding, capped at 128 characters.
func GenerateCodeVerifier() string {
	v := oauth2.GenerateVerifier()
	if len(v) > maxVerifierLength {
		v = v[:maxVerifierLength]
	}
	return v
}

// GenerateCodeChallenge derives the S256 challenge for verifier.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// randomState returns 16 random bytes, hex encoded.
func randomState() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
