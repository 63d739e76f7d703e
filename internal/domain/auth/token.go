// Package auth verifies webhook bearer tokens against stored hashes.
// Tokens never appear in the config file in clear text; operators store
// either an Argon2id hash (produced by the hash-token command) or a
// SHA-256 hex digest.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidToken is returned when a presented token matches no stored hash.
var ErrInvalidToken = errors.New("invalid token")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// TokenVerifier checks presented tokens against a fixed set of stored
// hashes. The set is loaded from config at startup and never mutated, so
// no locking is needed.
type TokenVerifier struct {
	hashes []string
}

// NewTokenVerifier creates a verifier over the given stored hashes.
// Each hash must be in a recognized format; mixing Argon2id and SHA-256
// entries is allowed.
func NewTokenVerifier(hashes []string) (*TokenVerifier, error) {
	for _, h := range hashes {
		if DetectHashType(h) == "unknown" {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHashType, redact(h))
		}
	}
	return &TokenVerifier{hashes: hashes}, nil
}

// Verify checks a raw token against every stored hash.
// The SHA-256 fast path runs first so cheap hashes are not stuck behind
// Argon2id comparisons. Returns ErrInvalidToken when nothing matches.
func (v *TokenVerifier) Verify(rawToken string) error {
	var deferred []string
	for _, stored := range v.hashes {
		if DetectHashType(stored) != "sha256" {
			deferred = append(deferred, stored)
			continue
		}
		if match, err := VerifyToken(rawToken, stored); err == nil && match {
			return nil
		}
	}
	for _, stored := range deferred {
		if match, err := VerifyToken(rawToken, stored); err == nil && match {
			return nil
		}
	}
	return ErrInvalidToken
}

// Enabled reports whether any hashes are configured. With no hashes the
// webhook endpoint accepts unauthenticated requests.
func (v *TokenVerifier) Enabled() bool {
	return len(v.hashes) > 0
}

// HashToken returns the SHA-256 hex hash of the raw token, prefixed with
// "sha256:" so the format is self-describing in config files.
func HashToken(rawToken string) string {
	hash := sha256.Sum256([]byte(rawToken))
	return "sha256:" + hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashTokenArgon2id returns an Argon2id hash of the raw token in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashTokenArgon2id(rawToken string) (string, error) {
	return argon2id.CreateHash(rawToken, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	// Bare SHA-256 hex is exactly 64 hex characters
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyToken verifies a raw token against one stored hash.
// Supports Argon2id (PHC format), SHA-256 prefixed, and bare SHA-256 hex.
// Returns (true, nil) on match, (false, nil) on mismatch,
// (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyToken(rawToken, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawToken, storedHash)

	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		hash := sha256.Sum256([]byte(rawToken))
		computed := hex.EncodeToString(hash[:])

		// Constant-time comparison to prevent timing attacks
		match := subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
		return match, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed hashes with
// invalid parameters (e.g. t=0 rounds), so those become errors instead.
func safeArgon2idCompare(rawToken, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawToken, storedHash)
}

// redact shortens a hash for error messages so logs never carry full
// credential material.
func redact(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12] + "..."
}
