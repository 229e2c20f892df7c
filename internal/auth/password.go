// Package auth verifies admin credentials and manages password hashes.
//
// Hashes are stored as argon2 PHC strings:
//
//	$argon2id$v=19$m=15000,t=2,p=1$<salt>$<key>
//
// Both argon2id and argon2i strings are accepted on verification; new hashes
// always use argon2id with DefaultParams.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2 cost parameters.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is used for every hash this service computes.
var DefaultParams = Params{
	Memory:      15000,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

var (
	// ErrPasswordMismatch means the candidate does not match the stored hash.
	ErrPasswordMismatch = errors.New("password does not match")
	// ErrMalformedHash means the stored value is not a supported PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

var b64 = base64.RawStdEncoding

// ComputePasswordHash hashes secret with a fresh random salt.
func ComputePasswordHash(secret string, p Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPasswordHash recomputes the key for candidate with the parameters
// and salt embedded in phc and compares in constant time. It returns nil on
// a match, ErrPasswordMismatch on a mismatch and ErrMalformedHash if phc
// cannot be parsed.
func VerifyPasswordHash(phc, candidate string) error {
	h, err := parsePHC(phc)
	if err != nil {
		return err
	}
	var key []byte
	switch h.variant {
	case "argon2id":
		key = argon2.IDKey([]byte(candidate), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, uint32(len(h.key)))
	case "argon2i":
		key = argon2.Key([]byte(candidate), h.salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, uint32(len(h.key)))
	}
	if subtle.ConstantTimeCompare(key, h.key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

type phcHash struct {
	variant string
	params  Params
	salt    []byte
	key     []byte
}

func parsePHC(s string) (phcHash, error) {
	var h phcHash
	// "", variant, version, params, salt, key
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return h, fmt.Errorf("%w: expected 5 sections", ErrMalformedHash)
	}
	h.variant = parts[1]
	if h.variant != "argon2id" && h.variant != "argon2i" {
		return h, fmt.Errorf("%w: unsupported variant %q", ErrMalformedHash, h.variant)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("%w: version: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return h, fmt.Errorf("%w: params: %v", ErrMalformedHash, err)
	}
	if h.params.Memory == 0 || h.params.Iterations == 0 || h.params.Parallelism == 0 {
		return h, fmt.Errorf("%w: zero cost parameter", ErrMalformedHash)
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	h.params.SaltLength = uint32(len(h.salt))
	h.params.KeyLength = uint32(len(h.key))
	return h, nil
}
