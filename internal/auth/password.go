package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"

	"bookie.org/internal/obs"
)

// LegacySalt is the application-wide salt every stored hash was produced with.
const LegacySalt = "definitelyasecurepasswordhash"

const argon2iVersion = argon2.Version

// Upper bounds on hash parameters, both configured and decoded from stored hashes.
const (
	maxMemoryKiB  = 1 << 21 // 2 GiB
	maxIterations = 64
	maxKeyLength  = 128
	maxSaltLength = 128
)

// HashParams configures Argon2i. When Salt is empty a random salt of SaltLength bytes is drawn per hash.
type HashParams struct {
	Salt        []byte
	SaltLength  int
	Iterations  uint32
	Memory      uint32 // KiB
	Parallelism uint8
	KeyLength   uint32
}

// LegacyHashParams returns the parameters matching existing stored hashes:
// Argon2i, t=5, m=64 MiB, p=2, 32-byte digest, fixed salt.
func LegacyHashParams() HashParams {
	return HashParams{
		Salt:        []byte(LegacySalt),
		Iterations:  5,
		Memory:      64 * 1024,
		Parallelism: 2,
		KeyLength:   32,
	}
}

func (p HashParams) validate() error {
	switch {
	case len(p.Salt) == 0 && p.SaltLength < 8:
		return errors.New("salt must be at least 8 bytes")
	case len(p.Salt) > 0 && len(p.Salt) < 8:
		return errors.New("salt must be at least 8 bytes")
	case len(p.Salt) > maxSaltLength || p.SaltLength > maxSaltLength:
		return fmt.Errorf("salt must be at most %d bytes", maxSaltLength)
	case p.Iterations < 1 || p.Iterations > maxIterations:
		return fmt.Errorf("iterations must be between 1 and %d", maxIterations)
	case p.Parallelism < 1:
		return errors.New("parallelism must be positive")
	case p.Memory < 8*uint32(p.Parallelism):
		return errors.New("memory must be at least 8 KiB per lane")
	case p.Memory > maxMemoryKiB:
		return fmt.Errorf("memory must be at most %d KiB", maxMemoryKiB)
	case p.KeyLength < 4 || p.KeyLength > maxKeyLength:
		return fmt.Errorf("key length must be between 4 and %d bytes", maxKeyLength)
	}
	return nil
}

// PasswordHasher derives and verifies Argon2i password hashes.
// Each derivation holds Memory KiB, so the number of concurrent derivations is bounded.
type PasswordHasher struct {
	params HashParams
	slots  *semaphore.Weighted
}

// NewPasswordHasher builds a hasher allowing at most concurrency parallel derivations.
func NewPasswordHasher(params HashParams, concurrency int64) (*PasswordHasher, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("auth: hash params: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	params.Salt = append([]byte(nil), params.Salt...)
	return &PasswordHasher{params: params, slots: semaphore.NewWeighted(concurrency)}, nil
}

// Hash returns the encoded hash "$argon2i$v=19$m=..,t=..,p=..$<salt>$<digest>".
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	salt := h.params.Salt
	if len(salt) == 0 {
		salt = make([]byte, h.params.SaltLength)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	start := time.Now()
	digest := argon2.Key([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	obs.ObservePasswordHash("hash", time.Since(start))

	return fmt.Sprintf(
		"$argon2i$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2iVersion,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches encoded. A mismatch is (false, nil);
// an encoding that cannot be parsed is (false, ErrMalformedHash).
func (h *PasswordHasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	decoded, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	start := time.Now()
	candidate := argon2.Key([]byte(password), decoded.salt, decoded.iterations, decoded.memory, decoded.parallelism, uint32(len(decoded.digest)))
	obs.ObservePasswordHash("verify", time.Since(start))

	return subtle.ConstantTimeCompare(candidate, decoded.digest) == 1, nil
}

type decodedHash struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

func decodeHash(encoded string) (decodedHash, error) {
	var d decodedHash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return d, fmt.Errorf("%w: expected 6 segments", ErrMalformedHash)
	}
	if parts[1] != "argon2i" {
		return d, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2iVersion) {
		return d, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	for _, kv := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return d, fmt.Errorf("%w: bad parameter %q", ErrMalformedHash, kv)
		}
		switch key {
		case "m":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return d, fmt.Errorf("%w: memory: %v", ErrMalformedHash, err)
			}
			d.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return d, fmt.Errorf("%w: iterations: %v", ErrMalformedHash, err)
			}
			d.iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return d, fmt.Errorf("%w: parallelism: %v", ErrMalformedHash, err)
			}
			d.parallelism = uint8(n)
		default:
			return d, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, key)
		}
	}
	if d.memory == 0 || d.iterations == 0 || d.parallelism == 0 {
		return d, fmt.Errorf("%w: missing cost parameters", ErrMalformedHash)
	}
	if d.memory > maxMemoryKiB || d.iterations > maxIterations || d.memory < 8*uint32(d.parallelism) {
		return d, fmt.Errorf("%w: cost parameters out of range", ErrMalformedHash)
	}

	var err error
	if len(parts[4]) > base64.RawStdEncoding.EncodedLen(maxSaltLength) || len(parts[5]) > base64.RawStdEncoding.EncodedLen(maxKeyLength) {
		return d, fmt.Errorf("%w: salt or digest too long", ErrMalformedHash)
	}
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) == 0 {
		return d, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if d.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.digest) < 4 {
		return d, fmt.Errorf("%w: digest", ErrMalformedHash)
	}
	return d, nil
}
