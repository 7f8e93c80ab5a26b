// Package credential generates one-time temporary credentials and hashes
// credentials for storage.
package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// Length of a generated temporary credential.
const Length = 16

// Alphabet is the character set temporary credentials are drawn from (72 symbols).
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()"

// MaxLength is the longest credential bcrypt can hash without truncation.
const MaxLength = 72

const maxIssueAttempts = 8

var (
	// ErrMismatch is returned by Verify when the credential does not match the hash.
	ErrMismatch = errors.New("credential mismatch")
	// ErrTooLong is returned when a credential exceeds MaxLength bytes.
	ErrTooLong = errors.New("credential too long")
)

// Issuer generates and hashes credentials. Safe for concurrent use when its
// random source is.
type Issuer struct {
	cost   int
	random io.Reader
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithRandom replaces crypto/rand.Reader as the entropy source (for testing).
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) { i.random = r }
}

// NewIssuer returns an Issuer hashing with the given bcrypt cost.
func NewIssuer(cost int, opts ...Option) *Issuer {
	i := &Issuer{cost: cost, random: rand.Reader}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generate draws Length characters uniformly from Alphabet.
func (i *Issuer) Generate() (string, error) {
	// 216 is the largest multiple of len(Alphabet) that fits in a byte;
	// bytes at or above it are rejected to keep the draw uniform.
	const limit = 256 - 256%len(Alphabet)

	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := io.ReadFull(i.random, buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Hash returns the bcrypt hash of plain.
func (i *Issuer) Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", ErrTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), i.cost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(hash), nil
}

// Verify checks plain against hash.
func (i *Issuer) Verify(hash, plain string) error {
	if hash == "" {
		return ErrMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrMismatch
	}
	return nil
}

// Issue generates a temporary credential that differs from the one behind
// currentHash and returns it together with its hash. The plaintext must be
// handed to the caller once and then discarded.
func (i *Issuer) Issue(currentHash string) (plain, hash string, err error) {
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		plain, err = i.Generate()
		if err != nil {
			return "", "", err
		}
		if currentHash != "" && i.Verify(currentHash, plain) == nil {
			continue
		}
		hash, err = i.Hash(plain)
		if err != nil {
			return "", "", err
		}
		return plain, hash, nil
	}
	return "", "", fmt.Errorf("issue credential: no fresh credential after %d attempts", maxIssueAttempts)
}
