package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2-HMAC-SHA256 work factor.
	DefaultIterations = 100_000
	// SaltBytes is the amount of entropy drawn for every salt.
	SaltBytes = 16
	// KeyBytes is the derived key length.
	KeyBytes = sha256.Size
)

var (
	// ErrWeakIterations is returned when a PBKDF2 hasher is configured below DefaultIterations.
	ErrWeakIterations = errors.New("pbkdf2 iterations below minimum")
	// ErrUnknownScheme is returned by New for an unsupported scheme name.
	ErrUnknownScheme = errors.New("unknown password hashing scheme")
)

// Hasher hashes plaintext passwords and verifies them against stored encodings.
type Hasher interface {
	Hash(plaintext string) (string, error)
	// Verify never returns an error: malformed encodings simply do not match.
	Verify(plaintext, encoded string) bool
}

// New returns the hasher registered under scheme ("pbkdf2" or "bcrypt").
func New(scheme string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "pbkdf2":
		return NewPBKDF2(DefaultIterations)
	case "bcrypt":
		return NewBcrypt(bcrypt.DefaultCost), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// PBKDF2 encodes hashes as "{salt}:{hash}" where salt is 32 hex characters
// (used verbatim as the KDF salt) and hash is the hex derived key.
type PBKDF2 struct {
	iterations int
}

func NewPBKDF2(iterations int) (*PBKDF2, error) {
	if iterations < DefaultIterations {
		return nil, fmt.Errorf("%w: %d", ErrWeakIterations, iterations)
	}
	return &PBKDF2{iterations: iterations}, nil
}

func (p *PBKDF2) Hash(plaintext string) (string, error) {
	raw := make([]byte, SaltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	key := p.derive(plaintext, salt)
	return salt + ":" + hex.EncodeToString(key), nil
}

func (p *PBKDF2) Verify(plaintext, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext)) == nil
	}

	salt, hashHex, ok := strings.Cut(encoded, ":")
	if !ok || salt == "" || strings.Contains(hashHex, ":") {
		return false
	}
	expected, err := hex.DecodeString(hashHex)
	if err != nil || len(expected) != KeyBytes {
		return false
	}

	key := p.derive(plaintext, salt)
	return subtle.ConstantTimeCompare(key, expected) == 1
}

func (p *PBKDF2) derive(plaintext, salt string) []byte {
	return pbkdf2.Key([]byte(plaintext), []byte(salt), p.iterations, KeyBytes, sha256.New)
}

// Bcrypt wraps golang.org/x/crypto/bcrypt. Verify also accepts PBKDF2
// encodings so switching schemes never locks existing users out.
type Bcrypt struct {
	cost     int
	fallback *PBKDF2
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{
		cost:     cost,
		fallback: &PBKDF2{iterations: DefaultIterations},
	}
}

func (b *Bcrypt) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(plaintext, encoded string) bool {
	if !isBcrypt(encoded) {
		return b.fallback.Verify(plaintext, encoded)
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plaintext)) == nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

var (
	_ Hasher = (*PBKDF2)(nil)
	_ Hasher = (*Bcrypt)(nil)
)
