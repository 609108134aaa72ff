package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Lower bounds for derivation parameters. Configs below these are rejected at startup.
const (
	MinIterations = 10000
	MinKeyLength  = 32
	MinSaltLength = 16
)

// ErrCryptoConfiguration means the derivation parameters are unusable. It is a startup
// failure, never a per-login outcome.
var ErrCryptoConfiguration = errors.New("crypto configuration error")

// DeriverConfig selects the PBKDF2 PRF and its parameters.
type DeriverConfig struct {
	Hash       string // "sha256" or "sha512"
	Iterations int
	KeyLength  int
	SaltLength int
}

// DefaultDeriverConfig is PBKDF2-HMAC-SHA256, 20000 iterations, 256-bit key, 16-byte salt.
func DefaultDeriverConfig() DeriverConfig {
	return DeriverConfig{Hash: "sha256", Iterations: 20000, KeyLength: 32, SaltLength: 16}
}

// Deriver derives and verifies password keys with salted PBKDF2. Callers must not log or
// persist plaintext passwords. A Deriver is immutable and safe for concurrent use.
type Deriver struct {
	prf  func() hash.Hash
	cfg  DeriverConfig
	rand io.Reader
}

// NewDeriver validates cfg and returns a Deriver. Any invalid parameter yields an error
// wrapping ErrCryptoConfiguration.
func NewDeriver(cfg DeriverConfig) (*Deriver, error) {
	var prf func() hash.Hash
	switch cfg.Hash {
	case "sha256":
		prf = sha256.New
	case "sha512":
		prf = sha512.New
	default:
		return nil, fmt.Errorf("%w: unsupported PRF %q", ErrCryptoConfiguration, cfg.Hash)
	}
	if cfg.Iterations < MinIterations {
		return nil, fmt.Errorf("%w: iterations %d below %d", ErrCryptoConfiguration, cfg.Iterations, MinIterations)
	}
	if cfg.KeyLength < MinKeyLength {
		return nil, fmt.Errorf("%w: key length %d below %d bytes", ErrCryptoConfiguration, cfg.KeyLength, MinKeyLength)
	}
	if cfg.SaltLength < MinSaltLength {
		return nil, fmt.Errorf("%w: salt length %d below %d bytes", ErrCryptoConfiguration, cfg.SaltLength, MinSaltLength)
	}
	return &Deriver{prf: prf, cfg: cfg, rand: rand.Reader}, nil
}

// Config returns the parameters the Deriver was built with.
func (d *Deriver) Config() DeriverConfig {
	return d.cfg
}

// Derive returns the PBKDF2 key for password and salt. Same inputs always give the same key.
func (d *Deriver) Derive(password string, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrCryptoConfiguration)
	}
	return pbkdf2.Key([]byte(password), salt, d.cfg.Iterations, d.cfg.KeyLength, d.prf), nil
}

// GenerateSalt returns SaltLength bytes from crypto/rand.
func (d *Deriver) GenerateSalt() ([]byte, error) {
	salt := make([]byte, d.cfg.SaltLength)
	if _, err := io.ReadFull(d.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: read salt: %v", ErrCryptoConfiguration, err)
	}
	return salt, nil
}

// Verify re-derives attempt with salt and compares it to storedKey in constant time.
// A derivation failure is returned as an error, never reported as a mismatch.
func (d *Deriver) Verify(attempt string, storedKey, salt []byte) (bool, error) {
	key, err := d.Derive(attempt, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(key, storedKey) == 1, nil
}
