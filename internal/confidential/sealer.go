package confidential

import (
	"context"
	"fmt"

	"github.com/Dan9191/plutus/internal/utils"
)

// Sealer is the confidentiality primitive behind a Box. Seal turns plaintext
// into an opaque blob; Open may refuse access based on the caller context.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ctx context.Context, sealed []byte) ([]byte, error)
}

// AESSealer encrypts with AES-CBC and authenticates the ciphertext with HMAC-SHA256
type AESSealer struct {
	key    []byte
	macKey []byte
}

// NewAESSealer validates the key material and returns a sealer
func NewAESSealer(key, macKey []byte) (*AESSealer, error) {
	if err := utils.ValidateKey(key); err != nil {
		return nil, err
	}
	if len(macKey) == 0 {
		return nil, fmt.Errorf("mac key is required")
	}
	return &AESSealer{key: key, macKey: macKey}, nil
}

// Seal returns IV || ciphertext || tag
func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	ciphertext, err := utils.Encrypt(plaintext, s.key)
	if err != nil {
		return nil, err
	}
	return append(ciphertext, utils.GenerateHMAC(ciphertext, s.macKey)...), nil
}

// Open verifies the tag before decrypting
func (s *AESSealer) Open(_ context.Context, sealed []byte) ([]byte, error) {
	if len(sealed) < utils.MACSize {
		return nil, fmt.Errorf("sealed value too short: %d bytes", len(sealed))
	}
	ciphertext, tag := sealed[:len(sealed)-utils.MACSize], sealed[len(sealed)-utils.MACSize:]
	if !utils.VerifyHMAC(ciphertext, tag, s.macKey) {
		return nil, fmt.Errorf("sealed value failed integrity check")
	}
	return utils.Decrypt(ciphertext, s.key)
}

// AuthorizeFunc decides whether the caller in ctx may read confidential values.
type AuthorizeFunc func(ctx context.Context) error

type guardedSealer struct {
	inner     Sealer
	authorize AuthorizeFunc
}

// Guard wraps a sealer so that Open is refused unless authorize accepts the context.
// Seal is never restricted.
func Guard(inner Sealer, authorize AuthorizeFunc) Sealer {
	return &guardedSealer{inner: inner, authorize: authorize}
}

func (g *guardedSealer) Seal(plaintext []byte) ([]byte, error) {
	return g.inner.Seal(plaintext)
}

func (g *guardedSealer) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	if err := g.authorize(ctx); err != nil {
		return nil, fmt.Errorf("access denied: %w", err)
	}
	return g.inner.Open(ctx, sealed)
}
