// Package permit issues and checks the signed permits that authorize reads
// of confidential account state.
package permit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingPermit      = errors.New("permit not found in context")
	ErrWrongAccount       = errors.New("permit issued for another account")
)

const serviceScope = "service"

// Claims carried by a permit
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies permits for a single account owner
type Issuer struct {
	secret    []byte
	ownerHash []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewIssuer creates an issuer. ownerHash is the bcrypt hash of the owner's passphrase.
func NewIssuer(secret, ownerHash string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		ownerHash: []byte(ownerHash),
		ttl:       ttl,
		now:       time.Now,
	}
}

// HashPassphrase returns a bcrypt hash suitable for OWNER_PASSPHRASE_HASH
func HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passphrase: %w", err)
	}
	return string(hash), nil
}

// Issue verifies the owner's passphrase and returns a signed permit
func (i *Issuer) Issue(account, passphrase string) (string, error) {
	if len(i.ownerHash) == 0 {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(i.ownerHash, []byte(passphrase)); err != nil {
		return "", ErrInvalidCredentials
	}
	return i.sign(account, "")
}

// IssueService returns a permit for in-process jobs acting on the account
func (i *Issuer) IssueService(account string) (string, error) {
	return i.sign(account, serviceScope)
}

func (i *Issuer) sign(account, scope string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign permit: %w", err)
	}
	return signed, nil
}

// Verify parses a permit and checks signature and expiry
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid permit: %w", err)
	}
	return claims, nil
}

// Authorize returns a check that accepts only contexts carrying a permit for account.
func (i *Issuer) Authorize(account string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		claims, ok := FromContext(ctx)
		if !ok {
			return ErrMissingPermit
		}
		if claims.Subject != account {
			return ErrWrongAccount
		}
		if claims.ExpiresAt != nil && !i.now().Before(claims.ExpiresAt.Time) {
			return fmt.Errorf("permit expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
		}
		return nil
	}
}

// ServiceContext returns ctx carrying a freshly minted service permit
func (i *Issuer) ServiceContext(ctx context.Context, account string) (context.Context, error) {
	token, err := i.IssueService(account)
	if err != nil {
		return nil, err
	}
	claims, err := i.Verify(token)
	if err != nil {
		return nil, err
	}
	return WithClaims(ctx, claims), nil
}

type contextKey struct{}

// WithClaims attaches verified claims to ctx
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the claims attached by WithClaims
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok && c != nil
}
