// Package auth issues and validates the bearer tokens that identify hub callers.
// A token binds a secp256k1 public key to an expiry and is signed with a shared HS256 secret.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidPublicKey = errors.New("invalid public key")

// Claims are the claims carried by a hub token.
type Claims struct {
	// PK is the hex-encoded public key of the caller.
	PK string `json:"pk"`
	jwt.RegisteredClaims
}

// ValidatePublicKey checks that publicKey is a hex-encoded secp256k1 public key, compressed or uncompressed.
func ValidatePublicKey(publicKey string) error {
	b, err := hex.DecodeString(strings.TrimPrefix(publicKey, "0x"))
	if err != nil {
		return fmt.Errorf("%w: decoding hex: %v", ErrInvalidPublicKey, err)
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return nil
}

// GenerateToken issues a token for publicKey that expires after expiration.
func GenerateToken(publicKey string, expiration time.Duration, secret string, now time.Time) (string, time.Time, error) {
	if err := ValidatePublicKey(publicKey); err != nil {
		return "", time.Time{}, err
	}
	if secret == "" {
		return "", time.Time{}, errors.New("JWT secret is required")
	}
	expiresAt := now.Add(expiration).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		PK: publicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken validates token and returns its claims.
// Tokens that are expired, lack an expiry, or are not signed with HS256 and secret are rejected.
func ParseToken(token, secret string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if claims.PK == "" {
		return nil, errors.New("token has no public key")
	}
	return &claims, nil
}
