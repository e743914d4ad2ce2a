// Package auth issues and validates operator session tokens.
package auth

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the logged-in user behind a session token.
type Claims struct {
	Username string `json:"username"`
	Staff    bool   `json:"staff,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject, which is the user's ID.
func (c *Claims) UserID() string {
	return c.Subject
}

// JWTService handles JWT generation and validation.
type JWTService struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	issuer     string
	now        func() time.Time
}

// NewJWTService creates a new JWT service with the given key pair.
func NewJWTService(keyPair *KeyPair, issuer string) *JWTService {
	return &JWTService{
		privateKey: keyPair.PrivateKey,
		publicKey:  keyPair.PublicKey,
		issuer:     issuer,
		now:        time.Now,
	}
}

// GenerateToken creates a signed ES256 token for a user session.
func (s *JWTService) GenerateToken(userID, username string, staff bool, duration time.Duration) (string, error) {
	now := s.now()

	claims := &Claims{
		Username: username,
		Staff:    staff,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token's signature, issuer and lifetime.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
