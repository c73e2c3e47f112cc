package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// RoleClient is the role carried by tokens for front ends driving the API
const RoleClient = "client"

const defaultTokenTTL = 30 * 24 * time.Hour

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens with a fixed secret
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewIssuer creates an issuer. A zero ttl uses 30 days.
func NewIssuer(secret string, ttl time.Duration, clk clock.Clock) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// GenerateClientToken generates a client token for subject
func (i *Issuer) GenerateClientToken(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}

	now := i.clock.Now()
	claims := &JWTClaims{
		Role: RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
