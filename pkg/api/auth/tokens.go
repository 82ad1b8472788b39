package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"convodb/pkg/timeutil"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("jwt secret not configured")
)

// Claims carries the user id in the registered subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 user tokens.
type Tokens struct {
	secret []byte
	issuer string
	leeway time.Duration
	clock  timeutil.Clock
}

func NewTokens(secret, issuer string, leeway time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, leeway: leeway, clock: timeutil.Now}
}

// WithClock pins the clock used for issuing and validating.
func (t *Tokens) WithClock(c timeutil.Clock) *Tokens {
	t.clock = c
	return t
}

func (t *Tokens) Enabled() bool { return t != nil && len(t.secret) > 0 }

// Issue returns a signed token for userID valid for ttl.
func (t *Tokens) Issue(userID string, ttl time.Duration) (string, error) {
	if !t.Enabled() {
		return "", ErrNoSecret
	}
	if userID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	now := t.clock()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates raw and returns its user id.
func (t *Tokens) Parse(raw string) (string, error) {
	if !t.Enabled() {
		return "", ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.clock),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || len(claims.Subject) > maxUserIDLen {
		return "", fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
