package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A reset token is never accepted as an access token.
const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password_reset"
)

const resetTokenTTL = time.Hour

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	Purpose string   `json:"purpose"`
}

// Issuer signs and verifies HS256 tokens for staff sessions.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{key: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed access token and its expiry.
func (i *Issuer) Issue(subject, email string, roles []string) (string, time.Time, error) {
	return i.sign(subject, email, roles, PurposeAccess, i.ttl)
}

// IssueReset returns a short-lived password reset token.
func (i *Issuer) IssueReset(subject, email string) (string, time.Time, error) {
	return i.sign(subject, email, nil, PurposePasswordReset, resetTokenTTL)
}

func (i *Issuer) sign(subject, email string, roles []string, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:   email,
		Roles:   roles,
		Purpose: purpose,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, issuer, expiry and purpose.
func (i *Issuer) Parse(tokenStr, purpose string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
