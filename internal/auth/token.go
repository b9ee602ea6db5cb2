// Package auth issues and verifies the tokens that identify the caller
// of every protected endpoint.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/cinema-scheduling/internal/clock"
	"github.com/iliyamo/cinema-scheduling/internal/model"
)

// ErrInvalidToken is returned for any access token that fails parsing,
// signature or expiry checks.
var ErrInvalidToken = errors.New("invalid access token")

// Claims are the JWT claims of an access token.  The subject is the user
// id in decimal.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed access token or a raw refresh token with its expiry.
type Token struct {
	Value   string
	Expires time.Time
}

// Issuer signs HS256 access tokens and mints refresh tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, clk clock.Clock) *Issuer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, clock: clk}
}

// Access builds and signs a token for userID with role.
func (i *Issuer) Access(userID uint64, role string) (Token, error) {
	now := i.clock.Now().UTC()
	exp := now.Add(i.accessTTL)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign access token: %w", err)
	}
	return Token{Value: signed, Expires: exp}, nil
}

// Parse verifies raw and returns the caller it identifies.
func (i *Issuer) Parse(raw string) (model.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || uid == 0 {
		return model.Actor{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	switch claims.Role {
	case model.RoleAdmin, model.RoleCustomer:
	default:
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return model.Actor{UserID: uid, Role: claims.Role}, nil
}

// Refresh returns a random 96 hex character token.  Only its hash is
// ever stored.
func (i *Issuer) Refresh() (Token, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, err
	}
	return Token{Value: hex.EncodeToString(buf), Expires: i.clock.Now().UTC().Add(i.refreshTTL)}, nil
}

// HashRefresh returns the SHA-256 hex digest of a raw refresh token.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
