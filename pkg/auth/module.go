package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cfoust/avalon/pkg/game"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ISSUER = "avalon"
	// Shorter secrets are refused.
	MIN_SECRET_LENGTH = 16
)

// ErrUnauthorized is returned for any token that does not prove who the
// player is.
var ErrUnauthorized = errors.New("sign in with a valid token first")

// Authority issues and checks the tokens that bind a connection to a player.
// Chat bridges hold the same secret and mint a token for each account they
// relay; the subject of the token is the player ID.
type Authority struct {
	secret []byte
	now    func() time.Time
}

func NewAuthority(secret string) (*Authority, error) {
	if len(secret) < MIN_SECRET_LENGTH {
		return nil, fmt.Errorf("secret must be at least %d characters", MIN_SECRET_LENGTH)
	}

	return &Authority{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// SetClock replaces the clock used for issuing and expiry checks.
func (a *Authority) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Authority) Issue(player game.PlayerID, ttl time.Duration) (string, error) {
	if player == "" {
		return "", fmt.Errorf("player is required")
	}

	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    ISSUER,
		Subject:   string(player),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the player a token was issued to.
func (a *Authority) Verify(token string) (game.PlayerID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ISSUER),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnauthorized, describe(err))
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token names no player", ErrUnauthorized)
	}

	return game.PlayerID(claims.Subject), nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token has expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	}
	return "token was rejected"
}
