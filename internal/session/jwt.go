package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a session token says about its holder.
type Identity struct {
	Subject   string
	Username  string
	ExpiresAt time.Time
}

// usernameClaims are checked in order for a display name.
var usernameClaims = []string{"cognito:username", "username", "preferred_username"}

// Identify reads the claims of token without verifying its signature. It is
// only used for display; the service does the verifying.
func Identify(token string) (Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("session: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("session: unexpected claims type")
	}
	return identityFrom(claims), nil
}

// Mint issues an HS256 token for username, valid for ttl.
func Mint(secret []byte, username string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("session: empty signing secret")
	}
	if username == "" {
		return "", errors.New("session: empty username")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      username,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks an HS256 token against secret and returns its identity.
func Verify(secret []byte, token string) (Identity, error) {
	parsed, err := jwt.Parse(strings.TrimSpace(token), func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("session: verify token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("session: unexpected claims type")
	}
	id := identityFrom(claims)
	if id.Subject == "" {
		return Identity{}, errors.New("session: token has no subject")
	}
	return id, nil
}

func identityFrom(claims jwt.MapClaims) Identity {
	var id Identity
	id.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	for _, name := range usernameClaims {
		if v, ok := claims[name].(string); ok && v != "" {
			id.Username = v
			break
		}
	}
	if id.Username == "" {
		id.Username = id.Subject
	}
	return id
}
