package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenQueryParam = "access_token"
	bearerPrefix          = "Bearer "
)

var (
	ErrMissingToken   = errors.New("participant token required")
	ErrInvalidToken   = errors.New("participant token invalid")
	ErrExpiredToken   = errors.New("participant token expired")
	ErrMissingSubject = errors.New("participant token subject required")
)

// ParticipantClaims is the JWT payload of a participant token.
type ParticipantClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// ParticipantID returns the host or diner id the token was issued to.
func (c ParticipantClaims) ParticipantID() string {
	return c.Subject
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (i *TokenIssuer) ValidateToken(tokenString string) (ParticipantClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return ParticipantClaims{}, ErrMissingToken
	}

	claims := &ParticipantClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ParticipantClaims{}, ErrExpiredToken
		}
		return ParticipantClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ParticipantClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.SessionID) == "" {
		return ParticipantClaims{}, ErrMissingSubject
	}
	if claims.Role != RoleHost && claims.Role != RoleDiner {
		return ParticipantClaims{}, ErrInvalidToken
	}
	return *claims, nil
}

// ValidateRequest reads the token from the Authorization header, falling back
// to the access_token query parameter used by EventSource clients.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (ParticipantClaims, error) {
	if r == nil {
		return ParticipantClaims{}, ErrMissingToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, bearerPrefix) {
		return i.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
	}
	if token := r.URL.Query().Get(accessTokenQueryParam); token != "" {
		return i.ValidateToken(token)
	}
	return ParticipantClaims{}, ErrMissingToken
}
