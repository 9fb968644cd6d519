package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleHost  = "host"
	RoleDiner = "diner"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errMissingAudience      = errors.New("audience must be provided")
	errInvalidTokenTTL      = errors.New("token ttl must be positive")
	errMissingParticipantID = errors.New("participant id must be provided")
	errMissingSessionID     = errors.New("session id must be provided")
	errUnknownRole          = errors.New("role must be host or diner")
)

// TokenIssuerConfig configures the participant token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// Participant identifies who a token is issued to.
type Participant struct {
	SessionID     string
	ParticipantID string
	Role          string
}

// TokenIssuer issues and validates the tokens handed to hosts and diners.
// The same signing secret serves both directions.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer validates the configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errMissingAudience
	}
	if cfg.TokenTTL <= 0 {
		return nil, errInvalidTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// IssueParticipantToken produces a signed JWT and its lifetime in seconds.
func (i *TokenIssuer) IssueParticipantToken(_ context.Context, participant Participant) (string, int64, error) {
	if participant.ParticipantID == "" {
		return "", 0, errMissingParticipantID
	}
	if participant.SessionID == "" {
		return "", 0, errMissingSessionID
	}
	if participant.Role != RoleHost && participant.Role != RoleDiner {
		return "", 0, errUnknownRole
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()

	claims := ParticipantClaims{
		SessionID: participant.SessionID,
		Role:      participant.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participant.ParticipantID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}
