package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func issueTestToken(t *testing.T, issuer *TokenIssuer, role string) string {
	t.Helper()
	token, _, err := issuer.IssueParticipantToken(context.Background(), Participant{
		SessionID:     "session-1",
		ParticipantID: "participant-1",
		Role:          role,
	})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func TestValidateTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	token := issueTestToken(t, issuer, RoleHost)

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.ParticipantID() != "participant-1" {
		t.Fatalf("unexpected participant id: %s", claims.ParticipantID())
	}
	if claims.SessionID != "session-1" || claims.Role != RoleHost {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	issuedAt := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	now := issuedAt
	issuer := newTestIssuer(t, func() time.Time { return now })
	token := issueTestToken(t, issuer, RoleDiner)

	now = issuedAt.Add(2 * time.Hour)
	if _, err := issuer.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ParticipantClaims{
		SessionID: "session-1",
		Role:      RoleHost,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "participant-1",
			Issuer:    testIssuer,
			Audience:  []string{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := issuer.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := issuer.ValidateToken("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ParticipantClaims{
		SessionID: "session-1",
		Role:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "participant-1",
			Issuer:    testIssuer,
			Audience:  []string{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := issuer.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateRequestReadsHeaderAndQuery(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	token := issueTestToken(t, issuer, RoleDiner)

	headerRequest := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1", http.NoBody)
	headerRequest.Header.Set("Authorization", "Bearer "+token)
	if _, err := issuer.ValidateRequest(headerRequest); err != nil {
		t.Fatalf("header validation failed: %v", err)
	}

	queryRequest := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1/stream?access_token="+token, http.NoBody)
	claims, err := issuer.ValidateRequest(queryRequest)
	if err != nil {
		t.Fatalf("query validation failed: %v", err)
	}
	if claims.Role != RoleDiner {
		t.Fatalf("unexpected role: %s", claims.Role)
	}

	bare := httptest.NewRequest(http.MethodGet, "/api/sessions/session-1", http.NoBody)
	if _, err := issuer.ValidateRequest(bare); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}
