package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Role:   "STUDENT",
		Email:  "s@example.com",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.UserID != "user-1" || claims.Role != "STUDENT" || claims.Email != "s@example.com" {
		t.Fatalf("unexpected claims")
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
	if claims.Remaining(time.Now()) <= 0 {
		t.Fatalf("expected positive remaining lifetime")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other", token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", token); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, err := ParseToken("secret", signed); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}

func TestMemoryRevoker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	rev := NewMemoryRevoker()
	rev.now = func() time.Time { return now }

	if err := rev.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke error: %v", err)
	}
	revoked, err := rev.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v %v", revoked, err)
	}
	if revoked, _ := rev.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("expected jti-2 not revoked")
	}

	now = now.Add(2 * time.Minute)
	if revoked, _ := rev.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("expected revocation to lapse with the token")
	}
}
