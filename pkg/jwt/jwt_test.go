package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndValidateRoundTrip(t *testing.T) {
	token, err := GenerateToken("user-1", "indie", AccessToken, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token, "secret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.PlanKey != "indie" || claims.TokenType != AccessToken {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", "", AccessToken, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(token, "other"); err == nil {
		t.Fatal("token signed with a different secret validated")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("user-1", "", AccessToken, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(token, "secret"); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestIsTokenValidChecksType(t *testing.T) {
	access, err := GenerateToken("user-1", "", AccessToken, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	refresh, err := GenerateToken("user-1", "", RefreshToken, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if !IsTokenValid(access, "secret", AccessToken) {
		t.Error("access token not accepted as access")
	}
	if IsTokenValid(refresh, "secret", AccessToken) {
		t.Error("refresh token accepted as access")
	}
	if IsTokenValid(access, "wrong", AccessToken) {
		t.Error("wrong secret accepted")
	}
}
