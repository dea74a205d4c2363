package auth

import (
	"testing"
	"time"
)

func TestNewJWTService_ValidConfig(t *testing.T) {
	config := JWTConfig{
		Secret:     "test-secret-key-must-be-32-chars!",
		Issuer:     "test-issuer",
		DefaultTTL: time.Hour,
	}

	service, err := NewJWTService(config)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if service == nil {
		t.Fatal("expected service to be non-nil")
	}
}

func TestNewJWTService_EmptySecret(t *testing.T) {
	config := JWTConfig{
		Secret: "",
		Issuer: "test-issuer",
	}

	_, err := NewJWTService(config)
	if err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	config := JWTConfig{
		Secret: "short",
		Issuer: "test-issuer",
	}

	_, err := NewJWTService(config)
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestNewJWTService_DefaultsApplied(t *testing.T) {
	config := JWTConfig{
		Secret: "test-secret-key-must-be-32-chars!",
	}

	service, err := NewJWTService(config)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if service.config.Issuer != "dispatchd" {
		t.Errorf("expected default issuer %q, got %q", "dispatchd", service.config.Issuer)
	}
	if service.config.DefaultTTL != time.Hour {
		t.Errorf("expected default TTL 1h, got %v", service.config.DefaultTTL)
	}
}

func TestIssueToken_ValidRole(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	token, expiresAt, err := service.IssueToken("alice", RoleOperator, time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if token == "" {
		t.Error("expected non-empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expected expiry in the future")
	}
}

func TestIssueToken_InvalidRole(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	_, _, err := service.IssueToken("alice", "superuser", time.Minute)
	if err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{
		Secret:     "test-secret-key-must-be-32-chars!",
		DefaultTTL: 5 * time.Minute,
	})

	_, expiresAt, err := service.IssueToken("alice", RoleAdmin, 0)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	wantMin := time.Now().Add(4 * time.Minute)
	wantMax := time.Now().Add(6 * time.Minute)
	if expiresAt.Before(wantMin) || expiresAt.After(wantMax) {
		t.Errorf("expected expiry near default TTL, got %v", expiresAt)
	}
}

func TestValidateToken_ValidToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	token, _, err := service.IssueToken("alice", RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("expected subject %q, got %q", "alice", claims.Subject)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("expected role %q, got %q", RoleAdmin, claims.Role)
	}
	if !claims.IsAdmin() {
		t.Error("expected IsAdmin to be true")
	}
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	token, _, err := service.IssueToken("alice", RoleOperator, time.Nanosecond)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	time.Sleep(time.Millisecond)

	_, err = service.ValidateToken(token)
	if err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service1, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})
	service2, _ := NewJWTService(JWTConfig{Secret: "a-completely-different-32-char-key!"})

	token, _, err := service1.IssueToken("alice", RoleOperator, time.Minute)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	_, err = service2.ValidateToken(token)
	if err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: "test-secret-key-must-be-32-chars!"})

	_, err := service.ValidateToken("not-a-jwt-at-all")
	if err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestClaims_HasRole(t *testing.T) {
	c := &Claims{Role: RoleOperator}

	if !c.HasRole(RoleAdmin, RoleOperator) {
		t.Error("expected HasRole to match operator")
	}
	if c.HasRole(RoleAdmin) {
		t.Error("expected HasRole not to match admin-only list")
	}
}
