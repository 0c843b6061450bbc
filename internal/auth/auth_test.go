package auth_test

import (
	"testing"
	"time"

	"ropequiz/internal/auth"
	"ropequiz/internal/domain"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	v := auth.NewHMACVerifier("test-secret")
	teamID := "team-a"
	token, err := v.Sign(auth.Identity{SessionID: "s1", UserID: "u1", Role: domain.RoleStudent, TeamID: &teamID}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.SessionID != "s1" || got.UserID != "u1" || got.Role != domain.RoleStudent {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.TeamID == nil || *got.TeamID != "team-a" {
		t.Fatalf("expected team id to round-trip, got %+v", got.TeamID)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	v := auth.NewHMACVerifier("test-secret")
	token, _ := v.Sign(auth.Identity{SessionID: "s1", UserID: "u1", Role: domain.RoleTeacher}, time.Now().Add(time.Hour))
	tampered := token[:len(token)-1] + "x"
	if _, err := v.Verify(tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := auth.NewHMACVerifier("test-secret")
	token, _ := v.Sign(auth.Identity{SessionID: "s1", UserID: "u1", Role: domain.RoleTeacher}, time.Now().Add(-time.Minute))
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyRejectsDifferentSecret(t *testing.T) {
	signer := auth.NewHMACVerifier("secret-a")
	token, _ := signer.Sign(auth.Identity{SessionID: "s1", UserID: "u1", Role: domain.RoleTeacher}, time.Now().Add(time.Hour))

	verifier := auth.NewHMACVerifier("secret-b")
	if _, err := verifier.Verify(token); err == nil {
		t.Fatal("expected verification with a different secret to fail")
	}
}
