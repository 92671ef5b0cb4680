package token_test

import (
	"testing"
	"time"

	"github.com/ypk/contentguard/internal/token"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	s := token.NewSigner("test-secret", 10*time.Minute)

	grantID, signed, err := s.Issue("asset-1", "viewer-1", time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if grantID == "" || signed == "" {
		t.Fatal("Issue() returned empty grant or token")
	}

	claims, err := s.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.AssetID != "asset-1" || claims.ViewerID != "viewer-1" {
		t.Errorf("claims = %s/%s, want asset-1/viewer-1", claims.AssetID, claims.ViewerID)
	}
	if claims.ID != grantID {
		t.Errorf("jwt id = %q, want grant id %q", claims.ID, grantID)
	}
}

func TestIssueMintsDistinctGrants(t *testing.T) {
	s := token.NewSigner("test-secret", 10*time.Minute)
	a, _, err := s.Issue("asset-1", "viewer-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := s.Issue("asset-1", "viewer-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two issues produced the same grant ID")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	s := token.NewSigner("secret-a", 10*time.Minute)
	_, signed, err := s.Issue("asset-1", "viewer-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	other := token.NewSigner("secret-b", 10*time.Minute)
	if _, err := other.Verify(signed); err == nil {
		t.Error("Verify() accepted a token signed with a different secret")
	}
}

func TestVerifyRejectsExpiredGrant(t *testing.T) {
	s := token.NewSigner("test-secret", time.Minute)
	_, signed, err := s.Issue("asset-1", "viewer-1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Verify(signed); err == nil {
		t.Error("Verify() accepted an expired grant")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := token.NewSigner("test-secret", 10*time.Minute)
	_, signed, err := s.Issue("asset-1", "viewer-1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := s.Verify(tampered); err == nil {
		t.Error("Verify() accepted a tampered token")
	}
}
