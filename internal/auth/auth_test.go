package auth

import (
	"errors"
	"testing"
	"time"
)

func Test_HashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret-password" {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword(hash, "s3cret-password") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong-password") {
		t.Error("wrong password accepted")
	}
}

func Test_IssueAndVerifyToken(t *testing.T) {
	t.Parallel()

	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.IssueToken("user-123")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	sub, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if sub != "user-123" {
		t.Errorf("subject = %q, want user-123", sub)
	}
}

func Test_VerifyToken_RejectsGarbage(t *testing.T) {
	t.Parallel()

	m, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := m.VerifyToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("VerifyToken(%q) error = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func Test_VerifyToken_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, err := NewManager("secret-one", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	verifier, err := NewManager("secret-two", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := issuer.IssueToken("user-123")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}

func Test_VerifyToken_RejectsExpired(t *testing.T) {
	t.Parallel()

	m, err := NewManager("test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	// A non-positive ttl falls back to the default, so craft expiry by hand.
	m.ttl = -time.Minute

	token, err := m.IssueToken("user-123")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("VerifyToken error = %v, want ErrInvalidToken", err)
	}
}
