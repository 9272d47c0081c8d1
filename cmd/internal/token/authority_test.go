package token

import (
	"errors"
	"testing"
	"time"
)

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := NewAuthority(Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return a
}

func TestNewAuthorityRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewAuthority(Config{Secret: []byte("too-short")}); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)

	tok, err := a.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sessionID, err := a.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sessionID != "sess-1" {
		t.Fatalf("expected bound session sess-1, got %q", sessionID)
	}
}

func TestRotationSupersedesPreviousToken(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)

	first, err := a.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue first: %v", err)
	}
	second, err := a.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue second: %v", err)
	}

	if _, err := a.Verify(first); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("superseded token must fail, got %v", err)
	}
	if _, err := a.Verify(second); err != nil {
		t.Fatalf("current token must verify, got %v", err)
	}
}

func TestInvalidateRevokesCurrentToken(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)

	tok, err := a.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	a.Invalidate("sess-1")

	if _, err := a.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token must fail, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := a.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)
	other, err := NewAuthority(Config{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	tok, err := other.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := a.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign-signed token must fail, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)
	a.ttl = time.Minute
	a.now = func() time.Time { return time.Now().UTC().Add(-time.Hour) }

	tok, err := a.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := a.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must fail, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)

	tokA, err := a.Issue("sess-a")
	if err != nil {
		t.Fatalf("Issue sess-a: %v", err)
	}
	if _, err := a.Issue("sess-b"); err != nil {
		t.Fatalf("Issue sess-b: %v", err)
	}

	// Rotating one session leaves the other's current token intact.
	if _, err := a.Issue("sess-b"); err != nil {
		t.Fatalf("rotate sess-b: %v", err)
	}
	if got, err := a.Verify(tokA); err != nil || got != "sess-a" {
		t.Fatalf("sess-a token must stay current, got %q err=%v", got, err)
	}
}
