package session

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"
)

func testAccessTokens(t *testing.T, revoker Revoker) *AccessTokens {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewAccessTokensFromKey(key, revoker, Options{TTL: time.Minute})
}

func TestIssueAndVerify(t *testing.T) {
	tokens := testAccessTokens(t, NewMemoryRevoker())
	token, err := tokens.Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token issued")
	}
	userID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != 7 {
		t.Fatalf("verify returned user %d, want 7", userID)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	tokens := testAccessTokens(t, nil)
	other := testAccessTokens(t, nil)
	token, err := other.Issue(7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tokens.Verify(token); err == nil {
		t.Fatal("token signed by a different key was accepted")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tokens := testAccessTokens(t, nil)
	for _, raw := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, err := tokens.Verify(raw); err == nil {
			t.Fatalf("garbage token %q accepted", raw)
		}
	}
}

func TestRevokeSingleToken(t *testing.T) {
	tokens := testAccessTokens(t, NewMemoryRevoker())
	token, err := tokens.Issue(3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := tokens.Revoke(token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := tokens.Verify(token); err == nil {
		t.Fatal("revoked token still verifies")
	}
}

func TestRevokeUserCutoff(t *testing.T) {
	tokens := testAccessTokens(t, NewMemoryRevoker())
	before, err := tokens.Issue(3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := tokens.RevokeUser(3, time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, err := tokens.Verify(before); err == nil {
		t.Fatal("token issued before cutoff still verifies")
	}
	// Tokens for other users are unaffected.
	other, err := tokens.Issue(4)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tokens.Verify(other); err != nil {
		t.Fatalf("unrelated user token rejected: %v", err)
	}
}

func TestRevokeUserAllowsFreshTokens(t *testing.T) {
	tokens := testAccessTokens(t, NewMemoryRevoker())
	if err := tokens.RevokeUser(3, time.Now().UTC()); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	// IssuedAt is second-granular; a token issued right after the cutoff,
	// in the same wall-clock second, must still verify.
	fresh, err := tokens.Issue(3)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := tokens.Verify(fresh); err != nil {
		t.Fatalf("token issued after cutoff rejected: %v", err)
	}
}
