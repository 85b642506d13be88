package crypto

import (
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	if len(token) != 43 {
		t.Fatalf("expected 43 base64url characters, got %d", len(token))
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestKeyedDigest(t *testing.T) {
	a, err := KeyedDigest([]byte("pepper"), "value")
	if err != nil {
		t.Fatalf("digest error: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}

	again, _ := KeyedDigest([]byte("pepper"), "value")
	if a != again {
		t.Fatal("expected deterministic digest")
	}

	other, _ := KeyedDigest([]byte("other-pepper"), "value")
	if a == other {
		t.Fatal("expected key to change the digest")
	}

	long, err := KeyedDigest([]byte(strings.Repeat("k", 100)), "value")
	if err != nil {
		t.Fatalf("long key digest error: %v", err)
	}
	if len(long) != 64 {
		t.Fatalf("unexpected digest length %d", len(long))
	}

	if _, err := KeyedDigest(nil, "value"); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Fatal("expected last byte mismatch to fail")
	}
	if ConstantTimeEqual("abc", "abcd") {
		t.Fatal("expected length mismatch to fail")
	}
	if ConstantTimeEqual("", "") {
		t.Fatal("expected empty strings to fail")
	}
}
