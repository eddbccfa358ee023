package crypto

import "testing"

func TestTokenGeneration(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct tokens")
	}
	if HashToken(a) == HashToken(b) {
		t.Fatalf("expected distinct hashes")
	}
	if HashToken(a) != HashToken(a) {
		t.Fatalf("expected stable hash")
	}
	if HashToken(a) == a {
		t.Fatalf("hash must not equal the raw token")
	}
}
