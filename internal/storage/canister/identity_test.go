package canister

import (
	"crypto/ed25519"
	"regexp"
	"testing"
)

func TestDeriveIdentity_Deterministic(t *testing.T) {
	a := DeriveIdentity([]byte("secret"), []byte("salt"))
	b := DeriveIdentity([]byte("secret"), []byte("salt"))
	if a.Principal() != b.Principal() {
		t.Fatalf("same inputs must derive the same principal")
	}

	c := DeriveIdentity([]byte("secret"), []byte("other-salt"))
	if a.Principal() == c.Principal() {
		t.Fatalf("different salt must derive a different principal")
	}
}

func TestIdentity_SignVerifies(t *testing.T) {
	id := DeriveIdentity([]byte("secret"), []byte("salt"))
	msg := []byte("uploads_begin.payload")
	sig := id.Sign(msg)
	if !ed25519.Verify(ed25519.PublicKey(id.PublicKey()), msg, sig) {
		t.Fatalf("signature does not verify")
	}
}

func TestIdentity_PrincipalTextualForm(t *testing.T) {
	id := DeriveIdentity([]byte("secret"), []byte("salt"))
	p := id.Principal()

	// Lowercase base32 groups of at most five characters, dash separated.
	if !regexp.MustCompile(`^[a-z2-7]{1,5}(-[a-z2-7]{1,5})+$`).MatchString(p) {
		t.Fatalf("principal %q is not in textual form", p)
	}
}
