package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := h.Compare(hash, "s3cret-pass"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := h.Compare("", "anything"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected empty hash to mismatch, got %v", err)
	}
}

func TestBurnUsesConfiguredCost(t *testing.T) {
	h := NewHasher(bcrypt.MinCost + 1)
	if h.dummy != nil {
		t.Fatal("dummy hash must be built lazily")
	}

	h.Burn("whatever")
	cost, err := bcrypt.Cost(h.dummy)
	if err != nil {
		t.Fatalf("dummy hash: %v", err)
	}
	if cost != h.Cost {
		t.Fatalf("dummy cost = %d, want %d", cost, h.Cost)
	}

	first := h.dummy
	h.Compare("", "whatever")
	if &first[0] != &h.dummy[0] {
		t.Fatal("dummy hash must be built once")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if NewHasher(100).Cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost")
	}
}

func TestRandomSecrets(t *testing.T) {
	var gen RandomSecrets
	a, err := gen.New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, _ := gen.New()
	if a == b {
		t.Fatalf("expected distinct secrets")
	}
	if len(a) != 43 {
		t.Fatalf("expected 43 chars, got %d", len(a))
	}
	if HashSecret(a) == HashSecret(b) || len(HashSecret(a)) != 64 {
		t.Fatalf("unexpected hash output")
	}
}

func TestNewStamp(t *testing.T) {
	a, _ := NewStamp()
	b, _ := NewStamp()
	if a == "" || a == b {
		t.Fatalf("expected distinct stamps")
	}
}
