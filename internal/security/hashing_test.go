package security

import (
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(10)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" {
		t.Fatal("Hash returned empty")
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestHasher_CompareWrongPassword(t *testing.T) {
	h := NewHasher(10)
	hash, _ := h.Hash("secret123")
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatal("Compare with wrong password should fail")
	}
}

func TestHasher_CostClamped(t *testing.T) {
	h := NewHasher(12)
	if h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	h0 := NewHasher(0)
	if h0.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h0.Cost)
	}
	hBig := NewHasher(99)
	if hBig.Cost > 31 {
		t.Errorf("oversized cost should be clamped to MaxCost, got %d", hBig.Cost)
	}
}
