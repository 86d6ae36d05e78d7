package modelcas

import (
	"math/big"
	"testing"

	"lattice.dev/node/internal/primitives"
)

func testHolders(n int) []primitives.Address {
	out := make([]primitives.Address, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

// TestShamir2of3 implements spec.md S5: split a 32-byte secret 2-of-3,
// reconstruct from shares[0:2] and shares[1:3], and confirm 1 share fails.
func TestShamir2of3(t *testing.T) {
	var secret [32]byte
	for i := range secret {
		secret[i] = 42
	}

	shares, err := Split(secret, 2, 3, testHolders(3))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}

	got, err := MinShares(shares[0:2], 2)
	if err != nil {
		t.Fatalf("reconstruct from shares[0:2]: %v", err)
	}
	if got != secret {
		t.Fatalf("shares[0:2] reconstructed %x, want %x", got, secret)
	}

	got, err = MinShares(shares[1:3], 2)
	if err != nil {
		t.Fatalf("reconstruct from shares[1:3]: %v", err)
	}
	if got != secret {
		t.Fatalf("shares[1:3] reconstructed %x, want %x", got, secret)
	}

	if _, err := MinShares(shares[0:1], 2); err == nil {
		t.Fatal("expected error reconstructing from 1 share with threshold 2")
	}
}

func TestShamirFreshShareConsistent(t *testing.T) {
	var secret [32]byte
	secret[31] = 7

	holders := testHolders(3)
	shares, err := Split(secret, 2, 3, holders)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	fresh := NewShareAtFreshX(shares[:2], primitives.Address{9}, big.NewInt(99))
	got, err := MinShares([]Share{shares[0], fresh}, 2)
	if err != nil {
		t.Fatalf("reconstruct with fresh share: %v", err)
	}
	if got != secret {
		t.Fatalf("fresh-share reconstruction = %x, want %x", got, secret)
	}
}

func TestShamirBadParams(t *testing.T) {
	var secret [32]byte
	if _, err := Split(secret, 0, 3, testHolders(3)); err == nil {
		t.Fatal("expected error for n=0")
	}
	if _, err := Split(secret, 5, 3, testHolders(3)); err == nil {
		t.Fatal("expected error for n>m")
	}
	if _, err := Split(secret, 2, 3, testHolders(2)); err == nil {
		t.Fatal("expected error for mismatched holder count")
	}
}
