package primitives

import "testing"

func TestMerkleRootSingleLeaf(t *testing.T) {
	id := Keccak256([]byte("tx-a"))
	root, err := MerkleRoot([]Hash{id})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.IsZero() {
		t.Fatalf("root should not be zero")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	ids := []Hash{
		Keccak256([]byte("tx-a")),
		Keccak256([]byte("tx-b")),
		Keccak256([]byte("tx-c")),
	}
	r1, err := MerkleRoot(ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := MerkleRoot(append([]Hash{}, ids...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("merkle root not deterministic")
	}
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	a := Keccak256([]byte("tx-a"))
	b := Keccak256([]byte("tx-b"))
	r1, _ := MerkleRoot([]Hash{a, b})
	r2, _ := MerkleRoot([]Hash{b, a})
	if r1 == r2 {
		t.Fatalf("expected different order to produce different root")
	}
}

func TestMerkleRootEmptyRejected(t *testing.T) {
	if _, err := MerkleRoot(nil); err == nil {
		t.Fatalf("expected error for empty id list")
	}
}
