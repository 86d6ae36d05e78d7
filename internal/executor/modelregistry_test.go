package executor

import (
	"testing"

	"lattice.dev/node/internal/primitives"
)

func mustCommit(id primitives.Hash, weights []float32) []byte {
	h := primitives.SHA3_256(id[:], encodeModelFloats(weights))
	return h[:]
}

// TestModelRegistryInferLinearLayer deploys a 2x2 identity-like weight
// matrix and checks the dot-product inference matches hand computation.
func TestModelRegistryInferLinearLayer(t *testing.T) {
	r := NewModelRegistry()
	weights := []float32{2, 0, 0, 3} // 2x2 matrix, row-major
	id, err := r.Deploy(encodeModelFloats(weights), []byte(`{"name":"scale"}`))
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	out, err := r.Infer(id, []float32{5, 7})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(out) != 2 || out[0] != 10 || out[1] != 21 {
		t.Fatalf("got %v, want [10 21]", out)
	}
}

func TestModelRegistryVerifyProof(t *testing.T) {
	r := NewModelRegistry()
	id, err := r.Deploy(encodeModelFloats([]float32{1, 2, 3, 4}), nil)
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	// VerifyProof requires the caller to know the exact commitment
	// scheme; reconstruct it the same way Deploy's caller would.
	r.mu.RLock()
	m := r.models[id]
	r.mu.RUnlock()
	expect := mustCommit(id, m.Weights)

	if !r.VerifyProof(id, expect) {
		t.Fatal("expected valid proof to verify")
	}
	bad := append([]byte(nil), expect...)
	bad[0] ^= 0xFF
	if r.VerifyProof(id, bad) {
		t.Fatal("expected corrupted proof to fail verification")
	}
}
