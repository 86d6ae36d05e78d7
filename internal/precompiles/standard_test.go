package precompiles

import (
	"bytes"
	"testing"

	"lattice.dev/node/internal/primitives"
)

// TestECRecoverV27 is spec.md's S2 scenario.
func TestECRecoverV27(t *testing.T) {
	var secret [32]byte
	secret[31] = 0x09
	pub := primitives.PublicKeyFromSecret(secret)
	wantAddr := primitives.DeriveAddress(pub)

	hash := primitives.Keccak256([]byte("Hello World"))
	sig := primitives.SignHash(hash, secret) // 65 bytes: r(32) || s(32) || v(1)

	input := make([]byte, 128)
	copy(input[0:32], hash[:])
	v := sig[64]
	if v < 27 {
		v += 27
	}
	input[63] = v
	copy(input[64:96], sig[0:32])
	copy(input[96:128], sig[32:64])

	out, ok := Run(AddrECRecover, input)
	if !ok {
		t.Fatalf("expected ECRECOVER to be recognized")
	}
	if out.GasUsed != 3000 {
		t.Fatalf("expected gas_used=3000, got %d", out.GasUsed)
	}
	var gotAddr primitives.Address
	copy(gotAddr[:], out.Data[12:])
	if gotAddr != wantAddr {
		t.Fatalf("expected recovered address %s, got %s", wantAddr, gotAddr)
	}
}

func TestECRecoverRejectsBadV(t *testing.T) {
	input := make([]byte, 128)
	input[63] = 99 // not in {0,1,27,28}
	out, ok := Run(AddrECRecover, input)
	if !ok {
		t.Fatalf("expected ECRECOVER to be recognized")
	}
	if out.GasUsed != 3000 {
		t.Fatalf("expected full gas charged even on rejection, got %d", out.GasUsed)
	}
	if !bytes.Equal(out.Data, make([]byte, 32)) {
		t.Fatalf("expected 32 zero bytes on bad v")
	}
}

func TestIdentityPrecompile(t *testing.T) {
	input := []byte("hello precompile")
	out, ok := Run(AddrIdentity, input)
	if !ok || !bytes.Equal(out.Data, input) {
		t.Fatalf("expected identity passthrough")
	}
}

func TestSHA256Precompile(t *testing.T) {
	out, ok := Run(AddrSHA256, []byte("abc"))
	if !ok {
		t.Fatalf("expected SHA256 to be recognized")
	}
	if len(out.Data) != 32 {
		t.Fatalf("expected 32-byte digest")
	}
}

func TestModExpSimple(t *testing.T) {
	// 2^3 mod 5 = 3
	input := make([]byte, 96+1+1+1)
	input[31] = 1 // baseLen = 1
	input[63] = 1 // expLen = 1
	input[95] = 1 // modLen = 1
	input[96] = 2 // base
	input[97] = 3 // exp
	input[98] = 5 // mod
	out, ok := Run(AddrModExp, input)
	if !ok {
		t.Fatalf("expected MODEXP to be recognized")
	}
	if len(out.Data) != 1 || out.Data[0] != 3 {
		t.Fatalf("expected 2^3 mod 5 = 3, got %v", out.Data)
	}
}
