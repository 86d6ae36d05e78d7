package primitives

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// VerifyTxSignature checks tx.Signature (a 65-byte r||s||v recoverable
// ECDSA signature, the same shape accepted by the ECRECOVER precompile)
// against TxPreimage(tx) and requires the recovered public key's
// X-coordinate to equal tx.From — the sender field doubles as an
// x-only public key commitment, mirroring how DeriveAddress treats the
// first bytes of a 32-byte key material.
func VerifyTxSignature(tx Transaction) bool {
	if len(tx.Signature) != 65 {
		return false
	}
	digest := Keccak256(TxPreimage(tx))

	sig, _, err := ecdsa.RecoverCompact(normalizeRecoverable(tx.Signature), digest[:])
	if err != nil {
		return false
	}
	pub := sig.SerializeCompressed()
	// drop the 0x02/0x03 parity prefix; compare the 32-byte X coordinate.
	if len(pub) != 33 {
		return false
	}
	var x [32]byte
	copy(x[:], pub[1:])
	return x == tx.From
}

// normalizeRecoverable reshapes a 65-byte r||s||v signature into the
// 65-byte recovery-id-first form RecoverCompact expects.
func normalizeRecoverable(sig []byte) []byte {
	out := make([]byte, 65)
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	out[0] = v + 27
	copy(out[1:], sig[:64])
	return out
}

// PublicKeyFromSecret derives the secp256k1 public key's X-only
// commitment from a private scalar, for tests and key-management tooling.
func PublicKeyFromSecret(secret [32]byte) [32]byte {
	pub := secp256k1.PrivKeyFromBytes(secret[:]).PubKey()
	b := pub.SerializeCompressed()
	var x [32]byte
	copy(x[:], b[1:])
	return x
}

// SignTx produces a 65-byte r||s||v recoverable signature over
// TxPreimage(tx), for tests and tooling that need to construct
// well-formed signed transactions.
func SignTx(tx Transaction, secret [32]byte) []byte {
	return SignHash(Keccak256(TxPreimage(tx)), secret)
}

// SignHash produces a 65-byte r||s||v recoverable signature over an
// arbitrary 32-byte digest, the same shape the ECRECOVER precompile
// accepts.
func SignHash(digest Hash, secret [32]byte) []byte {
	priv := secp256k1.PrivKeyFromBytes(secret[:])
	sig := ecdsa.SignCompact(priv, digest[:], false)
	out := make([]byte, 65)
	v := sig[0] - 27
	copy(out[:64], sig[1:])
	out[64] = v
	return out
}
