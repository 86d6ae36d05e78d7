package primitives

// Address is a 20-byte account identifier.
type Address [20]byte

var ZeroAddress = Address{}

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string {
	return Hash(padLeft(a[:], 32)).String()[24:]
}

func padLeft(b []byte, n int) [32]byte {
	var out [32]byte
	copy(out[32-len(b):], b)
	return out
}

func AddressFromBytes(b []byte) (Address, bool) {
	var a Address
	if len(b) != len(a) {
		return a, false
	}
	copy(a[:], b)
	return a, true
}

// DeriveAddress implements the dual address-derivation rule of spec.md
// §3 from a 32-byte public key:
//
//   - if the last 12 bytes are all zero and the first 20 are not all
//     zero, the address is the embedded 20-byte form (the key directly
//     encodes an EVM-style address in its first 20 bytes, followed by
//     12 zero bytes);
//   - otherwise the address is the last 20 bytes of Keccak-256(pubkey),
//     the standard Ethereum-style derivation.
func DeriveAddress(pubkey [32]byte) Address {
	if isEmbeddedForm(pubkey) {
		var a Address
		copy(a[:], pubkey[:20])
		return a
	}
	digest := Keccak256(pubkey[:])
	var a Address
	copy(a[:], digest[12:])
	return a
}

func isEmbeddedForm(pubkey [32]byte) bool {
	allZeroTail := true
	for _, b := range pubkey[20:] {
		if b != 0 {
			allZeroTail = false
			break
		}
	}
	if !allZeroTail {
		return false
	}
	allZeroHead := true
	for _, b := range pubkey[:20] {
		if b != 0 {
			allZeroHead = false
			break
		}
	}
	return !allZeroHead
}
