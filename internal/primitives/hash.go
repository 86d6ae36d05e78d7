// Package primitives holds the fixed-width value types shared by every
// core subsystem: 32-byte hashes, 20-byte addresses, 256-bit words, and
// the canonical binary codec used to compute content hashes.
package primitives

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash is an opaque 32-byte identifier with a total order by
// lexicographic comparison. The zero value denotes absence.
type Hash [32]byte

// ZeroHash is the conventional "absent" hash (genesis's selected parent,
// an unset pruning point, etc).
var ZeroHash = Hash{}

func (h Hash) IsZero() bool { return h == ZeroHash }

// Less implements the total order required for tie-breaks throughout
// GhostDAG and tip selection: lower hash wins.
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

func (h Hash) Cmp(o Hash) int { return bytes.Compare(h[:], o[:]) }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) Bytes() []byte { return h[:] }

func HashFromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != len(h) {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, err
	}
	h, ok := HashFromBytes(b)
	if !ok {
		return Hash{}, errNotAHash(len(b))
	}
	return h, nil
}

type hashLengthError int

func (e hashLengthError) Error() string {
	return "primitives: expected 32 bytes, got a different length"
}

func errNotAHash(n int) error { return hashLengthError(n) }

// SortHashesDesc sorts a slice of hashes by descending value, used for
// "hash descending" tie-break ordering (e.g. tip listing).
func SortHashesDesc(hs []Hash) {
	sortSlice(hs, func(i, j int) bool { return hs[j].Less(hs[i]) })
}

// SortHashesAsc sorts ascending, used for GhostDAG's "lower hash first"
// deterministic candidate ordering.
func SortHashesAsc(hs []Hash) {
	sortSlice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
}

func sortSlice(hs []Hash, less func(i, j int) bool) {
	// Insertion sort is adequate: blue-set candidate lists and tip
	// lists are small (bounded by max_parents / active tip count).
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

// Keccak256 is the Ethereum-style Keccak-256 hash, used for address
// derivation (spec's hashed-address path) and EVM's SHA3 opcode.
func Keccak256(data ...[]byte) Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// SHA3_256 is the NIST SHA3-256 variant, distinct from Keccak256 above.
// Used wherever the spec calls for "SHA3-256" explicitly (model manifest
// plaintext hashing) as opposed to the Keccak variant EVM/addresses use.
func SHA3_256(data ...[]byte) Hash {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
