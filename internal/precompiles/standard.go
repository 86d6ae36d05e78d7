// Package precompiles implements the standard 0x01-0x09 precompiled
// contracts and the AI precompile range defined in spec.md §4.8.
// ECRECOVER is grounded on the same decred secp256k1 recovery path used
// by internal/primitives.VerifyTxSignature; ECADD/ECMUL/ECPAIRING are
// grounded on github.com/consensys/gnark-crypto's bn254 curve
// implementation (alt_bn128, matching go-ethereum's EIP-196/197
// precompile curve choice).
package precompiles

import (
	"crypto/sha256"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160" //lint:ignore SA1019 precompile requires the legacy digest

	"lattice.dev/node/internal/primitives"
)

// Address is the 20-byte precompile address space; standard precompiles
// live at 0x00..0x00 01 through 0x09.
type Address = primitives.Address

func addrOf(n byte) Address {
	var a Address
	a[19] = n
	return a
}

var (
	AddrECRecover  = addrOf(0x01)
	AddrSHA256     = addrOf(0x02)
	AddrRIPEMD160  = addrOf(0x03)
	AddrIdentity   = addrOf(0x04)
	AddrModExp     = addrOf(0x05)
	AddrECAdd      = addrOf(0x06)
	AddrECMul      = addrOf(0x07)
	AddrECPairing  = addrOf(0x08)
	AddrBlake2F    = addrOf(0x09)
)

type Output struct {
	Data    []byte
	GasUsed uint64
}

// Run dispatches a call to a standard precompile address; ok is false
// if addr does not name a standard precompile.
func Run(addr Address, input []byte) (Output, bool) {
	switch addr {
	case AddrECRecover:
		return ecRecover(input), true
	case AddrSHA256:
		return sha256Precompile(input), true
	case AddrRIPEMD160:
		return ripemd160Precompile(input), true
	case AddrIdentity:
		return identity(input), true
	case AddrModExp:
		return modExp(input), true
	case AddrECAdd:
		return ecAdd(input), true
	case AddrECMul:
		return ecMul(input), true
	case AddrECPairing:
		return ecPairing(input), true
	case AddrBlake2F:
		return blake2F(input), true
	default:
		return Output{}, false
	}
}

// ecRecover implements spec.md §4.8's ECRECOVER layout: hash(32) ||
// v(32, value in last byte) || r(32) || s(32). Accepted v values are
// {0, 1, 27, 28}; any other value yields 32 zero bytes with full gas
// charged (3000), matching the spec's exact wording.
func ecRecover(input []byte) Output {
	const gas = 3000
	padded := padTo(input, 128)
	var hash [32]byte
	copy(hash[:], padded[0:32])
	v := padded[63]

	if !isAcceptedV(v) || !vHighBytesZero(padded[32:64]) {
		return Output{Data: make([]byte, 32), GasUsed: gas}
	}

	recID := normalizeV(v)
	sigCompact := make([]byte, 65)
	sigCompact[0] = recID + 27
	copy(sigCompact[1:33], padded[64:96])
	copy(sigCompact[33:65], padded[96:128])

	pub, _, err := ecdsa.RecoverCompact(sigCompact, hash[:])
	if err != nil {
		return Output{Data: make([]byte, 32), GasUsed: gas}
	}
	compressed := pub.SerializeCompressed()
	var pubkey [32]byte
	copy(pubkey[:], compressed[1:])
	addr := primitives.DeriveAddress(pubkey)

	out := make([]byte, 32)
	copy(out[12:], addr[:])
	return Output{Data: out, GasUsed: gas}
}

func isAcceptedV(v byte) bool { return v == 0 || v == 1 || v == 27 || v == 28 }
func normalizeV(v byte) byte {
	if v >= 27 {
		return v - 27
	}
	return v
}
func vHighBytesZero(vField []byte) bool {
	for _, b := range vField[:31] {
		if b != 0 {
			return false
		}
	}
	return true
}

func sha256Precompile(input []byte) Output {
	sum := sha256.Sum256(input)
	gas := 60 + 12*uint64((len(input)+31)/32)
	return Output{Data: sum[:], GasUsed: gas}
}

func ripemd160Precompile(input []byte) Output {
	h := ripemd160.New()
	h.Write(input)
	sum := h.Sum(nil)
	out := make([]byte, 32)
	copy(out[12:], sum)
	gas := 600 + 120*uint64((len(input)+31)/32)
	return Output{Data: out, GasUsed: gas}
}

func identity(input []byte) Output {
	out := make([]byte, len(input))
	copy(out, input)
	gas := 15 + 3*uint64((len(input)+31)/32)
	return Output{Data: out, GasUsed: gas}
}

// modExp implements base^exp mod modulus over arbitrary-length
// big-endian operands with 32-byte length-prefixed fields, the same
// layout go-ethereum uses for its MODEXP precompile.
func modExp(input []byte) Output {
	padded := padTo(input, 96)
	baseLen := new(big.Int).SetBytes(padded[0:32]).Uint64()
	expLen := new(big.Int).SetBytes(padded[32:64]).Uint64()
	modLen := new(big.Int).SetBytes(padded[64:96]).Uint64()

	rest := input
	if len(rest) > 96 {
		rest = rest[96:]
	} else {
		rest = nil
	}
	rest = padTo(rest, baseLen+expLen+modLen)

	base := new(big.Int).SetBytes(rest[0:baseLen])
	exp := new(big.Int).SetBytes(rest[baseLen : baseLen+expLen])
	mod := new(big.Int).SetBytes(rest[baseLen+expLen : baseLen+expLen+modLen])

	var result *big.Int
	if mod.Sign() == 0 {
		result = big.NewInt(0)
	} else {
		result = new(big.Int).Exp(base, exp, mod)
	}

	out := make([]byte, modLen)
	result.FillBytes(out)

	gas := 200 + baseLen*modLen/20
	return Output{Data: out, GasUsed: gas}
}

func padTo(b []byte, n uint64) []byte {
	if uint64(len(b)) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
