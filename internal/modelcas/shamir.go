// shamir.go implements the threshold key scheme of spec.md §4.9's
// last paragraph: Shamir's Secret Sharing over a 256-bit prime field,
// n-of-m splitting and Lagrange reconstruction at x=0. No example repo
// or its transitive dependencies (see DESIGN.md) implements general
// finite-field secret sharing, so this is hand-written directly on
// math/big the way the teacher hand-rolls its own wire codecs rather
// than reach for a mismatched library.
package modelcas

import (
	"crypto/rand"
	"math/big"

	"lattice.dev/node/internal/nodeerrors"
	"lattice.dev/node/internal/primitives"
)

// shamirPrime is a 256-bit prime (2^256 - 189) used as the field modulus
// for all share arithmetic. Secrets must be reduced mod this prime before
// splitting; spec.md's test fixtures ([42;32], a 32-byte all-constant
// secret) fit comfortably under it.
var shamirPrime, _ = new(big.Int).SetString(
	"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff43", 16,
)

// Share is one (x, y) point on the splitting polynomial, identified by
// the holder's address per spec.md's "share holders are identified by
// address" contract.
type Share struct {
	Holder primitives.Address
	X      *big.Int
	Y      *big.Int
}

// Split produces m shares of secret such that any n of them reconstruct
// it exactly via Lagrange interpolation, and fewer than n do not.
// holders must have length m; x-coordinates are holders' 1-indexed
// position (1..m), never 0, since x=0 is reserved for the secret itself.
func Split(secret [32]byte, n, m int, holders []primitives.Address) ([]Share, error) {
	if n < 1 || m < n {
		return nil, nodeerrors.Invalid("MODELCAS_SHAMIR_BAD_PARAMS", "require 1 <= n <= m")
	}
	if len(holders) != m {
		return nil, nodeerrors.Invalid("MODELCAS_SHAMIR_HOLDER_COUNT", "holders must have length m")
	}

	secretInt := new(big.Int).SetBytes(secret[:])
	secretInt.Mod(secretInt, shamirPrime)

	coeffs := make([]*big.Int, n)
	coeffs[0] = secretInt
	for i := 1; i < n; i++ {
		c, err := rand.Int(rand.Reader, shamirPrime)
		if err != nil {
			return nil, nodeerrors.Wrap(nodeerrors.KindIntegrity, "MODELCAS_SHAMIR_RAND_FAILURE", "coefficient generation failed", err)
		}
		coeffs[i] = c
	}

	shares := make([]Share, m)
	for i := 0; i < m; i++ {
		x := big.NewInt(int64(i + 1))
		shares[i] = Share{Holder: holders[i], X: x, Y: evalPoly(coeffs, x)}
	}
	return shares, nil
}

// evalPoly evaluates the polynomial with the given coefficients
// (ascending degree) at x, mod shamirPrime.
func evalPoly(coeffs []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
		result.Mod(result, shamirPrime)
	}
	return result
}

// Reconstruct recovers the secret from >= n of the shares originally
// produced by Split via Lagrange interpolation at x=0. Passing fewer
// than the original n shares silently yields a different, wrong value
// (the standard Shamir property) unless the caller enforces a minimum
// count; MinShares does that enforcement for the n-of-m contract.
func Reconstruct(shares []Share) ([32]byte, error) {
	if len(shares) == 0 {
		return [32]byte{}, nodeerrors.Invalid("MODELCAS_SHAMIR_NO_SHARES", "need at least one share")
	}
	secret := lagrangeAtZero(shares)
	var out [32]byte
	secret.FillBytes(out[:])
	return out, nil
}

// MinShares enforces spec.md's "fewer than n fails" invariant before
// calling Reconstruct. Callers that split with a known n should use
// this rather than calling Reconstruct directly on an arbitrary subset.
func MinShares(shares []Share, n int) ([32]byte, error) {
	if len(shares) < n {
		return [32]byte{}, nodeerrors.Policy("MODELCAS_SHAMIR_INSUFFICIENT_SHARES", "fewer than threshold shares supplied")
	}
	return Reconstruct(shares[:n])
}

func lagrangeAtZero(shares []Share) *big.Int {
	result := new(big.Int)
	for i, si := range shares {
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			// term = (0 - x_j) / (x_i - x_j)
			negXj := new(big.Int).Neg(sj.X)
			negXj.Mod(negXj, shamirPrime)
			num.Mul(num, negXj)
			num.Mod(num, shamirPrime)

			diff := new(big.Int).Sub(si.X, sj.X)
			diff.Mod(diff, shamirPrime)
			den.Mul(den, diff)
			den.Mod(den, shamirPrime)
		}
		denInv := new(big.Int).ModInverse(den, shamirPrime)
		term := new(big.Int).Mul(si.Y, num)
		term.Mul(term, denInv)
		term.Mod(term, shamirPrime)
		result.Add(result, term)
		result.Mod(result, shamirPrime)
	}
	return result
}

// NewShareAtFreshX evaluates a fresh share at an x-coordinate not among
// existing shares, using Lagrange interpolation to extrapolate the same
// polynomial implied by shares — spec.md S5/property 8's "adding a new
// share via interpolation at a fresh x yields a share consistent with
// the same secret". Requires len(shares) >= original n to be exact.
func NewShareAtFreshX(shares []Share, holder primitives.Address, freshX *big.Int) Share {
	y := evalAtX(shares, freshX)
	return Share{Holder: holder, X: freshX, Y: y}
}

// evalAtX extrapolates the polynomial implied by shares to an arbitrary
// x via Lagrange interpolation (the x=0 case is lagrangeAtZero).
func evalAtX(shares []Share, x *big.Int) *big.Int {
	result := new(big.Int)
	for i, si := range shares {
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			diffX := new(big.Int).Sub(x, sj.X)
			diffX.Mod(diffX, shamirPrime)
			num.Mul(num, diffX)
			num.Mod(num, shamirPrime)

			diff := new(big.Int).Sub(si.X, sj.X)
			diff.Mod(diff, shamirPrime)
			den.Mul(den, diff)
			den.Mod(den, shamirPrime)
		}
		denInv := new(big.Int).ModInverse(den, shamirPrime)
		term := new(big.Int).Mul(si.Y, num)
		term.Mul(term, denInv)
		term.Mod(term, shamirPrime)
		result.Add(result, term)
		result.Mod(result, shamirPrime)
	}
	return result
}
