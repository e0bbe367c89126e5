package stake

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	// precision scales the pool accumulator; matches the 1e18 token base unit.
	precision = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// mulDiv computes a*b/den with truncation toward zero. A nil or zero
// denominator yields zero rather than panicking; callers validate inputs
// before arithmetic.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, den)
}

// bpsShare returns amount*bps/10000 truncated toward zero.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	return mulDiv(amount, new(big.Int).SetUint64(bps), basisPoints)
}

// floorToQuantum rounds amount down to the nearest multiple of quantum. A nil
// or zero quantum leaves the amount untouched.
func floorToQuantum(amount, quantum *big.Int) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if quantum == nil || quantum.Sign() <= 0 {
		return new(big.Int).Set(amount)
	}
	out := new(big.Int).Quo(amount, quantum)
	return out.Mul(out, quantum)
}

// isQuantumAligned reports whether amount is an exact multiple of quantum.
func isQuantumAligned(amount, quantum *big.Int) bool {
	if amount == nil {
		return false
	}
	if quantum == nil || quantum.Sign() <= 0 {
		return true
	}
	rem := new(big.Int).Rem(amount, quantum)
	return rem.Sign() == 0
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minBigInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
