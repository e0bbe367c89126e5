package amm

import (
	"errors"
	"math/big"
)

var (
	// ErrEmptyReserves indicates one of the pair reserves is zero or missing.
	ErrEmptyReserves = errors.New("amm: pair reserves must be positive")
	// ErrInvalidAmount indicates the quoted amount is zero or negative.
	ErrInvalidAmount = errors.New("amm: amount must be positive")
	// ErrInsufficientReserve indicates the requested output would drain the
	// out-side reserve.
	ErrInsufficientReserve = errors.New("amm: requested amount exceeds reserve")
)

// Reserves is a snapshot of the constant-product pair backing a pool's price.
// ReserveIn is the purchase-currency side, ReserveOut the staked-token side.
type Reserves struct {
	ReserveIn  *big.Int
	ReserveOut *big.Int
}

// PairSource yields fresh reserves for a pool's configured pair. Reserves are
// read per quote so prices track the external pair between operations.
type PairSource interface {
	PairReserves(poolID string) (Reserves, error)
}

// Quoter prices conversions between the purchase currency and the staked
// token. The staking engine consumes this interface so tests can stub pricing.
type Quoter interface {
	QuoteOut(poolID string, amountIn *big.Int) (*big.Int, error)
	QuoteIn(poolID string, amountOut *big.Int) (*big.Int, error)
}

// QuoteOut computes the constant-product output for a given input:
// amountOut = amountIn * reserveOut / (reserveIn + amountIn). Truncation
// rounds in favour of the pool.
func QuoteOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrEmptyReserves
	}
	numerator := new(big.Int).Mul(amountIn, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountIn)
	return numerator.Quo(numerator, denominator), nil
}

// QuoteIn computes the input required for an exact output:
// amountIn = amountOut * reserveIn / (reserveOut - amountOut), rounded up so
// the pool never under-collects.
func QuoteIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveIn.Sign() <= 0 || reserveOut == nil || reserveOut.Sign() <= 0 {
		return nil, ErrEmptyReserves
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientReserve
	}
	numerator := new(big.Int).Mul(amountOut, reserveIn)
	denominator := new(big.Int).Sub(reserveOut, amountOut)
	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

// PairQuoter adapts a PairSource into a Quoter by reading reserves fresh on
// every call.
type PairQuoter struct {
	source PairSource
}

// NewPairQuoter constructs a quoter backed by the supplied reserve source.
func NewPairQuoter(source PairSource) *PairQuoter {
	return &PairQuoter{source: source}
}

// QuoteOut implements the Quoter interface.
func (q *PairQuoter) QuoteOut(poolID string, amountIn *big.Int) (*big.Int, error) {
	if q == nil || q.source == nil {
		return nil, ErrEmptyReserves
	}
	reserves, err := q.source.PairReserves(poolID)
	if err != nil {
		return nil, err
	}
	return QuoteOut(amountIn, reserves.ReserveIn, reserves.ReserveOut)
}

// QuoteIn implements the Quoter interface.
func (q *PairQuoter) QuoteIn(poolID string, amountOut *big.Int) (*big.Int, error) {
	if q == nil || q.source == nil {
		return nil, ErrEmptyReserves
	}
	reserves, err := q.source.PairReserves(poolID)
	if err != nil {
		return nil, err
	}
	return QuoteIn(amountOut, reserves.ReserveIn, reserves.ReserveOut)
}
