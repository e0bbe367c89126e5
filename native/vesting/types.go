package vesting

import (
	"math/big"

	"ecmstaking/crypto"
)

// Grant is a linearly-unlocking allocation held by the vesting vault until the
// beneficiary claims the unlocked tranches.
type Grant struct {
	ID          uint64         `json:"id"`
	Beneficiary crypto.Address `json:"beneficiary"`
	// PoolID records which staking pool routed the payout here.
	PoolID string `json:"poolId"`
	Token  string `json:"token"`
	// Amount is the full granted value; Claimed tracks what has been paid out.
	Amount  *big.Int `json:"amount"`
	Claimed *big.Int `json:"claimed"`
	// StartTime anchors the linear unlock; Duration is its length in seconds.
	StartTime uint64 `json:"startTime"`
	Duration  uint64 `json:"duration"`
	CreatedAt uint64 `json:"createdAt"`
}

// Unlocked returns the portion of the grant released at `now`, before
// subtracting claims. The unlock is linear between StartTime and
// StartTime+Duration.
func (g *Grant) Unlocked(now uint64) *big.Int {
	if g == nil || g.Amount == nil || g.Amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if now <= g.StartTime {
		return big.NewInt(0)
	}
	if g.Duration == 0 || now >= g.StartTime+g.Duration {
		return new(big.Int).Set(g.Amount)
	}
	elapsed := new(big.Int).SetUint64(now - g.StartTime)
	unlocked := new(big.Int).Mul(g.Amount, elapsed)
	return unlocked.Quo(unlocked, new(big.Int).SetUint64(g.Duration))
}

// Claimable returns the unlocked value not yet claimed at `now`.
func (g *Grant) Claimable(now uint64) *big.Int {
	unlocked := g.Unlocked(now)
	if g.Claimed != nil {
		unlocked.Sub(unlocked, g.Claimed)
	}
	if unlocked.Sign() < 0 {
		return big.NewInt(0)
	}
	return unlocked
}

func ensureGrantDefaults(g *Grant) {
	if g == nil {
		return
	}
	if g.Amount == nil {
		g.Amount = big.NewInt(0)
	}
	if g.Claimed == nil {
		g.Claimed = big.NewInt(0)
	}
}
