package stake

import "math/big"

// SplitPenalty slashes an early-exit principal by penaltyBps, truncating
// toward zero, and returns the amount refunded to the staker alongside the
// penalty routed to the receiver. Rewards are never part of the split.
func SplitPenalty(principal *big.Int, penaltyBps uint64) (returned, penalty *big.Int) {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	penalty = bpsShare(principal, penaltyBps)
	returned = new(big.Int).Sub(principal, penalty)
	return returned, penalty
}
