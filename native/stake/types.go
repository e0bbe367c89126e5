package stake

import (
	"math/big"

	"ecmstaking/crypto"
)

// ScheduleKind selects the reward emission strategy for a pool.
type ScheduleKind uint8

const (
	// ScheduleLinear emits at a constant per-second rate.
	ScheduleLinear ScheduleKind = iota
	// ScheduleMonthly emits fixed tranches over 30-day periods.
	ScheduleMonthly
	// ScheduleWeekly emits fixed tranches over 7-day periods.
	ScheduleWeekly
)

const (
	// SecondsPerWeek is the weekly tranche period length.
	SecondsPerWeek uint64 = 7 * 24 * 60 * 60
	// SecondsPerMonth is the monthly tranche period length.
	SecondsPerMonth uint64 = 30 * 24 * 60 * 60
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleLinear:
		return "linear"
	case ScheduleMonthly:
		return "monthly"
	case ScheduleWeekly:
		return "weekly"
	default:
		return "unknown"
	}
}

// RewardSchedule holds the persisted strategy state for a pool. Exactly one
// layout is populated depending on Kind: RatePerSecond for linear schedules,
// the tranche list plus cursor and anchor for period schedules.
type RewardSchedule struct {
	Kind ScheduleKind `json:"kind"`
	// RatePerSecond is the linear emission rate in reward wei per second.
	RatePerSecond *big.Int `json:"ratePerSecond,omitempty"`
	// Tranches lists the per-period emission amounts in order.
	Tranches []*big.Int `json:"tranches,omitempty"`
	// Cursor indexes the first tranche that has not fully elapsed. It only
	// advances when a period completes.
	Cursor int `json:"cursor,omitempty"`
	// AnchorTime is the unix second the first period started.
	AnchorTime uint64 `json:"anchorTime,omitempty"`
}

// PoolPolicy groups the governance-controlled knobs on a pool.
type PoolPolicy struct {
	// AllowedDurations lists the stake lock durations (seconds) a position
	// may choose from.
	AllowedDurations []uint64 `json:"allowedDurations"`
	// MaxDuration caps any allowed duration and anchors the linear rate.
	MaxDuration uint64 `json:"maxDuration"`
	// PenaltyBps is the principal slash applied on early exit.
	PenaltyBps uint64 `json:"penaltyBps"`
	// PenaltyReceiver collects slashed principal.
	PenaltyReceiver crypto.Address `json:"penaltyReceiver"`
	// VestRewards routes reward payouts into vesting grants when set.
	VestRewards bool `json:"vestRewards"`
	// VestingDuration is the linear unlock length for vested payouts.
	VestingDuration uint64 `json:"vestingDuration"`
	// MinPurchase is the smallest stake or purchase accepted.
	MinPurchase *big.Int `json:"minPurchase"`
	// PurchaseQuantum quantises purchase and stake amounts.
	PurchaseQuantum *big.Int `json:"purchaseQuantum"`
	// Active gates all user-facing mutations on the pool.
	Active bool `json:"active"`
}

// Pool captures the full accounting state for one staking market.
type Pool struct {
	ID string `json:"id"`
	// Owner controls the administrative surface for this pool.
	Owner crypto.Address `json:"owner"`
	// PairID identifies the external constant-product pair quoted for buys.
	PairID string `json:"pairId"`

	// Sale accounting. Sold never exceeds AllocatedForSale and never decreases.
	AllocatedForSale *big.Int `json:"allocatedForSale"`
	Sold             *big.Int `json:"sold"`
	// CollectedUSDT accumulates purchase proceeds held by the module.
	CollectedUSDT *big.Int `json:"collectedUSDT"`

	// Reward accounting. All three are monotonic non-decreasing with
	// TotalRewardsAccrued <= AllocatedForRewards and
	// RewardsPaid <= TotalRewardsAccrued.
	AllocatedForRewards *big.Int `json:"allocatedForRewards"`
	RewardsPaid         *big.Int `json:"rewardsPaid"`
	TotalRewardsAccrued *big.Int `json:"totalRewardsAccrued"`

	// AccRewardPerShare is the pool accumulator scaled by 1e18.
	AccRewardPerShare *big.Int `json:"accRewardPerShare"`
	LastUpdateTime    uint64   `json:"lastUpdateTime"`

	Schedule RewardSchedule `json:"schedule"`
	Policy   PoolPolicy     `json:"policy"`

	// Live stake accounting.
	TotalStaked        *big.Int `json:"totalStaked"`
	TotalUniqueStakers uint64   `json:"totalUniqueStakers"`

	// Lifetime analytics, all monotonic.
	LifetimeStaked     *big.Int `json:"lifetimeStaked"`
	LifetimeUnstaked   *big.Int `json:"lifetimeUnstaked"`
	PenaltiesCollected *big.Int `json:"penaltiesCollected"`
	PeakStaked         *big.Int `json:"peakStaked"`

	// Liquidity bookkeeping against the external liquidity operator.
	LiquidityOutECM   *big.Int `json:"liquidityOutECM"`
	LiquidityOwedECM  *big.Int `json:"liquidityOwedECM"`
	LiquidityOutUSDT  *big.Int `json:"liquidityOutUSDT"`
	LiquidityAddedECM *big.Int `json:"liquidityAddedECM"`
}

// UserPosition is the single open stake a user holds within one pool, plus the
// lifetime counters preserved across closes.
type UserPosition struct {
	Address crypto.Address `json:"address"`

	// Staked is the principal currently locked; zero when the position is
	// closed.
	Staked        *big.Int `json:"staked"`
	StakeStart    uint64   `json:"stakeStart"`
	StakeDuration uint64   `json:"stakeDuration"`
	// RewardDebt snapshots the accumulator value already accounted for this
	// principal. Pending rewards only count accumulator growth beyond it.
	RewardDebt *big.Int `json:"rewardDebt"`
	// CarriedPending holds rewards accrued before a top-up reset the debt
	// snapshot.
	CarriedPending *big.Int `json:"carriedPending"`

	// Lifetime counters.
	TotalStaked         *big.Int `json:"totalStaked"`
	TotalUnstaked       *big.Int `json:"totalUnstaked"`
	TotalRewardsClaimed *big.Int `json:"totalRewardsClaimed"`
	TotalPenaltiesPaid  *big.Int `json:"totalPenaltiesPaid"`
	FirstStakeAt        uint64   `json:"firstStakeAt"`
	LastActionAt        uint64   `json:"lastActionAt"`
}

// Open reports whether the position currently holds locked principal.
func (p *UserPosition) Open() bool {
	return p != nil && p.Staked != nil && p.Staked.Sign() > 0
}

// MatureAt returns the unix second the position may close without penalty.
func (p *UserPosition) MatureAt() uint64 {
	if p == nil {
		return 0
	}
	return p.StakeStart + p.StakeDuration
}

func ensurePoolDefaults(p *Pool) {
	if p == nil {
		return
	}
	for _, field := range []**big.Int{
		&p.AllocatedForSale, &p.Sold, &p.CollectedUSDT,
		&p.AllocatedForRewards, &p.RewardsPaid, &p.TotalRewardsAccrued,
		&p.AccRewardPerShare, &p.TotalStaked,
		&p.LifetimeStaked, &p.LifetimeUnstaked, &p.PenaltiesCollected, &p.PeakStaked,
		&p.LiquidityOutECM, &p.LiquidityOwedECM, &p.LiquidityOutUSDT, &p.LiquidityAddedECM,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	if p.Policy.MinPurchase == nil {
		p.Policy.MinPurchase = big.NewInt(0)
	}
	if p.Policy.PurchaseQuantum == nil {
		p.Policy.PurchaseQuantum = big.NewInt(0)
	}
}

func ensurePositionDefaults(pos *UserPosition) {
	if pos == nil {
		return
	}
	for _, field := range []**big.Int{
		&pos.Staked, &pos.RewardDebt, &pos.CarriedPending,
		&pos.TotalStaked, &pos.TotalUnstaked,
		&pos.TotalRewardsClaimed, &pos.TotalPenaltiesPaid,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
}

// durationAllowed checks the requested lock against the pool policy.
func (p *Pool) durationAllowed(duration uint64) bool {
	if p == nil || duration == 0 {
		return false
	}
	if p.Policy.MaxDuration > 0 && duration > p.Policy.MaxDuration {
		return false
	}
	for _, allowed := range p.Policy.AllowedDurations {
		if allowed == duration {
			return true
		}
	}
	return false
}

// RemainingSaleCapacity returns AllocatedForSale - Sold - outstanding
// liquidity debt, floored at zero.
func (p *Pool) RemainingSaleCapacity() *big.Int {
	remaining := new(big.Int).Sub(p.AllocatedForSale, p.Sold)
	remaining.Sub(remaining, p.LiquidityOwedECM)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// remainingRewardAllocation returns AllocatedForRewards - TotalRewardsAccrued,
// floored at zero.
func (p *Pool) remainingRewardAllocation() *big.Int {
	remaining := new(big.Int).Sub(p.AllocatedForRewards, p.TotalRewardsAccrued)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}
