package events

import (
	"math/big"
	"strconv"

	"ecmstaking/core/types"
	"ecmstaking/crypto"
)

const (
	// TypePoolCreated marks the creation of a staking pool.
	TypePoolCreated = "stake.poolCreated"
	// TypeTokensPurchased captures a buy-and-stake purchase leg.
	TypeTokensPurchased = "stake.tokensPurchased"
	// TypeStakeOpened captures a freshly opened position.
	TypeStakeOpened = "stake.opened"
	// TypeStakeToppedUp captures principal added to an open position.
	TypeStakeToppedUp = "stake.toppedUp"
	// TypeStakeClosed captures a mature or early close of a position.
	TypeStakeClosed = "stake.closed"
	// TypeRewardsClaimed is emitted when pending rewards are paid out.
	TypeRewardsClaimed = "stake.rewardsClaimed"
	// TypeRewardsVested is emitted when a reward payout is routed into a
	// vesting grant instead of a direct transfer.
	TypeRewardsVested = "stake.rewardsVested"
	// TypeRewardsAllocated captures an admin reward allocation top-up.
	TypeRewardsAllocated = "stake.rewardsAllocated"
	// TypeScheduleUpdated captures a reward schedule change.
	TypeScheduleUpdated = "stake.scheduleUpdated"
	// TypeLiquidityMoved captures pool funds handed to the liquidity operator.
	TypeLiquidityMoved = "stake.liquidityMoved"
)

// PoolCreated captures the immutable identity of a new pool.
type PoolCreated struct {
	PoolID  string
	Owner   crypto.Address
	Creator crypto.Address
}

// EventType satisfies the Event interface.
func (PoolCreated) EventType() string { return TypePoolCreated }

// Event converts the structured payload into a broadcastable event.
func (e PoolCreated) Event() *types.Event {
	return &types.Event{Type: TypePoolCreated, Attributes: map[string]string{
		"poolId": e.PoolID,
		"owner":  e.Owner.String(),
	}}
}

// TokensPurchased captures the purchase leg of a buy-and-stake.
type TokensPurchased struct {
	PoolID    string
	Buyer     crypto.Address
	SpentUSDT *big.Int
	TokensECM *big.Int
}

// EventType satisfies the Event interface.
func (TokensPurchased) EventType() string { return TypeTokensPurchased }

// Event converts the structured payload into a broadcastable event.
func (e TokensPurchased) Event() *types.Event {
	return &types.Event{Type: TypeTokensPurchased, Attributes: map[string]string{
		"poolId":    e.PoolID,
		"buyer":     e.Buyer.String(),
		"spentUSDT": formatAmount(e.SpentUSDT),
		"tokensECM": formatAmount(e.TokensECM),
	}}
}

// StakeOpened captures a freshly opened position.
type StakeOpened struct {
	PoolID   string
	Staker   crypto.Address
	Amount   *big.Int
	Duration uint64
	StartAt  uint64
}

// EventType satisfies the Event interface.
func (StakeOpened) EventType() string { return TypeStakeOpened }

// Event converts the structured payload into a broadcastable event.
func (e StakeOpened) Event() *types.Event {
	return &types.Event{Type: TypeStakeOpened, Attributes: map[string]string{
		"poolId":   e.PoolID,
		"staker":   e.Staker.String(),
		"amount":   formatAmount(e.Amount),
		"duration": strconv.FormatUint(e.Duration, 10),
		"startAt":  strconv.FormatUint(e.StartAt, 10),
	}}
}

// StakeToppedUp captures principal added to an existing open position.
type StakeToppedUp struct {
	PoolID    string
	Staker    crypto.Address
	Added     *big.Int
	NewStaked *big.Int
}

// EventType satisfies the Event interface.
func (StakeToppedUp) EventType() string { return TypeStakeToppedUp }

// Event converts the structured payload into a broadcastable event.
func (e StakeToppedUp) Event() *types.Event {
	return &types.Event{Type: TypeStakeToppedUp, Attributes: map[string]string{
		"poolId":    e.PoolID,
		"staker":    e.Staker.String(),
		"added":     formatAmount(e.Added),
		"newStaked": formatAmount(e.NewStaked),
	}}
}

// StakeClosed captures a position close, mature or early.
type StakeClosed struct {
	PoolID   string
	Staker   crypto.Address
	Returned *big.Int
	Penalty  *big.Int
	Reward   *big.Int
	Early    bool
}

// EventType satisfies the Event interface.
func (StakeClosed) EventType() string { return TypeStakeClosed }

// Event converts the structured payload into a broadcastable event.
func (e StakeClosed) Event() *types.Event {
	attrs := map[string]string{
		"poolId":   e.PoolID,
		"staker":   e.Staker.String(),
		"returned": formatAmount(e.Returned),
		"reward":   formatAmount(e.Reward),
		"early":    strconv.FormatBool(e.Early),
	}
	if e.Penalty != nil && e.Penalty.Sign() > 0 {
		attrs["penalty"] = formatAmount(e.Penalty)
	}
	return &types.Event{Type: TypeStakeClosed, Attributes: attrs}
}

// RewardsClaimed captures a reward payout without closing the position.
type RewardsClaimed struct {
	PoolID string
	Staker crypto.Address
	Paid   *big.Int
	Vested bool
}

// EventType satisfies the Event interface.
func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsClaimed) Event() *types.Event {
	typ := TypeRewardsClaimed
	if e.Vested {
		typ = TypeRewardsVested
	}
	return &types.Event{Type: typ, Attributes: map[string]string{
		"poolId": e.PoolID,
		"staker": e.Staker.String(),
		"paid":   formatAmount(e.Paid),
	}}
}

// RewardsAllocated captures an admin top-up of the pool reward budget.
type RewardsAllocated struct {
	PoolID    string
	Added     *big.Int
	Allocated *big.Int
}

// EventType satisfies the Event interface.
func (RewardsAllocated) EventType() string { return TypeRewardsAllocated }

// Event converts the structured payload into a broadcastable event.
func (e RewardsAllocated) Event() *types.Event {
	return &types.Event{Type: TypeRewardsAllocated, Attributes: map[string]string{
		"poolId":    e.PoolID,
		"added":     formatAmount(e.Added),
		"allocated": formatAmount(e.Allocated),
	}}
}

// ScheduleUpdated captures a reward schedule change on a pool.
type ScheduleUpdated struct {
	PoolID   string
	Kind     string
	Tranches int
}

// EventType satisfies the Event interface.
func (ScheduleUpdated) EventType() string { return TypeScheduleUpdated }

// Event converts the structured payload into a broadcastable event.
func (e ScheduleUpdated) Event() *types.Event {
	attrs := map[string]string{
		"poolId": e.PoolID,
		"kind":   e.Kind,
	}
	if e.Tranches > 0 {
		attrs["tranches"] = strconv.Itoa(e.Tranches)
	}
	return &types.Event{Type: TypeScheduleUpdated, Attributes: attrs}
}

// LiquidityMoved captures pool funds handed to the liquidity operator.
type LiquidityMoved struct {
	PoolID   string
	Operator crypto.Address
	ECM      *big.Int
	USDT     *big.Int
}

// EventType satisfies the Event interface.
func (LiquidityMoved) EventType() string { return TypeLiquidityMoved }

// Event converts the structured payload into a broadcastable event.
func (e LiquidityMoved) Event() *types.Event {
	return &types.Event{Type: TypeLiquidityMoved, Attributes: map[string]string{
		"poolId":   e.PoolID,
		"operator": e.Operator.String(),
		"ecm":      formatAmount(e.ECM),
		"usdt":     formatAmount(e.USDT),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
