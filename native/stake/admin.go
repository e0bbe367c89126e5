package stake

import (
	"bytes"
	"math/big"
	"strings"

	"ecmstaking/core/events"
	"ecmstaking/crypto"
)

func sameAddress(a, b crypto.Address) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}

func (e *Engine) requireOwner(caller crypto.Address) error {
	if !sameAddress(caller, e.owner) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) loadPoolAsOwner(caller crypto.Address, poolID string) (*Pool, error) {
	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(caller, pool.Owner) {
		return nil, ErrUnauthorized
	}
	return pool, nil
}

// CreatePool registers a new staking market with immutable identity fields and
// zeroed accounting. Only the engine owner may create pools; the pool's own
// owner starts as the creator.
func (e *Engine) CreatePool(caller crypto.Address, poolID, pairID string, policy PoolPolicy) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	poolID = strings.TrimSpace(poolID)
	if poolID == "" {
		return ErrPoolNotFound
	}
	if existing, err := e.state.GetPool(poolID); err != nil {
		return err
	} else if existing != nil {
		return ErrPoolExists
	}
	if err := validatePolicy(&policy); err != nil {
		return err
	}

	pool := &Pool{
		ID:             poolID,
		Owner:          caller,
		PairID:         strings.TrimSpace(pairID),
		Policy:         policy,
		LastUpdateTime: e.now(),
	}
	ensurePoolDefaults(pool)
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.emit(events.PoolCreated{PoolID: poolID, Owner: caller, Creator: caller})
	return nil
}

func validatePolicy(p *PoolPolicy) error {
	if p.PenaltyBps > 10_000 {
		return ErrInvalidAmount
	}
	if p.PenaltyBps > 0 && p.PenaltyReceiver.IsZero() {
		return ErrInvalidAmount
	}
	if p.VestRewards && p.VestingDuration == 0 {
		return ErrInvalidAmount
	}
	for _, d := range p.AllowedDurations {
		if d == 0 || (p.MaxDuration > 0 && d > p.MaxDuration) {
			return ErrDurationNotAllowed
		}
	}
	if p.MinPurchase != nil && p.MinPurchase.Sign() < 0 {
		return ErrInvalidAmount
	}
	if p.PurchaseQuantum != nil && p.PurchaseQuantum.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// AllocateForSale raises the pool's sale budget. The module vault must be
// funded with the matching ECM inventory operationally.
func (e *Engine) AllocateForSale(caller crypto.Address, poolID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.AllocatedForSale = new(big.Int).Add(pool.AllocatedForSale, amount)
	return e.state.PutPool(pool.ID, pool)
}

// AllocateForRewards raises the pool's reward budget. The pool accumulator is
// brought up to date first so the new allocation only affects future
// emission.
func (e *Engine) AllocateForRewards(caller crypto.Address, poolID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	updatePool(pool, e.now())
	pool.AllocatedForRewards = new(big.Int).Add(pool.AllocatedForRewards, amount)
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(events.RewardsAllocated{PoolID: pool.ID, Added: copyBigInt(amount), Allocated: copyBigInt(pool.AllocatedForRewards)})
	return nil
}

// SetLinearRate switches the pool to the linear schedule, deriving the rate as
// remaining allocation spread over the maximum stake duration. Fails when the
// remaining allocation is zero or the division truncates to zero.
func (e *Engine) SetLinearRate(caller crypto.Address, poolID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	updatePool(pool, e.now())

	remaining := pool.remainingRewardAllocation()
	if remaining.Sign() == 0 {
		return ErrNoRemainingRewards
	}
	if pool.Policy.MaxDuration == 0 {
		return ErrDurationNotAllowed
	}
	rate := new(big.Int).Quo(remaining, new(big.Int).SetUint64(pool.Policy.MaxDuration))
	if rate.Sign() == 0 {
		return ErrRateRoundsToZero
	}
	pool.Schedule = RewardSchedule{Kind: ScheduleLinear, RatePerSecond: rate}
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(events.ScheduleUpdated{PoolID: pool.ID, Kind: ScheduleLinear.String()})
	return nil
}

// SetTrancheSchedule installs a monthly or weekly tranche schedule anchored at
// `anchor` (the engine clock when zero).
func (e *Engine) SetTrancheSchedule(caller crypto.Address, poolID string, kind ScheduleKind, tranches []*big.Int, anchor uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if kind != ScheduleMonthly && kind != ScheduleWeekly {
		return ErrEmptySchedule
	}
	if len(tranches) == 0 {
		return ErrEmptySchedule
	}
	cloned := make([]*big.Int, len(tranches))
	for i, t := range tranches {
		if t == nil || t.Sign() < 0 {
			return ErrInvalidAmount
		}
		cloned[i] = new(big.Int).Set(t)
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	now := e.now()
	updatePool(pool, now)
	if anchor == 0 {
		anchor = now
	}
	pool.Schedule = RewardSchedule{Kind: kind, Tranches: cloned, AnchorTime: anchor}
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}
	e.emit(events.ScheduleUpdated{PoolID: pool.ID, Kind: kind.String(), Tranches: len(cloned)})
	return nil
}

// SetStakeDurations replaces the allowed lock durations and the maximum.
func (e *Engine) SetStakeDurations(caller crypto.Address, poolID string, durations []uint64, maxDuration uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if len(durations) == 0 || maxDuration == 0 {
		return ErrDurationNotAllowed
	}
	for _, d := range durations {
		if d == 0 || d > maxDuration {
			return ErrDurationNotAllowed
		}
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.Policy.AllowedDurations = append([]uint64(nil), durations...)
	pool.Policy.MaxDuration = maxDuration
	return e.state.PutPool(pool.ID, pool)
}

// SetPenalty updates the early-exit slash applied to all currently open
// positions from this point forward.
func (e *Engine) SetPenalty(caller crypto.Address, poolID string, penaltyBps uint64, receiver crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if penaltyBps > 10_000 {
		return ErrInvalidAmount
	}
	if penaltyBps > 0 && receiver.IsZero() {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.Policy.PenaltyBps = penaltyBps
	pool.Policy.PenaltyReceiver = receiver
	return e.state.PutPool(pool.ID, pool)
}

// SetVestingPolicy toggles reward vesting and its linear unlock duration.
func (e *Engine) SetVestingPolicy(caller crypto.Address, poolID string, vest bool, duration uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if vest && duration == 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.Policy.VestRewards = vest
	pool.Policy.VestingDuration = duration
	return e.state.PutPool(pool.ID, pool)
}

// SetPurchaseLimits updates the minimum purchase and the purchase quantum.
func (e *Engine) SetPurchaseLimits(caller crypto.Address, poolID string, minPurchase, quantum *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if minPurchase != nil && minPurchase.Sign() < 0 {
		return ErrInvalidAmount
	}
	if quantum != nil && quantum.Sign() < 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.Policy.MinPurchase = copyBigInt(minPurchase)
	pool.Policy.PurchaseQuantum = copyBigInt(quantum)
	return e.state.PutPool(pool.ID, pool)
}

// SetActive toggles the pool. Reactivation resets the accrual clock so the
// inactive gap never emits retroactively.
func (e *Engine) SetActive(caller crypto.Address, poolID string, active bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	now := e.now()
	if !pool.Policy.Active && active {
		pool.LastUpdateTime = now
	}
	if pool.Policy.Active && !active {
		// Settle accrual through the deactivation instant.
		updatePool(pool, now)
	}
	pool.Policy.Active = active
	return e.state.PutPool(pool.ID, pool)
}

// TransferOwnership hands the engine-level admin role to a new address.
func (e *Engine) TransferOwnership(caller, newOwner crypto.Address) error {
	if e == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if newOwner.IsZero() {
		return ErrInvalidAmount
	}
	e.owner = newOwner
	return nil
}

// TransferPoolOwnership hands a single pool's admin role to a new address.
func (e *Engine) TransferPoolOwnership(caller crypto.Address, poolID string, newOwner crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if newOwner.IsZero() {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.Owner = newOwner
	return e.state.PutPool(pool.ID, pool)
}

// MoveLiquidity hands collected USDT and unsold ECM inventory to the external
// liquidity operator. Moved ECM stays owed to the pool's accounting until
// refilled.
func (e *Engine) MoveLiquidity(caller crypto.Address, poolID string, operator crypto.Address, ecmAmount, usdtAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if operator.IsZero() {
		return ErrInvalidAmount
	}
	ecmAmount = copyBigInt(ecmAmount)
	usdtAmount = copyBigInt(usdtAmount)
	if ecmAmount.Sign() == 0 && usdtAmount.Sign() == 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}

	collectedFree := new(big.Int).Sub(pool.CollectedUSDT, pool.LiquidityOutUSDT)
	if usdtAmount.Cmp(collectedFree) > 0 {
		return ErrCapacityExceeded
	}
	if ecmAmount.Cmp(pool.RemainingSaleCapacity()) > 0 {
		return ErrCapacityExceeded
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceECM.Cmp(ecmAmount) < 0 || moduleAcc.BalanceUSDT.Cmp(usdtAmount) < 0 {
		return ErrInsufficientBalance
	}
	operatorAcc, err := e.loadAccount(operator)
	if err != nil {
		return err
	}

	moduleAcc.BalanceECM = new(big.Int).Sub(moduleAcc.BalanceECM, ecmAmount)
	moduleAcc.BalanceUSDT = new(big.Int).Sub(moduleAcc.BalanceUSDT, usdtAmount)
	operatorAcc.BalanceECM = new(big.Int).Add(operatorAcc.BalanceECM, ecmAmount)
	operatorAcc.BalanceUSDT = new(big.Int).Add(operatorAcc.BalanceUSDT, usdtAmount)

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(operator, operatorAcc); err != nil {
		return err
	}

	pool.LiquidityOutECM = new(big.Int).Add(pool.LiquidityOutECM, ecmAmount)
	pool.LiquidityOwedECM = new(big.Int).Add(pool.LiquidityOwedECM, ecmAmount)
	pool.LiquidityOutUSDT = new(big.Int).Add(pool.LiquidityOutUSDT, usdtAmount)
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}

	e.emit(events.LiquidityMoved{PoolID: pool.ID, Operator: operator, ECM: ecmAmount, USDT: usdtAmount})
	return nil
}

// ReportLiquidityAdded records ECM the operator placed into external
// liquidity. Pure bookkeeping; no balances move.
func (e *Engine) ReportLiquidityAdded(caller crypto.Address, poolID string, ecmAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ecmAmount == nil || ecmAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.loadPoolAsOwner(caller, poolID)
	if err != nil {
		return err
	}
	pool.LiquidityAddedECM = new(big.Int).Add(pool.LiquidityAddedECM, ecmAmount)
	return e.state.PutPool(pool.ID, pool)
}

// RefillOwed returns ECM from the caller to the module vault, reducing the
// pool's outstanding liquidity debt. Refilling beyond the owed amount is a
// capacity error.
func (e *Engine) RefillOwed(caller crypto.Address, poolID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.GetPool(poolID)
	if err != nil {
		return err
	}
	if amount.Cmp(pool.LiquidityOwedECM) > 0 {
		return ErrCapacityExceeded
	}

	callerAcc, err := e.loadAccount(caller)
	if err != nil {
		return err
	}
	if callerAcc.BalanceECM.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}

	callerAcc.BalanceECM = new(big.Int).Sub(callerAcc.BalanceECM, amount)
	moduleAcc.BalanceECM = new(big.Int).Add(moduleAcc.BalanceECM, amount)

	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}

	pool.LiquidityOwedECM = new(big.Int).Sub(pool.LiquidityOwedECM, amount)
	return e.state.PutPool(pool.ID, pool)
}

// EmergencyRecover moves uncustodied surplus out of the module vault. The
// surplus never includes principal backing open positions, unpaid reward
// allocation, unsold sale inventory or collected proceeds still booked to a
// pool, so stuck third-party transfers are the only thing recoverable.
func (e *Engine) EmergencyRecover(caller crypto.Address, token string, amount *big.Int, to crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to.IsZero() {
		return ErrInvalidAmount
	}

	obligations, err := e.moduleObligations(token)
	if err != nil {
		return err
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	var balance *big.Int
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case TokenECM:
		balance = moduleAcc.BalanceECM
	case "USDT":
		balance = moduleAcc.BalanceUSDT
	default:
		return ErrInvalidAmount
	}

	surplus := new(big.Int).Sub(balance, obligations)
	if surplus.Sign() < 0 {
		surplus = big.NewInt(0)
	}
	if amount.Cmp(surplus) > 0 {
		return ErrRecoverySurplus
	}

	toAcc, err := e.loadAccount(to)
	if err != nil {
		return err
	}
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case TokenECM:
		moduleAcc.BalanceECM = new(big.Int).Sub(moduleAcc.BalanceECM, amount)
		toAcc.BalanceECM = new(big.Int).Add(toAcc.BalanceECM, amount)
	case "USDT":
		moduleAcc.BalanceUSDT = new(big.Int).Sub(moduleAcc.BalanceUSDT, amount)
		toAcc.BalanceUSDT = new(big.Int).Add(toAcc.BalanceUSDT, amount)
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// moduleObligations sums what the vault owes across every pool for the given
// token.
func (e *Engine) moduleObligations(token string) (*big.Int, error) {
	ids, err := e.state.PoolIDs()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, id := range ids {
		pool, err := e.GetPool(id)
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(strings.TrimSpace(token)) {
		case TokenECM:
			total.Add(total, pool.TotalStaked)
			unpaidRewards := new(big.Int).Sub(pool.AllocatedForRewards, pool.RewardsPaid)
			if unpaidRewards.Sign() > 0 {
				total.Add(total, unpaidRewards)
			}
			unsold := new(big.Int).Sub(pool.AllocatedForSale, pool.Sold)
			unsold.Sub(unsold, pool.LiquidityOwedECM)
			if unsold.Sign() > 0 {
				total.Add(total, unsold)
			}
		case "USDT":
			collected := new(big.Int).Sub(pool.CollectedUSDT, pool.LiquidityOutUSDT)
			if collected.Sign() > 0 {
				total.Add(total, collected)
			}
		default:
			return nil, ErrInvalidAmount
		}
	}
	return total, nil
}
