package stake

import (
	"math/big"
	"strings"
	"time"

	"ecmstaking/core/events"
	"ecmstaking/core/types"
	"ecmstaking/crypto"
	nativecommon "ecmstaking/native/common"
)

const moduleName = "staking"

// TokenECM names the staked/reward token in collaborator calls.
const TokenECM = "ECM"

type engineState interface {
	GetPool(poolID string) (*Pool, error)
	PutPool(poolID string, pool *Pool) error
	PoolIDs() ([]string, error)
	GetPosition(poolID string, addr crypto.Address) (*UserPosition, error)
	PutPosition(poolID string, pos *UserPosition) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Quoter prices conversions between the purchase currency and ECM for a
// configured pair.
type Quoter interface {
	QuoteOut(pairID string, amountIn *big.Int) (*big.Int, error)
	QuoteIn(pairID string, amountOut *big.Int) (*big.Int, error)
}

// VestingCreator is the vesting collaborator contract. The engine hands the
// payout amount to the vesting vault before creating the grant.
type VestingCreator interface {
	CreateGrant(beneficiary crypto.Address, amount *big.Int, startTime, duration uint64, token, poolID string) (uint64, error)
}

// ClaimRecorder is the referral collaborator contract; it observes reward
// claims so multi-level commissions can be accrued off the hot path.
type ClaimRecorder interface {
	RecordClaim(poolID string, user crypto.Address, amount *big.Int) error
}

// Engine orchestrates the primary state transitions for the staking module:
// pool accrual, the stake position lifecycle, purchases and the administrative
// surface.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	quoter        Quoter
	vesting       VestingCreator
	vestingVault  crypto.Address
	referrals     ClaimRecorder
	moduleAddress crypto.Address
	owner         crypto.Address
	pauses        nativecommon.PauseView
	nowFn         func() uint64
}

// NewEngine constructs a staking engine bound to the module vault address and
// the administrative owner.
func NewEngine(moduleAddr, owner crypto.Address) *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		moduleAddress: moduleAddr,
		owner:         owner,
		nowFn:         func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetQuoter configures the price-quote collaborator used for purchases.
func (e *Engine) SetQuoter(q Quoter) {
	if e == nil {
		return
	}
	e.quoter = q
}

// SetVesting configures the vesting collaborator and the vault address that
// custodies vested payouts.
func (e *Engine) SetVesting(v VestingCreator, vault crypto.Address) {
	if e == nil {
		return
	}
	e.vesting = v
	e.vestingVault = vault
}

// SetReferrals configures the referral collaborator notified on claims.
func (e *Engine) SetReferrals(r ClaimRecorder) {
	if e == nil {
		return
	}
	e.referrals = r
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Operations read
// time exactly once at entry, so a deterministic clock makes every transition
// replayable.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// Owner returns the current administrative owner.
func (e *Engine) Owner() crypto.Address {
	return e.owner
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || e.emitter == nil || ev == nil {
		return
	}
	e.emitter.Emit(ev)
}

// --- accrual core ---

// updatePool brings the pool accumulator up to date at `now`. It is a no-op
// when time has not advanced or the pool is inactive, which also makes it
// idempotent for repeated calls at the same timestamp.
func updatePool(pool *Pool, now uint64) {
	if pool == nil || !pool.Policy.Active || now <= pool.LastUpdateTime {
		return
	}
	emitted, cursor := pool.Schedule.Emission(pool.LastUpdateTime, now)
	emitted = minBigInt(emitted, pool.remainingRewardAllocation())
	if pool.TotalStaked.Sign() > 0 && emitted.Sign() > 0 {
		perShare := mulDiv(emitted, precision, pool.TotalStaked)
		pool.AccRewardPerShare = new(big.Int).Add(pool.AccRewardPerShare, perShare)
		pool.TotalRewardsAccrued = new(big.Int).Add(pool.TotalRewardsAccrued, emitted)
	}
	// With no stakers the interval's emission is lost, not banked: the cursor
	// and clock still advance.
	pool.Schedule.Cursor = cursor
	pool.LastUpdateTime = now
}

// projectedAcc computes the accumulator as if updatePool ran at `now`,
// without mutating the pool.
func projectedAcc(pool *Pool, now uint64) *big.Int {
	acc := copyBigInt(pool.AccRewardPerShare)
	if !pool.Policy.Active || now <= pool.LastUpdateTime || pool.TotalStaked.Sign() == 0 {
		return acc
	}
	emitted, _ := pool.Schedule.Emission(pool.LastUpdateTime, now)
	emitted = minBigInt(emitted, pool.remainingRewardAllocation())
	if emitted.Sign() > 0 {
		acc.Add(acc, mulDiv(emitted, precision, pool.TotalStaked))
	}
	return acc
}

func pendingOf(pool *Pool, pos *UserPosition, now uint64) *big.Int {
	if pos == nil {
		return big.NewInt(0)
	}
	if !pos.Open() {
		return copyBigInt(pos.CarriedPending)
	}
	acc := projectedAcc(pool, now)
	growth := new(big.Int).Sub(acc, pos.RewardDebt)
	pending := mulDiv(pos.Staked, growth, precision)
	pending.Add(pending, pos.CarriedPending)
	return pending
}

// --- reads ---

// GetPool loads a pool by identifier.
func (e *Engine) GetPool(poolID string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool(strings.TrimSpace(poolID))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	ensurePoolDefaults(pool)
	return pool, nil
}

// GetPosition loads the user's position within a pool, defaulting to an empty
// record when none exists yet.
func (e *Engine) GetPosition(poolID string, addr crypto.Address) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetPosition(strings.TrimSpace(poolID), addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &UserPosition{Address: addr}
	}
	ensurePositionDefaults(pos)
	return pos, nil
}

// PendingReward projects the user's claimable reward at the engine clock
// without mutating any state.
func (e *Engine) PendingReward(poolID string, addr crypto.Address) (*big.Int, error) {
	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	pos, err := e.GetPosition(poolID, addr)
	if err != nil {
		return nil, err
	}
	return pendingOf(pool, pos, e.now()), nil
}

// --- user operations ---

// Stake locks ECM from the staker's balance into the pool. A fresh position
// requires an allowed duration; an existing open position is topped up and
// keeps its original start and duration.
func (e *Engine) Stake(staker crypto.Address, poolID string, amount *big.Int, duration uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	pool, err := e.GetPool(poolID)
	if err != nil {
		return err
	}
	if !pool.Policy.Active {
		return ErrPoolInactive
	}
	now := e.now()
	updatePool(pool, now)

	pos, err := e.GetPosition(pool.ID, staker)
	if err != nil {
		return err
	}

	stakerAcc, err := e.loadAccount(staker)
	if err != nil {
		return err
	}
	if stakerAcc.BalanceECM.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	if err := e.openOrTopUp(pool, pos, amount, duration, now); err != nil {
		return err
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	stakerAcc.BalanceECM = new(big.Int).Sub(stakerAcc.BalanceECM, amount)
	moduleAcc.BalanceECM = new(big.Int).Add(moduleAcc.BalanceECM, amount)

	if err := e.state.PutAccount(staker, stakerAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(pool.ID, pos); err != nil {
		return err
	}
	return e.state.PutPool(pool.ID, pool)
}

// BuyAndStake spends up to budgetUSDT at the AMM-quoted price, quantises the
// purchased amount down, and locks it immediately. The purchased token amount
// is returned.
func (e *Engine) BuyAndStake(buyer crypto.Address, poolID string, budgetUSDT *big.Int, duration uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.quoter == nil {
		return nil, errNilQuote
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if budgetUSDT == nil || budgetUSDT.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Policy.Active {
		return nil, ErrPoolInactive
	}

	quoted, err := e.quoter.QuoteOut(pool.PairID, budgetUSDT)
	if err != nil {
		return nil, err
	}
	tokens := floorToQuantum(quoted, pool.Policy.PurchaseQuantum)
	if tokens.Sign() <= 0 || tokens.Cmp(pool.Policy.MinPurchase) < 0 {
		return nil, ErrBelowMinimum
	}
	if tokens.Cmp(pool.RemainingSaleCapacity()) > 0 {
		return nil, ErrExceedsSaleAllocation
	}

	if err := e.settlePurchase(pool, buyer, budgetUSDT, tokens, duration); err != nil {
		return nil, err
	}
	return tokens, nil
}

// BuyAndStakeExact purchases an exact, quantum-aligned token amount, rejecting
// the trade when the quoted spend exceeds maxSpendUSDT. The spent amount is
// returned.
func (e *Engine) BuyAndStakeExact(buyer crypto.Address, poolID string, tokensECM, maxSpendUSDT *big.Int, duration uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.quoter == nil {
		return nil, errNilQuote
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if tokensECM == nil || tokensECM.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.Policy.Active {
		return nil, ErrPoolInactive
	}
	if !isQuantumAligned(tokensECM, pool.Policy.PurchaseQuantum) {
		return nil, ErrAmountQuantum
	}
	if tokensECM.Cmp(pool.Policy.MinPurchase) < 0 {
		return nil, ErrBelowMinimum
	}
	if tokensECM.Cmp(pool.RemainingSaleCapacity()) > 0 {
		return nil, ErrExceedsSaleAllocation
	}

	spend, err := e.quoter.QuoteIn(pool.PairID, tokensECM)
	if err != nil {
		return nil, err
	}
	if maxSpendUSDT != nil && maxSpendUSDT.Sign() > 0 && spend.Cmp(maxSpendUSDT) > 0 {
		return nil, ErrSlippageExceeded
	}

	if err := e.settlePurchase(pool, buyer, spend, tokensECM, duration); err != nil {
		return nil, err
	}
	return spend, nil
}

// settlePurchase commits the purchase leg (USDT in, sold counter up) and opens
// or tops up the buyer's position with the purchased tokens. The tokens come
// straight from the pool's sale inventory, so only USDT moves between
// accounts.
func (e *Engine) settlePurchase(pool *Pool, buyer crypto.Address, spendUSDT, tokens *big.Int, duration uint64) error {
	now := e.now()
	updatePool(pool, now)

	pos, err := e.GetPosition(pool.ID, buyer)
	if err != nil {
		return err
	}

	buyerAcc, err := e.loadAccount(buyer)
	if err != nil {
		return err
	}
	if buyerAcc.BalanceUSDT.Cmp(spendUSDT) < 0 {
		return ErrInsufficientBalance
	}

	if err := e.openOrTopUp(pool, pos, tokens, duration, now); err != nil {
		return err
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	buyerAcc.BalanceUSDT = new(big.Int).Sub(buyerAcc.BalanceUSDT, spendUSDT)
	moduleAcc.BalanceUSDT = new(big.Int).Add(moduleAcc.BalanceUSDT, spendUSDT)

	pool.Sold = new(big.Int).Add(pool.Sold, tokens)
	pool.CollectedUSDT = new(big.Int).Add(pool.CollectedUSDT, spendUSDT)

	if err := e.state.PutAccount(buyer, buyerAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutPosition(pool.ID, pos); err != nil {
		return err
	}
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return err
	}

	e.emit(events.TokensPurchased{PoolID: pool.ID, Buyer: buyer, SpentUSDT: copyBigInt(spendUSDT), TokensECM: copyBigInt(tokens)})
	return nil
}

// openOrTopUp applies the position transition for freshly staked tokens. The
// pool accumulator must already be updated to `now`.
func (e *Engine) openOrTopUp(pool *Pool, pos *UserPosition, amount *big.Int, duration uint64, now uint64) error {
	if pos.Open() {
		if duration != 0 && duration != pos.StakeDuration {
			return ErrDurationMismatch
		}
		if !isQuantumAligned(amount, pool.Policy.PurchaseQuantum) {
			return ErrAmountQuantum
		}
		// Carry the pending accrued on the old principal forward before the
		// debt snapshot resets; the maturity clock is untouched.
		growth := new(big.Int).Sub(pool.AccRewardPerShare, pos.RewardDebt)
		accrued := mulDiv(pos.Staked, growth, precision)
		pos.CarriedPending = new(big.Int).Add(pos.CarriedPending, accrued)
		pos.Staked = new(big.Int).Add(pos.Staked, amount)
		pos.RewardDebt = copyBigInt(pool.AccRewardPerShare)
		pos.LastActionAt = now

		e.emit(events.StakeToppedUp{PoolID: pool.ID, Staker: pos.Address, Added: copyBigInt(amount), NewStaked: copyBigInt(pos.Staked)})
	} else {
		if !isQuantumAligned(amount, pool.Policy.PurchaseQuantum) {
			return ErrAmountQuantum
		}
		if amount.Cmp(pool.Policy.MinPurchase) < 0 {
			return ErrBelowMinimum
		}
		if !pool.durationAllowed(duration) {
			return ErrDurationNotAllowed
		}
		pos.Staked = copyBigInt(amount)
		pos.StakeStart = now
		pos.StakeDuration = duration
		pos.RewardDebt = copyBigInt(pool.AccRewardPerShare)
		pos.LastActionAt = now
		if pos.FirstStakeAt == 0 {
			pos.FirstStakeAt = now
			pool.TotalUniqueStakers++
		}

		e.emit(events.StakeOpened{PoolID: pool.ID, Staker: pos.Address, Amount: copyBigInt(amount), Duration: duration, StartAt: now})
	}

	pos.TotalStaked = new(big.Int).Add(pos.TotalStaked, amount)
	pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	pool.LifetimeStaked = new(big.Int).Add(pool.LifetimeStaked, amount)
	if pool.TotalStaked.Cmp(pool.PeakStaked) > 0 {
		pool.PeakStaked = copyBigInt(pool.TotalStaked)
	}
	return nil
}

// Claim pays out the position's pending reward without closing it. A zero
// pending balance succeeds silently.
func (e *Engine) Claim(staker crypto.Address, poolID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	// Claims stay available on deactivated pools; deactivation only gates new
	// stake inflow and stops further accrual.
	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	updatePool(pool, now)

	pos, err := e.GetPosition(pool.ID, staker)
	if err != nil {
		return nil, err
	}
	if !pos.Open() {
		return nil, ErrNoOpenPosition
	}

	growth := new(big.Int).Sub(pool.AccRewardPerShare, pos.RewardDebt)
	pending := mulDiv(pos.Staked, growth, precision)
	pending.Add(pending, pos.CarriedPending)
	if pending.Sign() == 0 {
		// Nothing accrued yet; not an error.
		if err := e.state.PutPool(pool.ID, pool); err != nil {
			return nil, err
		}
		return big.NewInt(0), nil
	}

	pos.RewardDebt = copyBigInt(pool.AccRewardPerShare)
	pos.CarriedPending = big.NewInt(0)
	pos.LastActionAt = now

	if err := e.payReward(pool, pos, staker, pending, now); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(pool.ID, pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return nil, err
	}

	return pending, e.afterPayout(pool, staker, pending, now)
}

// Unstake closes the position. A mature close returns the full principal; an
// early close slashes it by the pool's penalty and routes the slash to the
// penalty receiver. Pending rewards are paid either way and are never
// penalised.
func (e *Engine) Unstake(staker crypto.Address, poolID string) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}

	pool, err := e.GetPool(poolID)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()
	updatePool(pool, now)

	pos, err := e.GetPosition(pool.ID, staker)
	if err != nil {
		return nil, nil, err
	}
	if !pos.Open() {
		return nil, nil, ErrNoOpenPosition
	}

	principal := copyBigInt(pos.Staked)
	growth := new(big.Int).Sub(pool.AccRewardPerShare, pos.RewardDebt)
	pending := mulDiv(pos.Staked, growth, precision)
	pending.Add(pending, pos.CarriedPending)

	early := now < pos.MatureAt()
	returned := principal
	penalty := big.NewInt(0)
	if early {
		returned, penalty = SplitPenalty(principal, pool.Policy.PenaltyBps)
	}

	// Close the position before any balance moves.
	pos.Staked = big.NewInt(0)
	pos.StakeStart = 0
	pos.StakeDuration = 0
	pos.RewardDebt = big.NewInt(0)
	pos.CarriedPending = big.NewInt(0)
	pos.TotalUnstaked = new(big.Int).Add(pos.TotalUnstaked, principal)
	pos.TotalPenaltiesPaid = new(big.Int).Add(pos.TotalPenaltiesPaid, penalty)
	pos.LastActionAt = now

	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, principal)
	pool.LifetimeUnstaked = new(big.Int).Add(pool.LifetimeUnstaked, principal)
	pool.PenaltiesCollected = new(big.Int).Add(pool.PenaltiesCollected, penalty)

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, nil, err
	}
	if moduleAcc.BalanceECM.Cmp(principal) < 0 {
		return nil, nil, ErrInsufficientBalance
	}
	stakerAcc, err := e.loadAccount(staker)
	if err != nil {
		return nil, nil, err
	}

	moduleAcc.BalanceECM = new(big.Int).Sub(moduleAcc.BalanceECM, principal)
	stakerAcc.BalanceECM = new(big.Int).Add(stakerAcc.BalanceECM, returned)

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutAccount(staker, stakerAcc); err != nil {
		return nil, nil, err
	}
	if penalty.Sign() > 0 {
		receiverAcc, err := e.loadAccount(pool.Policy.PenaltyReceiver)
		if err != nil {
			return nil, nil, err
		}
		receiverAcc.BalanceECM = new(big.Int).Add(receiverAcc.BalanceECM, penalty)
		if err := e.state.PutAccount(pool.Policy.PenaltyReceiver, receiverAcc); err != nil {
			return nil, nil, err
		}
	}

	if pending.Sign() > 0 {
		if err := e.payReward(pool, pos, staker, pending, now); err != nil {
			return nil, nil, err
		}
	}

	if err := e.state.PutPosition(pool.ID, pos); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPool(pool.ID, pool); err != nil {
		return nil, nil, err
	}

	e.emit(events.StakeClosed{
		PoolID:   pool.ID,
		Staker:   staker,
		Returned: copyBigInt(returned),
		Penalty:  copyBigInt(penalty),
		Reward:   copyBigInt(pending),
		Early:    early,
	})

	if pending.Sign() > 0 {
		if err := e.afterPayout(pool, staker, pending, now); err != nil {
			return nil, nil, err
		}
	}
	return returned, pending, nil
}

// payReward moves the reward amount out of the module vault: either straight
// to the staker or into the vesting vault when the pool vests payouts. The
// position's lifetime counters and the pool's paid counter advance here.
func (e *Engine) payReward(pool *Pool, pos *UserPosition, staker crypto.Address, amount *big.Int, now uint64) error {
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return err
	}
	if moduleAcc.BalanceECM.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	moduleAcc.BalanceECM = new(big.Int).Sub(moduleAcc.BalanceECM, amount)

	vested := pool.Policy.VestRewards && e.vesting != nil
	var recipient crypto.Address
	if vested {
		recipient = e.vestingVault
	} else {
		recipient = staker
	}
	recipientAcc, err := e.loadAccount(recipient)
	if err != nil {
		return err
	}
	recipientAcc.BalanceECM = new(big.Int).Add(recipientAcc.BalanceECM, amount)

	if err := e.state.PutAccount(e.moduleAddress, moduleAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(recipient, recipientAcc); err != nil {
		return err
	}

	pool.RewardsPaid = new(big.Int).Add(pool.RewardsPaid, amount)
	pos.TotalRewardsClaimed = new(big.Int).Add(pos.TotalRewardsClaimed, amount)

	e.emit(events.RewardsClaimed{PoolID: pool.ID, Staker: staker, Paid: copyBigInt(amount), Vested: vested})
	return nil
}

// afterPayout runs the collaborator calls that must only happen once all
// internal state is final: vesting grant creation and referral recording.
func (e *Engine) afterPayout(pool *Pool, staker crypto.Address, amount *big.Int, now uint64) error {
	if pool.Policy.VestRewards && e.vesting != nil {
		if _, err := e.vesting.CreateGrant(staker, copyBigInt(amount), now, pool.Policy.VestingDuration, TokenECM, pool.ID); err != nil {
			return err
		}
	}
	if e.referrals != nil {
		if err := e.referrals.RecordClaim(pool.ID, staker, copyBigInt(amount)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureBalances()
	return acc, nil
}
