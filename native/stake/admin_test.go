package stake

import (
	"errors"
	"math/big"
	"testing"

	"ecmstaking/crypto"
)

func TestCreatePoolGuards(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.CreatePool(aliceAddr, testPoolID, "ecm-usdt", defaultPolicy()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	f.createPool(defaultPolicy())
	if err := f.engine.CreatePool(ownerAddr, testPoolID, "ecm-usdt", defaultPolicy()); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("expected ErrPoolExists, got %v", err)
	}

	bad := defaultPolicy()
	bad.PenaltyBps = 10_001
	if err := f.engine.CreatePool(ownerAddr, "other", "ecm-usdt", bad); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for bps over 10000, got %v", err)
	}

	bad = defaultPolicy()
	bad.PenaltyReceiver = crypto.Address{}
	if err := f.engine.CreatePool(ownerAddr, "other", "ecm-usdt", bad); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for missing receiver, got %v", err)
	}
}

func TestSetLinearRateDerivation(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.SetLinearRate(ownerAddr, testPoolID); !errors.Is(err, ErrNoRemainingRewards) {
		t.Fatalf("expected ErrNoRemainingRewards, got %v", err)
	}

	// 100 over a 5000-second MaxDuration truncates to zero.
	if err := f.engine.AllocateForRewards(ownerAddr, testPoolID, big.NewInt(100)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := f.engine.SetLinearRate(ownerAddr, testPoolID); !errors.Is(err, ErrRateRoundsToZero) {
		t.Fatalf("expected ErrRateRoundsToZero, got %v", err)
	}

	if err := f.engine.AllocateForRewards(ownerAddr, testPoolID, big.NewInt(49_900)); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := f.engine.SetLinearRate(ownerAddr, testPoolID); err != nil {
		t.Fatalf("set linear rate: %v", err)
	}

	schedule := f.pool().Schedule
	if schedule.Kind != ScheduleLinear {
		t.Fatalf("expected linear schedule, got %s", schedule.Kind)
	}
	if schedule.RatePerSecond.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected rate 10, got %s", schedule.RatePerSecond)
	}
}

func TestSetTrancheScheduleValidation(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.SetTrancheSchedule(ownerAddr, testPoolID, ScheduleMonthly, nil, 0); !errors.Is(err, ErrEmptySchedule) {
		t.Fatalf("expected ErrEmptySchedule, got %v", err)
	}
	if err := f.engine.SetTrancheSchedule(ownerAddr, testPoolID, ScheduleLinear, []*big.Int{big.NewInt(1)}, 0); !errors.Is(err, ErrEmptySchedule) {
		t.Fatalf("expected ErrEmptySchedule for non-tranche kind, got %v", err)
	}
	if err := f.engine.SetTrancheSchedule(ownerAddr, testPoolID, ScheduleWeekly, []*big.Int{big.NewInt(-1)}, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative tranche, got %v", err)
	}

	tranches := []*big.Int{big.NewInt(1000), big.NewInt(2000)}
	if err := f.engine.SetTrancheSchedule(ownerAddr, testPoolID, ScheduleWeekly, tranches, 123); err != nil {
		t.Fatalf("set tranche schedule: %v", err)
	}

	schedule := f.pool().Schedule
	if schedule.Kind != ScheduleWeekly || schedule.AnchorTime != 123 {
		t.Fatalf("unexpected schedule %+v", schedule)
	}
	if len(schedule.Tranches) != 2 || schedule.Tranches[1].Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("tranches not persisted: %+v", schedule.Tranches)
	}

	// Anchor zero defaults to the engine clock.
	if err := f.engine.SetTrancheSchedule(ownerAddr, testPoolID, ScheduleMonthly, tranches, 0); err != nil {
		t.Fatalf("set tranche schedule: %v", err)
	}
	if anchor := f.pool().Schedule.AnchorTime; anchor != f.now {
		t.Fatalf("expected anchor %d, got %d", f.now, anchor)
	}
}

func TestSetStakeDurations(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.SetStakeDurations(ownerAddr, testPoolID, nil, 100); !errors.Is(err, ErrDurationNotAllowed) {
		t.Fatalf("expected ErrDurationNotAllowed for empty set, got %v", err)
	}
	if err := f.engine.SetStakeDurations(ownerAddr, testPoolID, []uint64{100, 200}, 150); !errors.Is(err, ErrDurationNotAllowed) {
		t.Fatalf("expected ErrDurationNotAllowed for duration over max, got %v", err)
	}

	if err := f.engine.SetStakeDurations(ownerAddr, testPoolID, []uint64{100, 200}, 200); err != nil {
		t.Fatalf("set durations: %v", err)
	}
	policy := f.pool().Policy
	if policy.MaxDuration != 200 || len(policy.AllowedDurations) != 2 {
		t.Fatalf("policy not updated: %+v", policy)
	}
}

func TestSetPenaltyValidation(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.SetPenalty(ownerAddr, testPoolID, 10_001, treasuryAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.SetPenalty(ownerAddr, testPoolID, 100, crypto.Address{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero receiver, got %v", err)
	}

	if err := f.engine.SetPenalty(ownerAddr, testPoolID, 0, crypto.Address{}); err != nil {
		t.Fatalf("clearing the penalty needs no receiver: %v", err)
	}
	if got := f.pool().Policy.PenaltyBps; got != 0 {
		t.Fatalf("expected bps 0, got %d", got)
	}
}

func TestSetActiveSettlesAndResetsClock(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)
	f.mustStake(aliceAddr, 1000, 1000)

	f.advance(100)
	if err := f.engine.SetActive(ownerAddr, testPoolID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if accrued := f.pool().TotalRewardsAccrued; accrued.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("deactivation must settle accrual, got %s", accrued)
	}

	// The inactive gap never emits, even after reactivation.
	f.advance(500)
	if err := f.engine.SetActive(ownerAddr, testPoolID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got := f.pool().LastUpdateTime; got != f.now {
		t.Fatalf("reactivation must reset the clock to %d, got %d", f.now, got)
	}

	f.advance(50)
	if pending := f.pending(aliceAddr); pending.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected pending 1500 (1000 settled + 500 fresh), got %s", pending)
	}
}

func TestOwnershipTransfers(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.TransferOwnership(aliceAddr, bobAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.TransferOwnership(ownerAddr, crypto.Address{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero owner, got %v", err)
	}
	if err := f.engine.TransferOwnership(ownerAddr, bobAddr); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := f.engine.CreatePool(ownerAddr, "second", "ecm-usdt", defaultPolicy()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old owner must lose the role, got %v", err)
	}
	if err := f.engine.CreatePool(bobAddr, "second", "ecm-usdt", defaultPolicy()); err != nil {
		t.Fatalf("new owner must gain the role: %v", err)
	}

	// Pool-level ownership moves independently of the engine role.
	if err := f.engine.TransferPoolOwnership(ownerAddr, testPoolID, aliceAddr); err != nil {
		t.Fatalf("transfer pool ownership: %v", err)
	}
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous pool owner must lose access, got %v", err)
	}
	if err := f.engine.AllocateForSale(aliceAddr, testPoolID, big.NewInt(100)); err != nil {
		t.Fatalf("new pool owner must gain access: %v", err)
	}
}

func TestMoveLiquidityCaps(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 20_000, 0)
	f.fund(aliceAddr, 0, 5000)
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(10_000)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}
	f.engine.SetQuoter(stubQuoter{out: big.NewInt(1000)})
	if _, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(5000), 1000); err != nil {
		t.Fatalf("buy: %v", err)
	}

	operator := testAddr(0x20)
	if err := f.engine.MoveLiquidity(ownerAddr, testPoolID, operator, big.NewInt(0), big.NewInt(6000)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("USDT beyond collected must fail, got %v", err)
	}
	if err := f.engine.MoveLiquidity(ownerAddr, testPoolID, operator, big.NewInt(9500), big.NewInt(0)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("ECM beyond unsold inventory must fail, got %v", err)
	}
	if err := f.engine.MoveLiquidity(ownerAddr, testPoolID, operator, big.NewInt(0), big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("empty movement must fail, got %v", err)
	}

	if err := f.engine.MoveLiquidity(ownerAddr, testPoolID, operator, big.NewInt(2000), big.NewInt(3000)); err != nil {
		t.Fatalf("move liquidity: %v", err)
	}
	pool := f.pool()
	if pool.LiquidityOwedECM.Cmp(big.NewInt(2000)) != 0 || pool.LiquidityOutUSDT.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("liquidity bookkeeping wrong: owed=%s outUSDT=%s", pool.LiquidityOwedECM, pool.LiquidityOutUSDT)
	}
	opAcc := f.account(operator)
	if opAcc.BalanceECM.Cmp(big.NewInt(2000)) != 0 || opAcc.BalanceUSDT.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("operator balances wrong: %s ECM / %s USDT", opAcc.BalanceECM, opAcc.BalanceUSDT)
	}

	// Outstanding debt shrinks the sale capacity: 10000 - 1000 sold - 2000 owed.
	f.engine.SetQuoter(stubQuoter{out: big.NewInt(7500)})
	if _, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(1000), 1000); !errors.Is(err, ErrExceedsSaleAllocation) {
		t.Fatalf("expected ErrExceedsSaleAllocation, got %v", err)
	}
}

func TestRefillOwedCapsAtDebt(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 20_000, 0)
	f.fund(aliceAddr, 0, 5000)
	operator := testAddr(0x20)
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(10_000)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}
	f.engine.SetQuoter(stubQuoter{out: big.NewInt(1000)})
	if _, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(5000), 1000); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := f.engine.MoveLiquidity(ownerAddr, testPoolID, operator, big.NewInt(2000), big.NewInt(0)); err != nil {
		t.Fatalf("move liquidity: %v", err)
	}

	if err := f.engine.RefillOwed(operator, testPoolID, big.NewInt(2500)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("refill beyond debt must fail, got %v", err)
	}
	if err := f.engine.RefillOwed(operator, testPoolID, big.NewInt(1500)); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if owed := f.pool().LiquidityOwedECM; owed.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected owed 500, got %s", owed)
	}
	if got := f.account(operator).BalanceECM; got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected operator ECM 500, got %s", got)
	}
}

func TestReportLiquidityAdded(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.ReportLiquidityAdded(ownerAddr, testPoolID, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.ReportLiquidityAdded(ownerAddr, testPoolID, big.NewInt(1234)); err != nil {
		t.Fatalf("report: %v", err)
	}
	if got := f.pool().LiquidityAddedECM; got.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("expected 1234, got %s", got)
	}
}

func TestEmergencyRecoverRespectsObligations(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	if err := f.engine.AllocateForRewards(ownerAddr, testPoolID, big.NewInt(1000)); err != nil {
		t.Fatalf("allocate rewards: %v", err)
	}
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(2000)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}
	// Obligations: 1000 reward allocation + 2000 unsold inventory. The extra
	// 500 on the vault is a stray transfer.
	f.fund(moduleAddr, 3500, 100)

	if err := f.engine.EmergencyRecover(aliceAddr, TokenECM, big.NewInt(100), bobAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.engine.EmergencyRecover(ownerAddr, TokenECM, big.NewInt(600), bobAddr); !errors.Is(err, ErrRecoverySurplus) {
		t.Fatalf("expected ErrRecoverySurplus, got %v", err)
	}
	if err := f.engine.EmergencyRecover(ownerAddr, "DOGE", big.NewInt(1), bobAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for unknown token, got %v", err)
	}

	if err := f.engine.EmergencyRecover(ownerAddr, TokenECM, big.NewInt(400), bobAddr); err != nil {
		t.Fatalf("recover surplus: %v", err)
	}
	if got := f.account(bobAddr).BalanceECM; got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected recovered 400, got %s", got)
	}

	// No USDT is booked to any pool, so the stray 100 is fully recoverable.
	if err := f.engine.EmergencyRecover(ownerAddr, "USDT", big.NewInt(100), bobAddr); err != nil {
		t.Fatalf("recover USDT: %v", err)
	}
	if got := f.account(bobAddr).BalanceUSDT; got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected recovered 100 USDT, got %s", got)
	}
}

func TestSetPurchaseLimitsAndVestingPolicy(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if err := f.engine.SetPurchaseLimits(ownerAddr, testPoolID, big.NewInt(-1), big.NewInt(10)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.SetPurchaseLimits(ownerAddr, testPoolID, big.NewInt(100), big.NewInt(50)); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	policy := f.pool().Policy
	if policy.MinPurchase.Cmp(big.NewInt(100)) != 0 || policy.PurchaseQuantum.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("limits not applied: %+v", policy)
	}

	if err := f.engine.SetVestingPolicy(ownerAddr, testPoolID, true, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero vesting duration, got %v", err)
	}
	if err := f.engine.SetVestingPolicy(ownerAddr, testPoolID, true, 600); err != nil {
		t.Fatalf("set vesting policy: %v", err)
	}
	policy = f.pool().Policy
	if !policy.VestRewards || policy.VestingDuration != 600 {
		t.Fatalf("vesting policy not applied: %+v", policy)
	}
}
