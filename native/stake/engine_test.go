package stake

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"ecmstaking/core/types"
	"ecmstaking/crypto"
	nativecommon "ecmstaking/native/common"
)

const testPoolID = "ecm-genesis"

func testAddr(fill byte) crypto.Address {
	return crypto.MustNewAddress(crypto.ECMPrefix, bytes.Repeat([]byte{fill}, 20))
}

var (
	ownerAddr    = testAddr(0x01)
	moduleAddr   = testAddr(0x02)
	treasuryAddr = testAddr(0x03)
	vaultAddr    = testAddr(0x04)
	aliceAddr    = testAddr(0x0a)
	bobAddr      = testAddr(0x0b)
)

// memState is an in-memory engineState. Values round-trip through JSON on
// every read and write so the tests exercise the same serialisation the
// persistence layer uses and mutations never leak between loads.
type memState struct {
	pools     map[string]*Pool
	positions map[string]*UserPosition
	accounts  map[string]*types.Account
	poolIDs   []string
}

func newMemState() *memState {
	return &memState{
		pools:     make(map[string]*Pool),
		positions: make(map[string]*UserPosition),
		accounts:  make(map[string]*types.Account),
	}
}

func cloneJSON[T any](in *T) *T {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

func (m *memState) GetPool(poolID string) (*Pool, error) {
	return cloneJSON(m.pools[poolID]), nil
}

func (m *memState) PutPool(poolID string, pool *Pool) error {
	if _, ok := m.pools[poolID]; !ok {
		m.poolIDs = append(m.poolIDs, poolID)
	}
	m.pools[poolID] = cloneJSON(pool)
	return nil
}

func (m *memState) PoolIDs() ([]string, error) {
	return append([]string(nil), m.poolIDs...), nil
}

func posKey(poolID string, addr crypto.Address) string {
	return poolID + "/" + addr.String()
}

func (m *memState) GetPosition(poolID string, addr crypto.Address) (*UserPosition, error) {
	return cloneJSON(m.positions[posKey(poolID, addr)]), nil
}

func (m *memState) PutPosition(poolID string, pos *UserPosition) error {
	m.positions[posKey(poolID, pos.Address)] = cloneJSON(pos)
	return nil
}

func (m *memState) GetAccount(addr crypto.Address) (*types.Account, error) {
	return cloneJSON(m.accounts[addr.String()]), nil
}

func (m *memState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr.String()] = cloneJSON(account)
	return nil
}

type engineFixture struct {
	t      *testing.T
	engine *Engine
	state  *memState
	now    uint64
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{t: t, state: newMemState(), now: 1_000_000}
	f.engine = NewEngine(moduleAddr, ownerAddr)
	f.engine.SetState(f.state)
	f.engine.SetNowFunc(func() uint64 { return f.now })
	return f
}

func (f *engineFixture) advance(seconds uint64) { f.now += seconds }

func defaultPolicy() PoolPolicy {
	return PoolPolicy{
		AllowedDurations: []uint64{1000, 5000},
		MaxDuration:      5000,
		PenaltyBps:       2500,
		PenaltyReceiver:  treasuryAddr,
		MinPurchase:      big.NewInt(10),
		PurchaseQuantum:  big.NewInt(10),
		Active:           true,
	}
}

func (f *engineFixture) createPool(policy PoolPolicy) {
	f.t.Helper()
	if err := f.engine.CreatePool(ownerAddr, testPoolID, "ecm-usdt", policy); err != nil {
		f.t.Fatalf("create pool: %v", err)
	}
}

func (f *engineFixture) fund(addr crypto.Address, ecm, usdt int64) {
	f.t.Helper()
	acc := &types.Account{BalanceECM: big.NewInt(ecm), BalanceUSDT: big.NewInt(usdt)}
	if err := f.state.PutAccount(addr, acc); err != nil {
		f.t.Fatalf("fund %s: %v", addr, err)
	}
}

func (f *engineFixture) account(addr crypto.Address) *types.Account {
	f.t.Helper()
	acc, err := f.engine.loadAccount(addr)
	if err != nil {
		f.t.Fatalf("load account: %v", err)
	}
	return acc
}

func (f *engineFixture) pool() *Pool {
	f.t.Helper()
	pool, err := f.engine.GetPool(testPoolID)
	if err != nil {
		f.t.Fatalf("load pool: %v", err)
	}
	return pool
}

func (f *engineFixture) position(addr crypto.Address) *UserPosition {
	f.t.Helper()
	pos, err := f.engine.GetPosition(testPoolID, addr)
	if err != nil {
		f.t.Fatalf("load position: %v", err)
	}
	return pos
}

func (f *engineFixture) pending(addr crypto.Address) *big.Int {
	f.t.Helper()
	pending, err := f.engine.PendingReward(testPoolID, addr)
	if err != nil {
		f.t.Fatalf("pending reward: %v", err)
	}
	return pending
}

// linearRewards funds the module vault, allocates the reward budget and
// installs the derived linear rate (allocation / MaxDuration).
func (f *engineFixture) linearRewards(allocation int64) {
	f.t.Helper()
	if err := f.engine.AllocateForRewards(ownerAddr, testPoolID, big.NewInt(allocation)); err != nil {
		f.t.Fatalf("allocate rewards: %v", err)
	}
	if err := f.engine.SetLinearRate(ownerAddr, testPoolID); err != nil {
		f.t.Fatalf("set linear rate: %v", err)
	}
}

func (f *engineFixture) mustStake(addr crypto.Address, amount int64, duration uint64) {
	f.t.Helper()
	if err := f.engine.Stake(addr, testPoolID, big.NewInt(amount), duration); err != nil {
		f.t.Fatalf("stake: %v", err)
	}
}

type stubQuoter struct {
	out *big.Int
	in  *big.Int
	err error
}

func (q stubQuoter) QuoteOut(string, *big.Int) (*big.Int, error) {
	if q.err != nil {
		return nil, q.err
	}
	return new(big.Int).Set(q.out), nil
}

func (q stubQuoter) QuoteIn(string, *big.Int) (*big.Int, error) {
	if q.err != nil {
		return nil, q.err
	}
	return new(big.Int).Set(q.in), nil
}

type grantCall struct {
	beneficiary crypto.Address
	amount      *big.Int
	start       uint64
	duration    uint64
	token       string
	poolID      string
}

type stubVesting struct {
	grants []grantCall
}

func (s *stubVesting) CreateGrant(beneficiary crypto.Address, amount *big.Int, start, duration uint64, token, poolID string) (uint64, error) {
	s.grants = append(s.grants, grantCall{beneficiary, new(big.Int).Set(amount), start, duration, token, poolID})
	return uint64(len(s.grants)), nil
}

type recordedClaim struct {
	poolID string
	user   crypto.Address
	amount *big.Int
}

type stubRecorder struct {
	claims []recordedClaim
}

func (s *stubRecorder) RecordClaim(poolID string, user crypto.Address, amount *big.Int) error {
	s.claims = append(s.claims, recordedClaim{poolID, user, new(big.Int).Set(amount)})
	return nil
}

type stubPauses map[string]bool

func (s stubPauses) IsPaused(module string) bool { return s[module] }

// --- accrual ---

func TestStakeAccruesLinearRewards(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000) // rate 10/s over MaxDuration 5000

	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)

	if pending := f.pending(aliceAddr); pending.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected pending 1000, got %s", pending)
	}

	paid, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected payout 1000, got %s", paid)
	}
	if got := f.account(aliceAddr).BalanceECM; got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected alice balance 10000 after claim, got %s", got)
	}

	pool := f.pool()
	if pool.TotalRewardsAccrued.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected accrued 1000, got %s", pool.TotalRewardsAccrued)
	}
	if pool.RewardsPaid.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected paid 1000, got %s", pool.RewardsPaid)
	}
}

func TestAccumulatorNeverDecreases(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)
	f.mustStake(aliceAddr, 1000, 1000)

	last := big.NewInt(0)
	for i := 0; i < 20; i++ {
		f.advance(uint64(i * 7))
		if _, err := f.engine.Claim(aliceAddr, testPoolID); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		acc := f.pool().AccRewardPerShare
		if acc.Cmp(last) < 0 {
			t.Fatalf("accumulator went backwards: %s < %s", acc, last)
		}
		last = acc
	}
}

func TestRewardsSplitProportionally(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.fund(bobAddr, 10_000, 0)
	f.linearRewards(50_000)

	f.mustStake(aliceAddr, 100, 1000)
	f.mustStake(bobAddr, 200, 1000)
	f.advance(7) // emitted 70 across 300 staked

	alicePending := f.pending(aliceAddr)
	bobPending := f.pending(bobAddr)

	// 100:200 split of 70 truncates to 23/46.
	if alicePending.Cmp(big.NewInt(23)) != 0 {
		t.Fatalf("expected alice pending 23, got %s", alicePending)
	}
	if bobPending.Cmp(big.NewInt(46)) != 0 {
		t.Fatalf("expected bob pending 46, got %s", bobPending)
	}

	sum := new(big.Int).Add(alicePending, bobPending)
	if sum.Cmp(big.NewInt(70)) > 0 {
		t.Fatalf("pendings exceed emission: %s > 70", sum)
	}
	if diff := new(big.Int).Sub(big.NewInt(70), sum); diff.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("truncation loss beyond one unit per staker: %s", diff)
	}
}

func TestClaimIdempotentAtSameTimestamp(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)
	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)

	first, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", first)
	}
	accAfterFirst := f.pool().AccRewardPerShare

	second, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("second claim at same instant must pay nothing, got %s", second)
	}
	if f.pool().AccRewardPerShare.Cmp(accAfterFirst) != 0 {
		t.Fatal("accumulator must not move without elapsed time")
	}
}

func TestZeroStakerEmissionIsLost(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)

	// Nobody staked for 100 seconds; that emission is gone, not banked.
	f.advance(100)
	f.mustStake(aliceAddr, 1000, 1000)
	if pending := f.pending(aliceAddr); pending.Sign() != 0 {
		t.Fatalf("no accrual should predate the stake, got %s", pending)
	}

	f.advance(50)
	if pending := f.pending(aliceAddr); pending.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected pending 500 from post-stake window, got %s", pending)
	}
	if accrued := f.pool().TotalRewardsAccrued; accrued.Sign() != 0 {
		t.Fatalf("zero-staker window must not book accrual, got %s", accrued)
	}
}

func TestRewardsStopAtAllocation(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)
	f.mustStake(aliceAddr, 1000, 1000)

	// Ten years on a 5000-second runway: emission clips at the allocation.
	f.advance(10 * 365 * 24 * 60 * 60)

	if pending := f.pending(aliceAddr); pending.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("pending must clip at the allocation, got %s", pending)
	}
	paid, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("expected payout 50000, got %s", paid)
	}

	pool := f.pool()
	if pool.TotalRewardsAccrued.Cmp(pool.AllocatedForRewards) > 0 {
		t.Fatalf("accrued %s exceeds allocation %s", pool.TotalRewardsAccrued, pool.AllocatedForRewards)
	}
	if pool.RewardsPaid.Cmp(pool.TotalRewardsAccrued) > 0 {
		t.Fatalf("paid %s exceeds accrued %s", pool.RewardsPaid, pool.TotalRewardsAccrued)
	}
}

// --- position lifecycle ---

func TestTopUpCarriesPendingAndKeepsMaturity(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)

	start := f.now
	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)

	// Duration zero means "keep the current lock".
	f.mustStake(aliceAddr, 500, 0)

	pos := f.position(aliceAddr)
	if pos.Staked.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected staked 1500, got %s", pos.Staked)
	}
	if pos.StakeStart != start || pos.StakeDuration != 1000 {
		t.Fatalf("top-up must not touch the lock: start=%d duration=%d", pos.StakeStart, pos.StakeDuration)
	}
	if pos.CarriedPending.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected carried pending 1000, got %s", pos.CarriedPending)
	}
	if pending := f.pending(aliceAddr); pending.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("pending must survive the top-up, got %s", pending)
	}

	// Restating the same duration is allowed; changing it is not.
	f.mustStake(aliceAddr, 100, 1000)
	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(100), 5000); !errors.Is(err, ErrDurationMismatch) {
		t.Fatalf("expected ErrDurationMismatch, got %v", err)
	}
}

func TestEarlyUnstakeSlashesPrincipalOnly(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)

	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)

	returned, reward, err := f.engine.Unstake(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if returned.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected returned 750, got %s", returned)
	}
	if reward.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("rewards are never penalised, expected 1000, got %s", reward)
	}
	if got := f.account(treasuryAddr).BalanceECM; got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected penalty 250 at receiver, got %s", got)
	}
	// 10000 - 1000 staked + 750 returned + 1000 reward.
	if got := f.account(aliceAddr).BalanceECM; got.Cmp(big.NewInt(10_750)) != 0 {
		t.Fatalf("expected alice balance 10750, got %s", got)
	}

	pos := f.position(aliceAddr)
	if pos.Open() {
		t.Fatal("position must be closed after unstake")
	}
	if pos.TotalPenaltiesPaid.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected lifetime penalties 250, got %s", pos.TotalPenaltiesPaid)
	}
	if f.pool().PenaltiesCollected.Cmp(big.NewInt(250)) != 0 {
		t.Fatal("pool must book the collected penalty")
	}
}

func TestMatureUnstakeReturnsFullPrincipal(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)

	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(1000) // exactly at maturity counts as mature

	returned, _, err := f.engine.Unstake(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if returned.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected full principal back, got %s", returned)
	}
	if got := f.account(treasuryAddr).BalanceECM; got.Sign() != 0 {
		t.Fatalf("mature exit must not pay a penalty, receiver got %s", got)
	}
}

func TestClaimWithoutPositionFails(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())

	if _, err := f.engine.Claim(aliceAddr, testPoolID); !errors.Is(err, ErrNoOpenPosition) {
		t.Fatalf("expected ErrNoOpenPosition, got %v", err)
	}
	if _, _, err := f.engine.Unstake(aliceAddr, testPoolID); !errors.Is(err, ErrNoOpenPosition) {
		t.Fatalf("expected ErrNoOpenPosition, got %v", err)
	}
}

func TestPendingRewardWithoutPositionIsZero(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.linearRewards(50_000)

	pending, err := f.engine.PendingReward(testPoolID, aliceAddr)
	if err != nil {
		t.Fatalf("PendingReward: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("pending for absent position = %s, want 0", pending)
	}
}

func TestPendingOfHandlesNilAndClosedPositions(t *testing.T) {
	pool := &Pool{}
	ensurePoolDefaults(pool)

	if got := pendingOf(pool, nil, 42); got.Sign() != 0 {
		t.Fatalf("pending for nil position = %s, want 0", got)
	}

	closed := &UserPosition{Staked: big.NewInt(0), CarriedPending: big.NewInt(77)}
	ensurePositionDefaults(closed)
	if got := pendingOf(pool, closed, 42); got.String() != "77" {
		t.Fatalf("pending for closed position = %s, want 77", got)
	}
}

func TestClaimSucceedsOnDeactivatedPool(t *testing.T) {
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
	f.advance(500) // no accrual while inactive

	paid, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("claim on inactive pool: %v", err)
	}
	if paid.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected settled 1000, got %s", paid)
	}

	// New stake inflow stays gated.
	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(100), 0); !errors.Is(err, ErrPoolInactive) {
		t.Fatalf("expected ErrPoolInactive, got %v", err)
	}
}

func TestStakeValidation(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(aliceAddr, 100, 0)

	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(0), 1000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(1000), 1000); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(55), 1000); !errors.Is(err, ErrAmountQuantum) {
		t.Fatalf("expected ErrAmountQuantum, got %v", err)
	}
	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(100), 123); !errors.Is(err, ErrDurationNotAllowed) {
		t.Fatalf("expected ErrDurationNotAllowed, got %v", err)
	}
	if err := f.engine.Stake(aliceAddr, "nope", big.NewInt(100), 1000); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(aliceAddr, 10_000, 0)
	f.engine.SetPauses(stubPauses{moduleName: true})

	if err := f.engine.Stake(aliceAddr, testPoolID, big.NewInt(100), 1000); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := f.engine.Claim(aliceAddr, testPoolID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, _, err := f.engine.Unstake(aliceAddr, testPoolID); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

// --- purchases ---

func TestBuyAndStakeQuantisesTheQuote(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 100_000, 0)
	f.fund(aliceAddr, 0, 5000)
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(10_000)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}
	f.engine.SetQuoter(stubQuoter{out: big.NewInt(1234)})

	tokens, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(5000), 1000)
	if err != nil {
		t.Fatalf("buy and stake: %v", err)
	}
	if tokens.Cmp(big.NewInt(1230)) != 0 {
		t.Fatalf("expected quantised 1230, got %s", tokens)
	}

	pool := f.pool()
	if pool.Sold.Cmp(big.NewInt(1230)) != 0 {
		t.Fatalf("expected sold 1230, got %s", pool.Sold)
	}
	if pool.CollectedUSDT.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected collected 5000, got %s", pool.CollectedUSDT)
	}
	if got := f.account(aliceAddr).BalanceUSDT; got.Sign() != 0 {
		t.Fatalf("expected alice USDT spent, got %s", got)
	}
	if got := f.account(moduleAddr).BalanceUSDT; got.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected module USDT 5000, got %s", got)
	}
	if pos := f.position(aliceAddr); pos.Staked.Cmp(big.NewInt(1230)) != 0 {
		t.Fatalf("expected position 1230, got %s", pos.Staked)
	}
}

func TestBuyAndStakeRejectsTinyAndOversizedBuys(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(aliceAddr, 0, 5000)
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(100)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}

	f.engine.SetQuoter(stubQuoter{out: big.NewInt(5)})
	if _, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(100), 1000); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}

	f.engine.SetQuoter(stubQuoter{out: big.NewInt(1230)})
	if _, err := f.engine.BuyAndStake(aliceAddr, testPoolID, big.NewInt(5000), 1000); !errors.Is(err, ErrExceedsSaleAllocation) {
		t.Fatalf("expected ErrExceedsSaleAllocation, got %v", err)
	}
}

func TestBuyAndStakeExactHonoursSlippageBound(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 100_000, 0)
	f.fund(aliceAddr, 0, 5000)
	if err := f.engine.AllocateForSale(ownerAddr, testPoolID, big.NewInt(10_000)); err != nil {
		t.Fatalf("allocate sale: %v", err)
	}
	f.engine.SetQuoter(stubQuoter{in: big.NewInt(700)})

	if _, err := f.engine.BuyAndStakeExact(aliceAddr, testPoolID, big.NewInt(1005), big.NewInt(800), 1000); !errors.Is(err, ErrAmountQuantum) {
		t.Fatalf("expected ErrAmountQuantum, got %v", err)
	}
	if _, err := f.engine.BuyAndStakeExact(aliceAddr, testPoolID, big.NewInt(1000), big.NewInt(600), 1000); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	spend, err := f.engine.BuyAndStakeExact(aliceAddr, testPoolID, big.NewInt(1000), big.NewInt(800), 1000)
	if err != nil {
		t.Fatalf("buy exact: %v", err)
	}
	if spend.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected spend 700, got %s", spend)
	}
	if got := f.account(aliceAddr).BalanceUSDT; got.Cmp(big.NewInt(4300)) != 0 {
		t.Fatalf("expected alice USDT 4300, got %s", got)
	}
	if pos := f.position(aliceAddr); pos.Staked.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected position 1000, got %s", pos.Staked)
	}
}

// --- collaborators ---

func TestVestedRewardsRouteToVault(t *testing.T) {
	f := newFixture(t)
	policy := defaultPolicy()
	policy.VestRewards = true
	policy.VestingDuration = 500
	f.createPool(policy)
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)

	vesting := &stubVesting{}
	f.engine.SetVesting(vesting, vaultAddr)

	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)

	paid, err := f.engine.Claim(aliceAddr, testPoolID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected payout 1000, got %s", paid)
	}
	if got := f.account(vaultAddr).BalanceECM; got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected vault to hold the payout, got %s", got)
	}
	if got := f.account(aliceAddr).BalanceECM; got.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("vested payout must not hit the staker, got %s", got)
	}

	if len(vesting.grants) != 1 {
		t.Fatalf("expected one grant, got %d", len(vesting.grants))
	}
	grant := vesting.grants[0]
	if grant.beneficiary.String() != aliceAddr.String() || grant.amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if grant.duration != 500 || grant.token != TokenECM || grant.poolID != testPoolID {
		t.Fatalf("unexpected grant terms %+v", grant)
	}
}

func TestClaimNotifiesReferralRecorder(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.linearRewards(50_000)

	recorder := &stubRecorder{}
	f.engine.SetReferrals(recorder)

	f.mustStake(aliceAddr, 1000, 1000)
	f.advance(100)
	if _, err := f.engine.Claim(aliceAddr, testPoolID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if len(recorder.claims) != 1 {
		t.Fatalf("expected one recorded claim, got %d", len(recorder.claims))
	}
	claim := recorder.claims[0]
	if claim.poolID != testPoolID || claim.user.String() != aliceAddr.String() {
		t.Fatalf("unexpected claim %+v", claim)
	}
	if claim.amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected recorded amount 1000, got %s", claim.amount)
	}

	// A zero-pending claim must not reach the recorder.
	if _, err := f.engine.Claim(aliceAddr, testPoolID); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(recorder.claims) != 1 {
		t.Fatalf("zero payout must not be recorded, got %d calls", len(recorder.claims))
	}
}

// --- conservation ---

func TestTokenConservationAcrossLifecycle(t *testing.T) {
	f := newFixture(t)
	f.createPool(defaultPolicy())
	f.fund(moduleAddr, 1_000_000, 0)
	f.fund(aliceAddr, 10_000, 0)
	f.fund(bobAddr, 10_000, 0)
	f.linearRewards(50_000)

	totalECM := func() *big.Int {
		sum := big.NewInt(0)
		for _, addr := range []crypto.Address{moduleAddr, treasuryAddr, aliceAddr, bobAddr} {
			sum.Add(sum, f.account(addr).BalanceECM)
		}
		return sum
	}
	before := totalECM()

	f.mustStake(aliceAddr, 1000, 1000)
	f.mustStake(bobAddr, 3000, 5000)
	f.advance(500)
	if _, err := f.engine.Claim(aliceAddr, testPoolID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.advance(600)
	// Alice is past maturity, bob is not.
	if _, _, err := f.engine.Unstake(aliceAddr, testPoolID); err != nil {
		t.Fatalf("mature unstake: %v", err)
	}
	if _, _, err := f.engine.Unstake(bobAddr, testPoolID); err != nil {
		t.Fatalf("early unstake: %v", err)
	}

	if after := totalECM(); after.Cmp(before) != 0 {
		t.Fatalf("ECM supply changed: %s -> %s", before, after)
	}

	pool := f.pool()
	if pool.TotalStaked.Sign() != 0 {
		t.Fatalf("pool must be empty after both exits, got %s", pool.TotalStaked)
	}
	if pool.RewardsPaid.Cmp(pool.TotalRewardsAccrued) > 0 {
		t.Fatalf("paid %s exceeds accrued %s", pool.RewardsPaid, pool.TotalRewardsAccrued)
	}
	if pool.TotalRewardsAccrued.Cmp(pool.AllocatedForRewards) > 0 {
		t.Fatalf("accrued %s exceeds allocation %s", pool.TotalRewardsAccrued, pool.AllocatedForRewards)
	}
	if pool.LifetimeUnstaked.Cmp(pool.LifetimeStaked) != 0 {
		t.Fatalf("lifetime staked %s != unstaked %s after full drain", pool.LifetimeStaked, pool.LifetimeUnstaked)
	}
}
