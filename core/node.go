package core

import (
	"log/slog"
	"math/big"
	"strings"
	"time"

	"ecmstaking/core/types"
	"ecmstaking/crypto"
	"ecmstaking/native/amm"
	"ecmstaking/native/referral"
	"ecmstaking/native/stake"
	"ecmstaking/native/vesting"
	"ecmstaking/observability"
	"ecmstaking/state"
)

// Node is the single entry point for every public and administrative
// operation. Each call builds the engine graph over one state transaction, so
// a failed operation leaves no partial effects and a successful one commits
// atomically.
type Node struct {
	manager *state.Manager
	logger  *slog.Logger

	bootOwner     crypto.Address
	module        crypto.Address
	vestingVault  crypto.Address
	referralVault crypto.Address
	refParams     referral.Params

	nowFn func() uint64
}

// NodeConfig carries the addresses and parameters the node is anchored to.
type NodeConfig struct {
	Owner         crypto.Address
	Module        crypto.Address
	VestingVault  crypto.Address
	ReferralVault crypto.Address
	ReferralBps   []uint64
}

// NewNode wires the node over the state manager. Committed events are logged
// through the supplied logger.
func NewNode(manager *state.Manager, logger *slog.Logger, cfg NodeConfig) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	node := &Node{
		manager:       manager,
		logger:        logger,
		bootOwner:     cfg.Owner,
		module:        cfg.Module,
		vestingVault:  cfg.VestingVault,
		referralVault: cfg.ReferralVault,
		refParams:     referral.Params{LevelBps: append([]uint64(nil), cfg.ReferralBps...)},
		nowFn:         func() uint64 { return uint64(time.Now().Unix()) },
	}
	manager.SetEventSink(func(evt *types.Event) {
		if evt == nil {
			return
		}
		args := make([]any, 0, len(evt.Attributes)*2)
		for k, v := range evt.Attributes {
			args = append(args, k, v)
		}
		logger.Info(evt.Type, args...)
	})
	return node
}

// SetNowFunc overrides the clock handed to every engine, for deterministic
// tests.
func (n *Node) SetNowFunc(now func() uint64) {
	if now == nil {
		n.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	n.nowFn = now
}

type engineSet struct {
	stake    *stake.Engine
	vesting  *vesting.Engine
	referral *referral.Engine
}

// engines builds the collaborator graph over one transaction. The persisted
// owner, when present, supersedes the configured bootstrap owner.
func (n *Node) engines(tx *state.Tx) (*engineSet, error) {
	owner := n.bootOwner
	if stored, ok, err := tx.EngineOwner(); err != nil {
		return nil, err
	} else if ok {
		owner = stored
	}

	vest := vesting.NewEngine(n.vestingVault)
	vest.SetState(tx)
	vest.SetEmitter(tx)
	vest.SetPauses(n.manager)
	vest.SetNowFunc(n.nowFn)

	ref := referral.NewEngine(owner, n.referralVault, n.refParams)
	ref.SetState(tx)
	ref.SetEmitter(tx)
	ref.SetPauses(n.manager)
	ref.SetNowFunc(n.nowFn)

	stk := stake.NewEngine(n.module, owner)
	stk.SetState(tx)
	stk.SetEmitter(tx)
	stk.SetPauses(n.manager)
	stk.SetNowFunc(n.nowFn)
	stk.SetQuoter(amm.NewPairQuoter(tx))
	stk.SetVesting(vest, n.vestingVault)
	stk.SetReferrals(ref)

	return &engineSet{stake: stk, vesting: vest, referral: ref}, nil
}

func (n *Node) withPool(poolID, operation string, fn func(*engineSet) error) error {
	var snapshot *stake.Pool
	err := n.manager.Update(func(tx *state.Tx) error {
		eng, err := n.engines(tx)
		if err != nil {
			return err
		}
		if err := fn(eng); err != nil {
			return err
		}
		// Gauge refresh is best effort; a missing pool must not roll back
		// the mutation.
		snapshot, _ = eng.stake.GetPool(poolID)
		return nil
	})
	observability.Staking().RecordOperation(operation, err)
	if err == nil && snapshot != nil {
		observability.Staking().RecordPool(poolID, snapshot.TotalStaked, snapshot.RewardsPaid, snapshot.RemainingSaleCapacity())
	}
	return err
}

func (n *Node) update(operation string, fn func(*state.Tx, *engineSet) error) error {
	err := n.manager.Update(func(tx *state.Tx) error {
		eng, err := n.engines(tx)
		if err != nil {
			return err
		}
		return fn(tx, eng)
	})
	observability.Staking().RecordOperation(operation, err)
	return err
}

func (n *Node) view(fn func(*engineSet) error) error {
	return n.manager.View(func(tx *state.Tx) error {
		eng, err := n.engines(tx)
		if err != nil {
			return err
		}
		return fn(eng)
	})
}

// --- reads ---

// Pool loads one pool's full accounting snapshot.
func (n *Node) Pool(poolID string) (*stake.Pool, error) {
	var pool *stake.Pool
	err := n.view(func(eng *engineSet) error {
		var err error
		pool, err = eng.stake.GetPool(poolID)
		return err
	})
	return pool, err
}

// Pools lists every pool, sorted by identifier.
func (n *Node) Pools() ([]*stake.Pool, error) {
	var pools []*stake.Pool
	err := n.manager.View(func(tx *state.Tx) error {
		ids, err := tx.PoolIDs()
		if err != nil {
			return err
		}
		eng, err := n.engines(tx)
		if err != nil {
			return err
		}
		pools = make([]*stake.Pool, 0, len(ids))
		for _, id := range ids {
			pool, err := eng.stake.GetPool(id)
			if err != nil {
				return err
			}
			pools = append(pools, pool)
		}
		return nil
	})
	return pools, err
}

// Position loads the user's position within a pool.
func (n *Node) Position(poolID string, addr crypto.Address) (*stake.UserPosition, error) {
	var pos *stake.UserPosition
	err := n.view(func(eng *engineSet) error {
		var err error
		pos, err = eng.stake.GetPosition(poolID, addr)
		return err
	})
	return pos, err
}

// PendingReward projects the claimable reward without mutating state.
func (n *Node) PendingReward(poolID string, addr crypto.Address) (*big.Int, error) {
	var pending *big.Int
	err := n.view(func(eng *engineSet) error {
		var err error
		pending, err = eng.stake.PendingReward(poolID, addr)
		return err
	})
	return pending, err
}

// Balance loads an account's token balances, defaulting to zero.
func (n *Node) Balance(addr crypto.Address) (*types.Account, error) {
	var account *types.Account
	err := n.manager.View(func(tx *state.Tx) error {
		var err error
		account, err = tx.GetAccount(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
		account.EnsureBalances()
	}
	return account, nil
}

// VestingGrants lists the grants held by a beneficiary.
func (n *Node) VestingGrants(beneficiary crypto.Address) ([]*vesting.Grant, error) {
	var grants []*vesting.Grant
	err := n.view(func(eng *engineSet) error {
		var err error
		grants, err = eng.vesting.GrantsOf(beneficiary)
		return err
	})
	return grants, err
}

// VestingClaimable projects the unlocked, unclaimed value of a grant.
func (n *Node) VestingClaimable(id uint64) (*big.Int, error) {
	var claimable *big.Int
	err := n.view(func(eng *engineSet) error {
		var err error
		claimable, err = eng.vesting.Claimable(id)
		return err
	})
	return claimable, err
}

// ReferralAccrued returns the commission balance awaiting distribution.
func (n *Node) ReferralAccrued(addr crypto.Address) (*big.Int, error) {
	var accrued *big.Int
	err := n.view(func(eng *engineSet) error {
		var err error
		accrued, err = eng.referral.Accrued(addr)
		return err
	})
	return accrued, err
}

// --- user operations ---

// Stake locks already-held ECM into a pool position.
func (n *Node) Stake(staker crypto.Address, poolID string, amount *big.Int, duration uint64) error {
	return n.withPool(poolID, "stake", func(eng *engineSet) error {
		return eng.stake.Stake(staker, poolID, amount, duration)
	})
}

// BuyAndStake purchases at the quoted price with a USDT budget and locks the
// result. Returns the token amount locked.
func (n *Node) BuyAndStake(buyer crypto.Address, poolID string, budgetUSDT *big.Int, duration uint64) (*big.Int, error) {
	var tokens *big.Int
	err := n.withPool(poolID, "buyAndStake", func(eng *engineSet) error {
		var err error
		tokens, err = eng.stake.BuyAndStake(buyer, poolID, budgetUSDT, duration)
		return err
	})
	return tokens, err
}

// BuyAndStakeExact purchases an exact token amount with slippage protection.
// Returns the USDT spent.
func (n *Node) BuyAndStakeExact(buyer crypto.Address, poolID string, tokensECM, maxSpendUSDT *big.Int, duration uint64) (*big.Int, error) {
	var spend *big.Int
	err := n.withPool(poolID, "buyAndStakeExact", func(eng *engineSet) error {
		var err error
		spend, err = eng.stake.BuyAndStakeExact(buyer, poolID, tokensECM, maxSpendUSDT, duration)
		return err
	})
	return spend, err
}

// Claim pays the pending reward without closing the position.
func (n *Node) Claim(staker crypto.Address, poolID string) (*big.Int, error) {
	var paid *big.Int
	err := n.withPool(poolID, "claim", func(eng *engineSet) error {
		var err error
		paid, err = eng.stake.Claim(staker, poolID)
		return err
	})
	return paid, err
}

// Unstake closes the position, applying the early-exit penalty when immature.
// Returns the principal returned and the reward paid.
func (n *Node) Unstake(staker crypto.Address, poolID string) (*big.Int, *big.Int, error) {
	var returned, reward *big.Int
	err := n.withPool(poolID, "unstake", func(eng *engineSet) error {
		var err error
		returned, reward, err = eng.stake.Unstake(staker, poolID)
		return err
	})
	return returned, reward, err
}

// VestingClaim pays the caller's unlocked vesting tranche.
func (n *Node) VestingClaim(caller crypto.Address, id uint64) (*big.Int, error) {
	var paid *big.Int
	err := n.update("vestingClaim", func(_ *state.Tx, eng *engineSet) error {
		var err error
		paid, err = eng.vesting.Claim(caller, id)
		return err
	})
	return paid, err
}

// ReferralRegister links a user to their referrer, immutably.
func (n *Node) ReferralRegister(user, referrer crypto.Address) error {
	return n.update("referralRegister", func(_ *state.Tx, eng *engineSet) error {
		return eng.referral.Register(user, referrer)
	})
}

// ReferralClaim settles one distribution leaf against its Merkle proof.
func (n *Node) ReferralClaim(caller crypto.Address, distributionID, index uint64, amount *big.Int, proof [][32]byte) error {
	return n.update("referralClaim", func(_ *state.Tx, eng *engineSet) error {
		return eng.referral.ClaimCommission(caller, distributionID, index, amount, proof)
	})
}

// --- administration ---

// CreatePool registers a new staking market.
func (n *Node) CreatePool(caller crypto.Address, poolID, pairID string, policy stake.PoolPolicy) error {
	return n.update("createPool", func(_ *state.Tx, eng *engineSet) error {
		return eng.stake.CreatePool(caller, poolID, pairID, policy)
	})
}

// AllocateForSale raises a pool's sale budget.
func (n *Node) AllocateForSale(caller crypto.Address, poolID string, amount *big.Int) error {
	return n.withPool(poolID, "allocateForSale", func(eng *engineSet) error {
		return eng.stake.AllocateForSale(caller, poolID, amount)
	})
}

// AllocateForRewards raises a pool's reward budget.
func (n *Node) AllocateForRewards(caller crypto.Address, poolID string, amount *big.Int) error {
	return n.withPool(poolID, "allocateForRewards", func(eng *engineSet) error {
		return eng.stake.AllocateForRewards(caller, poolID, amount)
	})
}

// SetLinearRate switches the pool to the derived linear emission schedule.
func (n *Node) SetLinearRate(caller crypto.Address, poolID string) error {
	return n.withPool(poolID, "setLinearRate", func(eng *engineSet) error {
		return eng.stake.SetLinearRate(caller, poolID)
	})
}

// SetTrancheSchedule installs a monthly or weekly tranche schedule.
func (n *Node) SetTrancheSchedule(caller crypto.Address, poolID string, kind stake.ScheduleKind, tranches []*big.Int, anchor uint64) error {
	return n.withPool(poolID, "setTrancheSchedule", func(eng *engineSet) error {
		return eng.stake.SetTrancheSchedule(caller, poolID, kind, tranches, anchor)
	})
}

// SetStakeDurations replaces the allowed lock durations.
func (n *Node) SetStakeDurations(caller crypto.Address, poolID string, durations []uint64, maxDuration uint64) error {
	return n.withPool(poolID, "setStakeDurations", func(eng *engineSet) error {
		return eng.stake.SetStakeDurations(caller, poolID, durations, maxDuration)
	})
}

// SetPenalty updates the early-exit slash.
func (n *Node) SetPenalty(caller crypto.Address, poolID string, penaltyBps uint64, receiver crypto.Address) error {
	return n.withPool(poolID, "setPenalty", func(eng *engineSet) error {
		return eng.stake.SetPenalty(caller, poolID, penaltyBps, receiver)
	})
}

// SetVestingPolicy toggles reward vesting for a pool.
func (n *Node) SetVestingPolicy(caller crypto.Address, poolID string, vest bool, duration uint64) error {
	return n.withPool(poolID, "setVestingPolicy", func(eng *engineSet) error {
		return eng.stake.SetVestingPolicy(caller, poolID, vest, duration)
	})
}

// SetPurchaseLimits updates the minimum purchase and quantum.
func (n *Node) SetPurchaseLimits(caller crypto.Address, poolID string, minPurchase, quantum *big.Int) error {
	return n.withPool(poolID, "setPurchaseLimits", func(eng *engineSet) error {
		return eng.stake.SetPurchaseLimits(caller, poolID, minPurchase, quantum)
	})
}

// SetActive toggles a pool's active flag.
func (n *Node) SetActive(caller crypto.Address, poolID string, active bool) error {
	return n.withPool(poolID, "setActive", func(eng *engineSet) error {
		return eng.stake.SetActive(caller, poolID, active)
	})
}

// TransferOwnership hands the engine-level admin role to a new address and
// persists the change.
func (n *Node) TransferOwnership(caller, newOwner crypto.Address) error {
	return n.update("transferOwnership", func(tx *state.Tx, eng *engineSet) error {
		if err := eng.stake.TransferOwnership(caller, newOwner); err != nil {
			return err
		}
		return tx.SetEngineOwner(newOwner)
	})
}

// TransferPoolOwnership hands one pool's admin role to a new address.
func (n *Node) TransferPoolOwnership(caller crypto.Address, poolID string, newOwner crypto.Address) error {
	return n.withPool(poolID, "transferPoolOwnership", func(eng *engineSet) error {
		return eng.stake.TransferPoolOwnership(caller, poolID, newOwner)
	})
}

// MoveLiquidity hands collected USDT and unsold ECM to the liquidity operator.
func (n *Node) MoveLiquidity(caller crypto.Address, poolID string, operator crypto.Address, ecmAmount, usdtAmount *big.Int) error {
	return n.withPool(poolID, "moveLiquidity", func(eng *engineSet) error {
		return eng.stake.MoveLiquidity(caller, poolID, operator, ecmAmount, usdtAmount)
	})
}

// ReportLiquidityAdded records externally placed ECM liquidity.
func (n *Node) ReportLiquidityAdded(caller crypto.Address, poolID string, ecmAmount *big.Int) error {
	return n.withPool(poolID, "reportLiquidityAdded", func(eng *engineSet) error {
		return eng.stake.ReportLiquidityAdded(caller, poolID, ecmAmount)
	})
}

// RefillOwed returns ECM against the pool's outstanding liquidity debt.
func (n *Node) RefillOwed(caller crypto.Address, poolID string, amount *big.Int) error {
	return n.withPool(poolID, "refillOwed", func(eng *engineSet) error {
		return eng.stake.RefillOwed(caller, poolID, amount)
	})
}

// EmergencyRecover moves uncustodied surplus out of the module vault.
func (n *Node) EmergencyRecover(caller crypto.Address, token string, amount *big.Int, to crypto.Address) error {
	return n.update("emergencyRecover", func(_ *state.Tx, eng *engineSet) error {
		return eng.stake.EmergencyRecover(caller, token, amount, to)
	})
}

// SetPairReserves records the pricing pair snapshot quoted for a pool's buys.
func (n *Node) SetPairReserves(caller crypto.Address, poolID string, reserveUSDT, reserveECM *big.Int) error {
	return n.update("setPairReserves", func(tx *state.Tx, eng *engineSet) error {
		if !sameOwner(caller, eng.stake.Owner()) {
			return stake.ErrUnauthorized
		}
		if reserveUSDT == nil || reserveUSDT.Sign() <= 0 || reserveECM == nil || reserveECM.Sign() <= 0 {
			return stake.ErrInvalidAmount
		}
		return tx.SetPairReserves(poolID, amm.Reserves{
			ReserveIn:  new(big.Int).Set(reserveUSDT),
			ReserveOut: new(big.Int).Set(reserveECM),
		})
	})
}

// ReferralCreateDistribution batches accrued commissions into a Merkle
// distribution and returns the per-leaf proofs.
func (n *Node) ReferralCreateDistribution(caller crypto.Address, entries []referral.LeafEntry) (*referral.Distribution, map[uint64][][32]byte, error) {
	var dist *referral.Distribution
	var proofs map[uint64][][32]byte
	err := n.update("referralCreateDistribution", func(_ *state.Tx, eng *engineSet) error {
		var err error
		dist, proofs, err = eng.referral.CreateDistribution(caller, entries)
		return err
	})
	return dist, proofs, err
}

// Credit books an external deposit onto an account's ledger balance. Owner
// only: this models funds arriving from outside the service.
func (n *Node) Credit(caller, addr crypto.Address, token string, amount *big.Int) error {
	return n.update("credit", func(tx *state.Tx, eng *engineSet) error {
		if !sameOwner(caller, eng.stake.Owner()) {
			return stake.ErrUnauthorized
		}
		if amount == nil || amount.Sign() <= 0 {
			return stake.ErrInvalidAmount
		}
		account, err := tx.GetAccount(addr)
		if err != nil {
			return err
		}
		if account == nil {
			account = &types.Account{}
		}
		account.EnsureBalances()
		switch strings.ToUpper(strings.TrimSpace(token)) {
		case stake.TokenECM:
			account.BalanceECM = new(big.Int).Add(account.BalanceECM, amount)
		case "USDT":
			account.BalanceUSDT = new(big.Int).Add(account.BalanceUSDT, amount)
		default:
			return stake.ErrInvalidAmount
		}
		return tx.PutAccount(addr, account)
	})
}

// SetPaused toggles the pause guard for a module ("staking", "vesting",
// "referral").
func (n *Node) SetPaused(caller crypto.Address, module string, paused bool) error {
	var owner crypto.Address
	err := n.manager.View(func(tx *state.Tx) error {
		eng, err := n.engines(tx)
		if err != nil {
			return err
		}
		owner = eng.stake.Owner()
		return nil
	})
	if err != nil {
		return err
	}
	if !sameOwner(caller, owner) {
		return stake.ErrUnauthorized
	}
	n.manager.SetPaused(module, paused)
	observability.Staking().SetPause(module, paused)
	n.logger.Info("module pause toggled", "module", module, "paused", paused)
	return nil
}

func sameOwner(a, b crypto.Address) bool {
	return a.String() == b.String() && !a.IsZero()
}
