package referral

import (
	"errors"
	"math/big"
	"time"

	"ecmstaking/core/events"
	"ecmstaking/core/types"
	"ecmstaking/crypto"
	nativecommon "ecmstaking/native/common"
)

const moduleName = "referral"

var basisPoints = big.NewInt(10_000)

var (
	errNilState = errors.New("referral engine: state not configured")

	// ErrSelfReferral indicates a user tried to refer themselves.
	ErrSelfReferral = errors.New("referral engine: self referral")
	// ErrAlreadyReferred indicates the user already has a referrer.
	ErrAlreadyReferred = errors.New("referral engine: referrer already set")
	// ErrInvalidReferrer indicates a zero referrer address.
	ErrInvalidReferrer = errors.New("referral engine: invalid referrer")
	// ErrUnauthorized indicates the caller lacks the owner role.
	ErrUnauthorized = errors.New("referral engine: caller not authorized")
	// ErrDistributionNotFound indicates an unknown distribution identifier.
	ErrDistributionNotFound = errors.New("referral engine: distribution not found")
	// ErrInvalidProof indicates the Merkle proof did not verify.
	ErrInvalidProof = errors.New("referral engine: invalid proof")
	// ErrAlreadyClaimed indicates the leaf has been claimed before.
	ErrAlreadyClaimed = errors.New("referral engine: leaf already claimed")
	// ErrInsufficientAccrual indicates a distribution exceeds accrued commissions.
	ErrInsufficientAccrual = errors.New("referral engine: entry exceeds accrued commission")
	// ErrVaultUnderfunded indicates the commission vault cannot cover a claim.
	ErrVaultUnderfunded = errors.New("referral engine: vault underfunded")
)

// Params configures the multi-level commission split. LevelBps[0] is the
// direct referrer's share of a claimed reward, LevelBps[1] the next level up,
// and so on.
type Params struct {
	LevelBps []uint64
}

// Distribution is a batch of accrued commissions committed to a Merkle root.
type Distribution struct {
	ID        uint64   `json:"id"`
	Root      [32]byte `json:"root"`
	Total     *big.Int `json:"total"`
	CreatedAt uint64   `json:"createdAt"`
	// ClaimedBitmap packs one bit per leaf index, matching the on-demand
	// double-claim check.
	ClaimedBitmap map[uint64]uint64 `json:"claimedBitmap"`
}

func (d *Distribution) claimed(index uint64) bool {
	if d == nil || d.ClaimedBitmap == nil {
		return false
	}
	word := d.ClaimedBitmap[index/64]
	return word&(1<<(index%64)) != 0
}

func (d *Distribution) markClaimed(index uint64) {
	if d.ClaimedBitmap == nil {
		d.ClaimedBitmap = make(map[uint64]uint64)
	}
	d.ClaimedBitmap[index/64] |= 1 << (index % 64)
}

type engineState interface {
	ReferrerOf(user crypto.Address) (crypto.Address, bool, error)
	SetReferrer(user, referrer crypto.Address) error
	CommissionAccrued(addr crypto.Address) (*big.Int, error)
	SetCommissionAccrued(addr crypto.Address, amount *big.Int) error
	ReferralDistribution(id uint64) (*Distribution, error)
	PutReferralDistribution(dist *Distribution) error
	NextReferralDistributionID() (uint64, error)
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine accrues multi-level commissions as reward claims are recorded and
// settles them in Merkle-proof batches paid from a commission vault.
type Engine struct {
	state   engineState
	emitter events.Emitter
	params  Params
	owner   crypto.Address
	vault   crypto.Address
	pauses  nativecommon.PauseView
	nowFn   func() uint64
}

// NewEngine constructs a referral engine paying from the vault address.
func NewEngine(owner, vault crypto.Address, params Params) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		params:  params,
		owner:   owner,
		vault:   vault,
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

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

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
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

// Register links a user to their referrer. A user's referrer is immutable once
// set.
func (e *Engine) Register(user, referrer crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if referrer.IsZero() {
		return ErrInvalidReferrer
	}
	if user.String() == referrer.String() {
		return ErrSelfReferral
	}
	if _, exists, err := e.state.ReferrerOf(user); err != nil {
		return err
	} else if exists {
		return ErrAlreadyReferred
	}
	return e.state.SetReferrer(user, referrer)
}

// RecordClaim walks the user's referrer chain and accrues the per-level
// commission shares. It implements the staking engine's ClaimRecorder
// contract; users without referrers are a no-op.
func (e *Engine) RecordClaim(poolID string, user crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	current := user
	for level, bps := range e.params.LevelBps {
		referrer, ok, err := e.state.ReferrerOf(current)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
		share.Quo(share, basisPoints)
		if share.Sign() > 0 {
			accrued, err := e.state.CommissionAccrued(referrer)
			if err != nil {
				return err
			}
			if accrued == nil {
				accrued = big.NewInt(0)
			}
			if err := e.state.SetCommissionAccrued(referrer, new(big.Int).Add(accrued, share)); err != nil {
				return err
			}
			e.emit(CommissionAccrued{PoolID: poolID, Referrer: referrer, Source: user, Level: level + 1, Amount: share})
		}
		current = referrer
	}
	return nil
}

// Accrued returns the commission balance awaiting distribution for an address.
func (e *Engine) Accrued(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	accrued, err := e.state.CommissionAccrued(addr)
	if err != nil {
		return nil, err
	}
	if accrued == nil {
		return big.NewInt(0), nil
	}
	return accrued, nil
}

// CreateDistribution batches accrued commissions into a Merkle distribution.
// Each entry amount is deducted from the referrer's accrued balance; the
// returned proofs are handed to claimants off-band.
func (e *Engine) CreateDistribution(caller crypto.Address, entries []LeafEntry) (*Distribution, map[uint64][][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if caller.String() != e.owner.String() {
		return nil, nil, ErrUnauthorized
	}
	if len(entries) == 0 {
		return nil, nil, ErrInvalidProof
	}

	total := big.NewInt(0)
	for _, entry := range entries {
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			return nil, nil, ErrInsufficientAccrual
		}
		accrued, err := e.state.CommissionAccrued(entry.Account)
		if err != nil {
			return nil, nil, err
		}
		if accrued == nil || accrued.Cmp(entry.Amount) < 0 {
			return nil, nil, ErrInsufficientAccrual
		}
		if err := e.state.SetCommissionAccrued(entry.Account, new(big.Int).Sub(accrued, entry.Amount)); err != nil {
			return nil, nil, err
		}
		total.Add(total, entry.Amount)
	}

	root, proofs := BuildTree(entries)
	id, err := e.state.NextReferralDistributionID()
	if err != nil {
		return nil, nil, err
	}
	dist := &Distribution{
		ID:        id,
		Root:      root,
		Total:     total,
		CreatedAt: e.now(),
	}
	if err := e.state.PutReferralDistribution(dist); err != nil {
		return nil, nil, err
	}

	e.emit(DistributionCreated{Distribution: dist, Leaves: len(entries)})
	return dist, proofs, nil
}

// ClaimCommission settles one leaf of a distribution against its proof and
// pays the amount from the commission vault. Each leaf claims exactly once.
func (e *Engine) ClaimCommission(caller crypto.Address, distributionID, index uint64, amount *big.Int, proof [][32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidProof
	}
	dist, err := e.state.ReferralDistribution(distributionID)
	if err != nil {
		return err
	}
	if dist == nil {
		return ErrDistributionNotFound
	}
	if dist.claimed(index) {
		return ErrAlreadyClaimed
	}
	entry := LeafEntry{Index: index, Account: caller, Amount: amount}
	if !VerifyProof(dist.Root, entry, proof) {
		return ErrInvalidProof
	}

	vaultAcc, err := e.state.GetAccount(e.vault)
	if err != nil {
		return err
	}
	if vaultAcc == nil {
		vaultAcc = &types.Account{}
	}
	vaultAcc.EnsureBalances()
	if vaultAcc.BalanceECM.Cmp(amount) < 0 {
		return ErrVaultUnderfunded
	}
	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return err
	}
	if callerAcc == nil {
		callerAcc = &types.Account{}
	}
	callerAcc.EnsureBalances()

	dist.markClaimed(index)
	if err := e.state.PutReferralDistribution(dist); err != nil {
		return err
	}

	vaultAcc.BalanceECM = new(big.Int).Sub(vaultAcc.BalanceECM, amount)
	callerAcc.BalanceECM = new(big.Int).Add(callerAcc.BalanceECM, amount)
	if err := e.state.PutAccount(e.vault, vaultAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return err
	}

	e.emit(CommissionClaimed{DistributionID: distributionID, Index: index, Account: caller, Amount: new(big.Int).Set(amount)})
	return nil
}
