package vesting

import (
	"errors"
	"math/big"
	"time"

	"ecmstaking/core/events"
	"ecmstaking/core/types"
	"ecmstaking/crypto"
	nativecommon "ecmstaking/native/common"
)

const moduleName = "vesting"

var (
	errNilState = errors.New("vesting engine: state not configured")

	// ErrInvalidGrant indicates malformed grant parameters.
	ErrInvalidGrant = errors.New("vesting engine: invalid grant parameters")
	// ErrGrantNotFound indicates an unknown grant identifier.
	ErrGrantNotFound = errors.New("vesting engine: grant not found")
	// ErrNotBeneficiary indicates the caller does not own the grant.
	ErrNotBeneficiary = errors.New("vesting engine: caller is not the beneficiary")
	// ErrVaultUnderfunded indicates the vault cannot cover the claim.
	ErrVaultUnderfunded = errors.New("vesting engine: vault underfunded")
)

type engineState interface {
	VestingGrant(id uint64) (*Grant, error)
	PutVestingGrant(grant *Grant) error
	VestingGrantIDs(beneficiary crypto.Address) ([]uint64, error)
	IndexVestingGrant(beneficiary crypto.Address, id uint64) error
	NextVestingGrantID() (uint64, error)
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine manages linearly-unlocking grants paid out of a dedicated vault
// account. The staking engine funds the vault before creating a grant.
type Engine struct {
	state   engineState
	emitter events.Emitter
	vault   crypto.Address
	pauses  nativecommon.PauseView
	nowFn   func() uint64
}

// NewEngine constructs a vesting engine custodying grants at the vault
// address.
func NewEngine(vault crypto.Address) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
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

// Vault returns the custody address grants are paid from.
func (e *Engine) Vault() crypto.Address { return e.vault }

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

// CreateGrant registers a new linear grant and returns its identifier. The
// granted value must already sit on the vault account.
func (e *Engine) CreateGrant(beneficiary crypto.Address, amount *big.Int, startTime, duration uint64, token, poolID string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 || duration == 0 || beneficiary.IsZero() {
		return 0, ErrInvalidGrant
	}

	id, err := e.state.NextVestingGrantID()
	if err != nil {
		return 0, err
	}
	grant := &Grant{
		ID:          id,
		Beneficiary: beneficiary,
		PoolID:      poolID,
		Token:       token,
		Amount:      new(big.Int).Set(amount),
		Claimed:     big.NewInt(0),
		StartTime:   startTime,
		Duration:    duration,
		CreatedAt:   e.now(),
	}
	if err := e.state.PutVestingGrant(grant); err != nil {
		return 0, err
	}
	if err := e.state.IndexVestingGrant(beneficiary, id); err != nil {
		return 0, err
	}

	e.emit(GrantCreated{Grant: grant})
	return id, nil
}

// Grant loads a single grant by identifier.
func (e *Engine) Grant(id uint64) (*Grant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	grant, err := e.state.VestingGrant(id)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, ErrGrantNotFound
	}
	ensureGrantDefaults(grant)
	return grant, nil
}

// GrantsOf lists the caller's grants.
func (e *Engine) GrantsOf(beneficiary crypto.Address) ([]*Grant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.VestingGrantIDs(beneficiary)
	if err != nil {
		return nil, err
	}
	grants := make([]*Grant, 0, len(ids))
	for _, id := range ids {
		grant, err := e.Grant(id)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

// Claimable projects the unlocked, unclaimed value of a grant at the engine
// clock.
func (e *Engine) Claimable(id uint64) (*big.Int, error) {
	grant, err := e.Grant(id)
	if err != nil {
		return nil, err
	}
	return grant.Claimable(e.now()), nil
}

// Claim pays the caller's unlocked tranche from the vault. Claiming with
// nothing unlocked succeeds with a zero payout.
func (e *Engine) Claim(caller crypto.Address, id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	grant, err := e.Grant(id)
	if err != nil {
		return nil, err
	}
	if grant.Beneficiary.String() != caller.String() {
		return nil, ErrNotBeneficiary
	}

	now := e.now()
	claimable := grant.Claimable(now)
	if claimable.Sign() == 0 {
		return big.NewInt(0), nil
	}

	vaultAcc, err := e.state.GetAccount(e.vault)
	if err != nil {
		return nil, err
	}
	if vaultAcc == nil {
		vaultAcc = &types.Account{}
	}
	vaultAcc.EnsureBalances()
	if vaultAcc.BalanceECM.Cmp(claimable) < 0 {
		return nil, ErrVaultUnderfunded
	}
	callerAcc, err := e.state.GetAccount(caller)
	if err != nil {
		return nil, err
	}
	if callerAcc == nil {
		callerAcc = &types.Account{}
	}
	callerAcc.EnsureBalances()

	grant.Claimed = new(big.Int).Add(grant.Claimed, claimable)
	if err := e.state.PutVestingGrant(grant); err != nil {
		return nil, err
	}

	vaultAcc.BalanceECM = new(big.Int).Sub(vaultAcc.BalanceECM, claimable)
	callerAcc.BalanceECM = new(big.Int).Add(callerAcc.BalanceECM, claimable)
	if err := e.state.PutAccount(e.vault, vaultAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(caller, callerAcc); err != nil {
		return nil, err
	}

	e.emit(GrantClaimed{Grant: grant, Paid: new(big.Int).Set(claimable)})
	return claimable, nil
}
