package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"ecmstaking/core/events"
	"ecmstaking/core/types"
	"ecmstaking/crypto"
	"ecmstaking/native/amm"
	"ecmstaking/native/referral"
	"ecmstaking/native/stake"
	"ecmstaking/native/vesting"
)

// Key layout. Values are JSON; big integers marshal as decimal strings via
// math/big, so no precision is lost in persistence.
const (
	keyPoolIndex       = "pools"
	keyPoolPrefix      = "pool/"
	keyPositionPrefix  = "pos/"
	keyAccountPrefix   = "acct/"
	keyPairPrefix      = "pair/"
	keyVestGrantPrefix = "vest/grant/"
	keyVestIndexPrefix = "vest/index/"
	keyVestSeq         = "vest/seq"
	keyRefReferrer     = "ref/referrer/"
	keyRefAccrued      = "ref/accrued/"
	keyRefDistPrefix   = "ref/dist/"
	keyRefSeq          = "ref/seq"
	keyEngineOwner     = "owner"
)

func addrKey(addr crypto.Address) string {
	return hex.EncodeToString(addr.Bytes())
}

// Tx is a read-through write overlay over the backing store. Reads consult
// uncommitted writes first; commit flushes every buffered write, so a failed
// operation leaves the store untouched.
type Tx struct {
	manager *Manager
	writes  map[string][]byte
	order   []string
	events  []*types.Event
}

func newTx(m *Manager) *Tx {
	return &Tx{
		manager: m,
		writes:  make(map[string][]byte),
	}
}

func (tx *Tx) get(key string) ([]byte, bool, error) {
	if buf, ok := tx.writes[key]; ok {
		return buf, true, nil
	}
	ok, err := tx.manager.db.Has([]byte(key))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	buf, err := tx.manager.db.Get([]byte(key))
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (tx *Tx) put(key string, value []byte) {
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = value
}

func (tx *Tx) getJSON(key string, out interface{}) (bool, error) {
	buf, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (tx *Tx) putJSON(key string, value interface{}) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	tx.put(key, buf)
	return nil
}

func (tx *Tx) commit() error {
	for _, key := range tx.order {
		if err := tx.manager.db.Put([]byte(key), tx.writes[key]); err != nil {
			return fmt.Errorf("state: commit %s: %w", key, err)
		}
	}
	return nil
}

// Emit buffers a typed event; buffered events reach the manager's sink only
// after the transaction commits.
func (tx *Tx) Emit(ev events.Event) {
	type converter interface {
		Event() *types.Event
	}
	if ev == nil {
		return
	}
	if conv, ok := ev.(converter); ok {
		tx.events = append(tx.events, conv.Event())
		return
	}
	tx.events = append(tx.events, &types.Event{Type: ev.EventType()})
}

// Events returns the events buffered so far, oldest first.
func (tx *Tx) Events() []*types.Event {
	return tx.events
}

// EngineOwner returns the persisted administrative owner, if any was stored.
func (tx *Tx) EngineOwner() (crypto.Address, bool, error) {
	var encoded string
	ok, err := tx.getJSON(keyEngineOwner, &encoded)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	owner, err := crypto.DecodeAddress(encoded)
	if err != nil {
		return crypto.Address{}, false, fmt.Errorf("state: decode owner: %w", err)
	}
	return owner, true, nil
}

// SetEngineOwner persists the administrative owner across restarts.
func (tx *Tx) SetEngineOwner(owner crypto.Address) error {
	return tx.putJSON(keyEngineOwner, owner.String())
}

// --- accounts ---

func (tx *Tx) GetAccount(addr crypto.Address) (*types.Account, error) {
	account := new(types.Account)
	ok, err := tx.getJSON(keyAccountPrefix+addrKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	account.EnsureBalances()
	return account, nil
}

func (tx *Tx) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %s", addr.String())
	}
	account.EnsureBalances()
	return tx.putJSON(keyAccountPrefix+addrKey(addr), account)
}

// --- staking pools and positions ---

func (tx *Tx) GetPool(poolID string) (*stake.Pool, error) {
	pool := new(stake.Pool)
	ok, err := tx.getJSON(keyPoolPrefix+poolID, pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pool, nil
}

func (tx *Tx) PutPool(poolID string, pool *stake.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool %q", poolID)
	}
	ids, err := tx.PoolIDs()
	if err != nil {
		return err
	}
	known := false
	for _, id := range ids {
		if id == poolID {
			known = true
			break
		}
	}
	if !known {
		ids = append(ids, poolID)
		sort.Strings(ids)
		if err := tx.putJSON(keyPoolIndex, ids); err != nil {
			return err
		}
	}
	return tx.putJSON(keyPoolPrefix+poolID, pool)
}

func (tx *Tx) PoolIDs() ([]string, error) {
	var ids []string
	if _, err := tx.getJSON(keyPoolIndex, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (tx *Tx) GetPosition(poolID string, addr crypto.Address) (*stake.UserPosition, error) {
	pos := new(stake.UserPosition)
	ok, err := tx.getJSON(keyPositionPrefix+poolID+"/"+addrKey(addr), pos)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return pos, nil
}

func (tx *Tx) PutPosition(poolID string, pos *stake.UserPosition) error {
	if pos == nil {
		return fmt.Errorf("state: nil position in pool %q", poolID)
	}
	return tx.putJSON(keyPositionPrefix+poolID+"/"+addrKey(pos.Address), pos)
}

// --- AMM pair reserves ---

type storedReserves struct {
	ReserveIn  *big.Int `json:"reserveIn"`
	ReserveOut *big.Int `json:"reserveOut"`
}

// PairReserves implements the amm.PairSource contract.
func (tx *Tx) PairReserves(poolID string) (amm.Reserves, error) {
	var stored storedReserves
	ok, err := tx.getJSON(keyPairPrefix+poolID, &stored)
	if err != nil {
		return amm.Reserves{}, err
	}
	if !ok {
		return amm.Reserves{}, amm.ErrEmptyReserves
	}
	return amm.Reserves{ReserveIn: stored.ReserveIn, ReserveOut: stored.ReserveOut}, nil
}

// SetPairReserves records the pricing pair snapshot for a pool.
func (tx *Tx) SetPairReserves(poolID string, reserves amm.Reserves) error {
	return tx.putJSON(keyPairPrefix+poolID, storedReserves{
		ReserveIn:  reserves.ReserveIn,
		ReserveOut: reserves.ReserveOut,
	})
}

// --- vesting ---

func (tx *Tx) VestingGrant(id uint64) (*vesting.Grant, error) {
	grant := new(vesting.Grant)
	ok, err := tx.getJSON(keyVestGrantPrefix+strconv.FormatUint(id, 10), grant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return grant, nil
}

func (tx *Tx) PutVestingGrant(grant *vesting.Grant) error {
	if grant == nil {
		return fmt.Errorf("state: nil vesting grant")
	}
	return tx.putJSON(keyVestGrantPrefix+strconv.FormatUint(grant.ID, 10), grant)
}

func (tx *Tx) VestingGrantIDs(beneficiary crypto.Address) ([]uint64, error) {
	var ids []uint64
	if _, err := tx.getJSON(keyVestIndexPrefix+addrKey(beneficiary), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (tx *Tx) IndexVestingGrant(beneficiary crypto.Address, id uint64) error {
	ids, err := tx.VestingGrantIDs(beneficiary)
	if err != nil {
		return err
	}
	for _, known := range ids {
		if known == id {
			return nil
		}
	}
	ids = append(ids, id)
	return tx.putJSON(keyVestIndexPrefix+addrKey(beneficiary), ids)
}

func (tx *Tx) NextVestingGrantID() (uint64, error) {
	return tx.nextSequence(keyVestSeq)
}

// --- referral ---

func (tx *Tx) ReferrerOf(user crypto.Address) (crypto.Address, bool, error) {
	var encoded string
	ok, err := tx.getJSON(keyRefReferrer+addrKey(user), &encoded)
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	referrer, err := crypto.DecodeAddress(encoded)
	if err != nil {
		return crypto.Address{}, false, fmt.Errorf("state: decode referrer of %s: %w", user.String(), err)
	}
	return referrer, true, nil
}

func (tx *Tx) SetReferrer(user, referrer crypto.Address) error {
	return tx.putJSON(keyRefReferrer+addrKey(user), referrer.String())
}

func (tx *Tx) CommissionAccrued(addr crypto.Address) (*big.Int, error) {
	accrued := new(big.Int)
	ok, err := tx.getJSON(keyRefAccrued+addrKey(addr), accrued)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return accrued, nil
}

func (tx *Tx) SetCommissionAccrued(addr crypto.Address, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return tx.putJSON(keyRefAccrued+addrKey(addr), amount)
}

func (tx *Tx) ReferralDistribution(id uint64) (*referral.Distribution, error) {
	dist := new(referral.Distribution)
	ok, err := tx.getJSON(keyRefDistPrefix+strconv.FormatUint(id, 10), dist)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return dist, nil
}

func (tx *Tx) PutReferralDistribution(dist *referral.Distribution) error {
	if dist == nil {
		return fmt.Errorf("state: nil referral distribution")
	}
	return tx.putJSON(keyRefDistPrefix+strconv.FormatUint(dist.ID, 10), dist)
}

func (tx *Tx) NextReferralDistributionID() (uint64, error) {
	return tx.nextSequence(keyRefSeq)
}

func (tx *Tx) nextSequence(key string) (uint64, error) {
	var next uint64 = 1
	if _, err := tx.getJSON(key, &next); err != nil {
		return 0, err
	}
	if err := tx.putJSON(key, next+1); err != nil {
		return 0, err
	}
	return next, nil
}
