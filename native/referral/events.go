package referral

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"ecmstaking/core/types"
	"ecmstaking/crypto"
)

const (
	// TypeCommissionAccrued marks a per-level commission accrual.
	TypeCommissionAccrued = "referral.commissionAccrued"
	// TypeDistributionCreated marks a new Merkle distribution batch.
	TypeDistributionCreated = "referral.distributionCreated"
	// TypeCommissionClaimed marks a settled distribution leaf.
	TypeCommissionClaimed = "referral.commissionClaimed"
)

// CommissionAccrued captures a single level's commission accrual.
type CommissionAccrued struct {
	PoolID   string
	Referrer crypto.Address
	Source   crypto.Address
	Level    int
	Amount   *big.Int
}

// EventType satisfies the Event interface.
func (CommissionAccrued) EventType() string { return TypeCommissionAccrued }

// Event converts the structured payload into a broadcastable event.
func (e CommissionAccrued) Event() *types.Event {
	return &types.Event{Type: TypeCommissionAccrued, Attributes: map[string]string{
		"poolId":   e.PoolID,
		"referrer": e.Referrer.String(),
		"source":   e.Source.String(),
		"level":    strconv.Itoa(e.Level),
		"amount":   formatAmount(e.Amount),
	}}
}

// DistributionCreated captures a committed Merkle batch.
type DistributionCreated struct {
	Distribution *Distribution
	Leaves       int
}

// EventType satisfies the Event interface.
func (DistributionCreated) EventType() string { return TypeDistributionCreated }

// Event converts the structured payload into a broadcastable event.
func (e DistributionCreated) Event() *types.Event {
	attrs := map[string]string{
		"leaves": strconv.Itoa(e.Leaves),
	}
	if e.Distribution != nil {
		attrs["distributionId"] = strconv.FormatUint(e.Distribution.ID, 10)
		attrs["root"] = hex.EncodeToString(e.Distribution.Root[:])
		attrs["total"] = formatAmount(e.Distribution.Total)
	}
	return &types.Event{Type: TypeDistributionCreated, Attributes: attrs}
}

// CommissionClaimed captures a settled leaf.
type CommissionClaimed struct {
	DistributionID uint64
	Index          uint64
	Account        crypto.Address
	Amount         *big.Int
}

// EventType satisfies the Event interface.
func (CommissionClaimed) EventType() string { return TypeCommissionClaimed }

// Event converts the structured payload into a broadcastable event.
func (e CommissionClaimed) Event() *types.Event {
	return &types.Event{Type: TypeCommissionClaimed, Attributes: map[string]string{
		"distributionId": strconv.FormatUint(e.DistributionID, 10),
		"index":          strconv.FormatUint(e.Index, 10),
		"account":        e.Account.String(),
		"amount":         formatAmount(e.Amount),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
