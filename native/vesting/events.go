package vesting

import (
	"math/big"
	"strconv"

	"ecmstaking/core/types"
)

const (
	// TypeGrantCreated marks a new vesting grant.
	TypeGrantCreated = "vesting.grantCreated"
	// TypeGrantClaimed marks an unlocked tranche payout.
	TypeGrantClaimed = "vesting.grantClaimed"
)

// GrantCreated captures a freshly registered grant.
type GrantCreated struct {
	Grant *Grant
}

// EventType satisfies the Event interface.
func (GrantCreated) EventType() string { return TypeGrantCreated }

// Event converts the structured payload into a broadcastable event.
func (e GrantCreated) Event() *types.Event {
	if e.Grant == nil {
		return &types.Event{Type: TypeGrantCreated, Attributes: map[string]string{}}
	}
	return &types.Event{Type: TypeGrantCreated, Attributes: map[string]string{
		"grantId":     strconv.FormatUint(e.Grant.ID, 10),
		"beneficiary": e.Grant.Beneficiary.String(),
		"poolId":      e.Grant.PoolID,
		"amount":      formatAmount(e.Grant.Amount),
		"startTime":   strconv.FormatUint(e.Grant.StartTime, 10),
		"duration":    strconv.FormatUint(e.Grant.Duration, 10),
	}}
}

// GrantClaimed captures an unlocked tranche payout.
type GrantClaimed struct {
	Grant *Grant
	Paid  *big.Int
}

// EventType satisfies the Event interface.
func (GrantClaimed) EventType() string { return TypeGrantClaimed }

// Event converts the structured payload into a broadcastable event.
func (e GrantClaimed) Event() *types.Event {
	attrs := map[string]string{
		"paid": formatAmount(e.Paid),
	}
	if e.Grant != nil {
		attrs["grantId"] = strconv.FormatUint(e.Grant.ID, 10)
		attrs["beneficiary"] = e.Grant.Beneficiary.String()
		attrs["claimed"] = formatAmount(e.Grant.Claimed)
	}
	return &types.Event{Type: TypeGrantClaimed, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
