package types

import "math/big"

// Account is the ledger entry for a single address. Balances are denominated
// in wei-style base units and kept as big integers so the staking engine can
// operate without precision loss.
type Account struct {
	Nonce uint64 `json:"nonce"`
	// BalanceUSDT is the purchase-currency balance available for buys.
	BalanceUSDT *big.Int `json:"balanceUSDT"`
	// BalanceECM is the staked-token balance available for staking or
	// withdrawal.
	BalanceECM *big.Int `json:"balanceECM"`
}

// EnsureBalances normalises nil balance fields so callers can operate on the
// account without guarding every arithmetic step.
func (a *Account) EnsureBalances() {
	if a == nil {
		return
	}
	if a.BalanceUSDT == nil {
		a.BalanceUSDT = big.NewInt(0)
	}
	if a.BalanceECM == nil {
		a.BalanceECM = big.NewInt(0)
	}
}
