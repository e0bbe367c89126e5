package rpc

import (
	"math/big"
	"net/http"

	"ecmstaking/native/stake"
)

type buyAndStakeParams struct {
	Buyer      string `json:"buyer"`
	PoolID     string `json:"poolId"`
	BudgetUSDT string `json:"budgetUSDT"`
	Duration   uint64 `json:"duration"`
}

type buyAndStakeResult struct {
	TokensECM string `json:"tokensECM"`
}

func (s *Server) handleBuyAndStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyAndStakeParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer, "buyer")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	budget, err := parseAmount(params.BudgetUSDT, "budgetUSDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokens, err := s.node.BuyAndStake(buyer, params.PoolID, budget, params.Duration)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, buyAndStakeResult{TokensECM: tokens.String()})
}

type buyAndStakeExactParams struct {
	Buyer        string `json:"buyer"`
	PoolID       string `json:"poolId"`
	TokensECM    string `json:"tokensECM"`
	MaxSpendUSDT string `json:"maxSpendUSDT,omitempty"`
	Duration     uint64 `json:"duration"`
}

type buyAndStakeExactResult struct {
	SpentUSDT string `json:"spentUSDT"`
}

func (s *Server) handleBuyAndStakeExact(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params buyAndStakeExactParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer, "buyer")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	tokens, err := parseAmount(params.TokensECM, "tokensECM")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	maxSpend, err := parseOptionalAmount(params.MaxSpendUSDT, "maxSpendUSDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	spend, err := s.node.BuyAndStakeExact(buyer, params.PoolID, tokens, maxSpend, params.Duration)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, buyAndStakeExactResult{SpentUSDT: spend.String()})
}

type stakeParams struct {
	Staker   string `json:"staker"`
	PoolID   string `json:"poolId"`
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`
}

func (s *Server) handleStake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakeParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	staker, err := parseAddress(params.Staker, "staker")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Stake(staker, params.PoolID, amount, params.Duration); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type claimParams struct {
	Staker string `json:"staker"`
	PoolID string `json:"poolId"`
}

type claimResult struct {
	Paid string `json:"paid"`
}

func (s *Server) handleClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	staker, err := parseAddress(params.Staker, "staker")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.Claim(staker, params.PoolID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimResult{Paid: paid.String()})
}

type unstakeResult struct {
	Returned string `json:"returned"`
	Reward   string `json:"reward"`
}

func (s *Server) handleUnstake(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	staker, err := parseAddress(params.Staker, "staker")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	returned, reward, err := s.node.Unstake(staker, params.PoolID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, unstakeResult{Returned: returned.String(), Reward: reward.String()})
}

type pendingRewardResult struct {
	Pending string `json:"pending"`
}

func (s *Server) handlePendingReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	staker, err := parseAddress(params.Staker, "staker")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pending, err := s.node.PendingReward(params.PoolID, staker)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, pendingRewardResult{Pending: pending.String()})
}

type poolParams struct {
	PoolID string `json:"poolId"`
}

// PoolResult is the external projection of a pool's accounting state.
type PoolResult struct {
	ID                  string   `json:"id"`
	Owner               string   `json:"owner"`
	PairID              string   `json:"pairId"`
	Active              bool     `json:"active"`
	AllocatedForSale    string   `json:"allocatedForSale"`
	Sold                string   `json:"sold"`
	CollectedUSDT       string   `json:"collectedUSDT"`
	AllocatedForRewards string   `json:"allocatedForRewards"`
	RewardsPaid         string   `json:"rewardsPaid"`
	TotalRewardsAccrued string   `json:"totalRewardsAccrued"`
	TotalStaked         string   `json:"totalStaked"`
	TotalUniqueStakers  uint64   `json:"totalUniqueStakers"`
	LifetimeStaked      string   `json:"lifetimeStaked"`
	LifetimeUnstaked    string   `json:"lifetimeUnstaked"`
	PenaltiesCollected  string   `json:"penaltiesCollected"`
	PeakStaked          string   `json:"peakStaked"`
	PenaltyBps          uint64   `json:"penaltyBps"`
	AllowedDurations    []uint64 `json:"allowedDurations"`
	MaxDuration         uint64   `json:"maxDuration"`
	VestRewards         bool     `json:"vestRewards"`
	ScheduleKind        string   `json:"scheduleKind"`
	LiquidityOutECM     string   `json:"liquidityOutECM"`
	LiquidityOwedECM    string   `json:"liquidityOwedECM"`
	LiquidityOutUSDT    string   `json:"liquidityOutUSDT"`
	LiquidityAddedECM   string   `json:"liquidityAddedECM"`
}

func NewPoolResult(pool *stake.Pool) PoolResult {
	return PoolResult{
		ID:                  pool.ID,
		Owner:               pool.Owner.String(),
		PairID:              pool.PairID,
		Active:              pool.Policy.Active,
		AllocatedForSale:    pool.AllocatedForSale.String(),
		Sold:                pool.Sold.String(),
		CollectedUSDT:       pool.CollectedUSDT.String(),
		AllocatedForRewards: pool.AllocatedForRewards.String(),
		RewardsPaid:         pool.RewardsPaid.String(),
		TotalRewardsAccrued: pool.TotalRewardsAccrued.String(),
		TotalStaked:         pool.TotalStaked.String(),
		TotalUniqueStakers:  pool.TotalUniqueStakers,
		LifetimeStaked:      pool.LifetimeStaked.String(),
		LifetimeUnstaked:    pool.LifetimeUnstaked.String(),
		PenaltiesCollected:  pool.PenaltiesCollected.String(),
		PeakStaked:          pool.PeakStaked.String(),
		PenaltyBps:          pool.Policy.PenaltyBps,
		AllowedDurations:    pool.Policy.AllowedDurations,
		MaxDuration:         pool.Policy.MaxDuration,
		VestRewards:         pool.Policy.VestRewards,
		ScheduleKind:        pool.Schedule.Kind.String(),
		LiquidityOutECM:     pool.LiquidityOutECM.String(),
		LiquidityOwedECM:    pool.LiquidityOwedECM.String(),
		LiquidityOutUSDT:    pool.LiquidityOutUSDT.String(),
		LiquidityAddedECM:   pool.LiquidityAddedECM.String(),
	}
}

func (s *Server) handleGetPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params poolParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	pool, err := s.node.Pool(params.PoolID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, NewPoolResult(pool))
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pools, err := s.node.Pools()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]PoolResult, 0, len(pools))
	for _, pool := range pools {
		results = append(results, NewPoolResult(pool))
	}
	writeResult(w, req.ID, results)
}

// PositionResult is the external projection of a user's stake position.
type PositionResult struct {
	Address             string `json:"address"`
	Staked              string `json:"staked"`
	StakeStart          uint64 `json:"stakeStart"`
	StakeDuration       uint64 `json:"stakeDuration"`
	MatureAt            uint64 `json:"matureAt"`
	CarriedPending      string `json:"carriedPending"`
	TotalStaked         string `json:"totalStaked"`
	TotalUnstaked       string `json:"totalUnstaked"`
	TotalRewardsClaimed string `json:"totalRewardsClaimed"`
	TotalPenaltiesPaid  string `json:"totalPenaltiesPaid"`
	FirstStakeAt        uint64 `json:"firstStakeAt"`
	LastActionAt        uint64 `json:"lastActionAt"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	staker, err := parseAddress(params.Staker, "staker")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pos, err := s.node.Position(params.PoolID, staker)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, PositionResult{
		Address:             pos.Address.String(),
		Staked:              pos.Staked.String(),
		StakeStart:          pos.StakeStart,
		StakeDuration:       pos.StakeDuration,
		MatureAt:            pos.MatureAt(),
		CarriedPending:      pos.CarriedPending.String(),
		TotalStaked:         pos.TotalStaked.String(),
		TotalUnstaked:       pos.TotalUnstaked.String(),
		TotalRewardsClaimed: pos.TotalRewardsClaimed.String(),
		TotalPenaltiesPaid:  pos.TotalPenaltiesPaid.String(),
		FirstStakeAt:        pos.FirstStakeAt,
		LastActionAt:        pos.LastActionAt,
	})
}

type balanceParams struct {
	Address string `json:"address"`
}

// BalanceResult is the external projection of an account's ledger balances.
type BalanceResult struct {
	Address     string   `json:"address"`
	BalanceUSDT *big.Int `json:"balanceUSDT"`
	BalanceECM  *big.Int `json:"balanceECM"`
	Nonce       uint64   `json:"nonce"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	addr, err := parseAddress(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.node.Balance(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, BalanceResult{
		Address:     addr.String(),
		BalanceUSDT: account.BalanceUSDT,
		BalanceECM:  account.BalanceECM,
		Nonce:       account.Nonce,
	})
}
