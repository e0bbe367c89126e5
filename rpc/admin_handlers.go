package rpc

import (
	"math/big"
	"net/http"

	"ecmstaking/crypto"
	"ecmstaking/native/stake"
)

type createPoolParams struct {
	Caller           string   `json:"caller"`
	PoolID           string   `json:"poolId"`
	PairID           string   `json:"pairId"`
	AllowedDurations []uint64 `json:"allowedDurations"`
	MaxDuration      uint64   `json:"maxDuration"`
	PenaltyBps       uint64   `json:"penaltyBps"`
	PenaltyReceiver  string   `json:"penaltyReceiver,omitempty"`
	VestRewards      bool     `json:"vestRewards"`
	VestingDuration  uint64   `json:"vestingDuration"`
	MinPurchase      string   `json:"minPurchase,omitempty"`
	PurchaseQuantum  string   `json:"purchaseQuantum,omitempty"`
	Active           bool     `json:"active"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createPoolParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	policy := stake.PoolPolicy{
		AllowedDurations: params.AllowedDurations,
		MaxDuration:      params.MaxDuration,
		PenaltyBps:       params.PenaltyBps,
		VestRewards:      params.VestRewards,
		VestingDuration:  params.VestingDuration,
		Active:           params.Active,
	}
	if params.PenaltyReceiver != "" {
		receiver, err := parseAddress(params.PenaltyReceiver, "penaltyReceiver")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		policy.PenaltyReceiver = receiver
	}
	if policy.MinPurchase, err = parseOptionalAmount(params.MinPurchase, "minPurchase"); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if policy.PurchaseQuantum, err = parseOptionalAmount(params.PurchaseQuantum, "purchaseQuantum"); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.CreatePool(caller, params.PoolID, params.PairID, policy); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type poolAmountParams struct {
	Caller string `json:"caller"`
	PoolID string `json:"poolId"`
	Amount string `json:"amount"`
}

func (s *Server) poolAmountOp(w http.ResponseWriter, req *RPCRequest, op func(caller crypto.Address, poolID string, amount *big.Int) error) {
	var params poolAmountParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := op(caller, params.PoolID, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleAllocateForSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.poolAmountOp(w, req, s.node.AllocateForSale)
}

func (s *Server) handleAllocateForRewards(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.poolAmountOp(w, req, s.node.AllocateForRewards)
}

func (s *Server) handleRefillOwed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.poolAmountOp(w, req, s.node.RefillOwed)
}

func (s *Server) handleReportLiquidityAdded(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.poolAmountOp(w, req, s.node.ReportLiquidityAdded)
}

type poolOnlyParams struct {
	Caller string `json:"caller"`
	PoolID string `json:"poolId"`
}

func (s *Server) handleSetLinearRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params poolOnlyParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetLinearRate(caller, params.PoolID); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type trancheScheduleParams struct {
	Caller   string   `json:"caller"`
	PoolID   string   `json:"poolId"`
	Kind     string   `json:"kind"`
	Tranches []string `json:"tranches"`
	Anchor   uint64   `json:"anchor,omitempty"`
}

func (s *Server) handleSetTrancheSchedule(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params trancheScheduleParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var kind stake.ScheduleKind
	switch params.Kind {
	case "monthly":
		kind = stake.ScheduleMonthly
	case "weekly":
		kind = stake.ScheduleWeekly
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "kind must be monthly or weekly", params.Kind)
		return
	}
	tranches := make([]*big.Int, 0, len(params.Tranches))
	for _, raw := range params.Tranches {
		amount, err := parseAmount(raw, "tranche")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		tranches = append(tranches, amount)
	}
	if err := s.node.SetTrancheSchedule(caller, params.PoolID, kind, tranches, params.Anchor); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type stakeDurationsParams struct {
	Caller      string   `json:"caller"`
	PoolID      string   `json:"poolId"`
	Durations   []uint64 `json:"durations"`
	MaxDuration uint64   `json:"maxDuration"`
}

func (s *Server) handleSetStakeDurations(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params stakeDurationsParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetStakeDurations(caller, params.PoolID, params.Durations, params.MaxDuration); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type setPenaltyParams struct {
	Caller     string `json:"caller"`
	PoolID     string `json:"poolId"`
	PenaltyBps uint64 `json:"penaltyBps"`
	Receiver   string `json:"receiver,omitempty"`
}

func (s *Server) handleSetPenalty(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setPenaltyParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var receiver crypto.Address
	if params.Receiver != "" {
		if receiver, err = parseAddress(params.Receiver, "receiver"); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if err := s.node.SetPenalty(caller, params.PoolID, params.PenaltyBps, receiver); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type vestingPolicyParams struct {
	Caller   string `json:"caller"`
	PoolID   string `json:"poolId"`
	Vest     bool   `json:"vest"`
	Duration uint64 `json:"duration"`
}

func (s *Server) handleSetVestingPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingPolicyParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetVestingPolicy(caller, params.PoolID, params.Vest, params.Duration); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type purchaseLimitsParams struct {
	Caller          string `json:"caller"`
	PoolID          string `json:"poolId"`
	MinPurchase     string `json:"minPurchase,omitempty"`
	PurchaseQuantum string `json:"purchaseQuantum,omitempty"`
}

func (s *Server) handleSetPurchaseLimits(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params purchaseLimitsParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	minPurchase, err := parseOptionalAmount(params.MinPurchase, "minPurchase")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	quantum, err := parseOptionalAmount(params.PurchaseQuantum, "purchaseQuantum")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetPurchaseLimits(caller, params.PoolID, minPurchase, quantum); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type setActiveParams struct {
	Caller string `json:"caller"`
	PoolID string `json:"poolId"`
	Active bool   `json:"active"`
}

func (s *Server) handleSetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setActiveParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetActive(caller, params.PoolID, params.Active); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type transferOwnershipParams struct {
	Caller   string `json:"caller"`
	PoolID   string `json:"poolId,omitempty"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferOwnershipParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	newOwner, err := parseAddress(params.NewOwner, "newOwner")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TransferOwnership(caller, newOwner); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleTransferPoolOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferOwnershipParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	newOwner, err := parseAddress(params.NewOwner, "newOwner")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.TransferPoolOwnership(caller, params.PoolID, newOwner); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type moveLiquidityParams struct {
	Caller     string `json:"caller"`
	PoolID     string `json:"poolId"`
	Operator   string `json:"operator"`
	AmountECM  string `json:"amountECM,omitempty"`
	AmountUSDT string `json:"amountUSDT,omitempty"`
}

func (s *Server) handleMoveLiquidity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params moveLiquidityParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	operator, err := parseAddress(params.Operator, "operator")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ecmAmount, err := parseOptionalAmount(params.AmountECM, "amountECM")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	usdtAmount, err := parseOptionalAmount(params.AmountUSDT, "amountUSDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.MoveLiquidity(caller, params.PoolID, operator, ecmAmount, usdtAmount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type emergencyRecoverParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

func (s *Server) handleEmergencyRecover(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params emergencyRecoverParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.EmergencyRecover(caller, params.Token, amount, to); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type pairReservesParams struct {
	Caller      string `json:"caller"`
	PoolID      string `json:"poolId"`
	ReserveUSDT string `json:"reserveUSDT"`
	ReserveECM  string `json:"reserveECM"`
}

func (s *Server) handleSetPairReserves(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params pairReservesParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	reserveUSDT, err := parseAmount(params.ReserveUSDT, "reserveUSDT")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	reserveECM, err := parseAmount(params.ReserveECM, "reserveECM")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetPairReserves(caller, params.PoolID, reserveUSDT, reserveECM); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type creditParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

func (s *Server) handleCredit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params creditParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.Credit(caller, addr, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setPausedParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.SetPaused(caller, params.Module, params.Paused); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
