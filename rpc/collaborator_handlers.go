package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"ecmstaking/native/referral"
	"ecmstaking/native/vesting"
)

type vestingGrantsParams struct {
	Beneficiary string `json:"beneficiary"`
}

// GrantResult is the external projection of a vesting grant.
type GrantResult struct {
	ID          uint64 `json:"id"`
	Beneficiary string `json:"beneficiary"`
	PoolID      string `json:"poolId"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Claimed     string `json:"claimed"`
	StartTime   uint64 `json:"startTime"`
	Duration    uint64 `json:"duration"`
	CreatedAt   uint64 `json:"createdAt"`
}

func grantResult(grant *vesting.Grant) GrantResult {
	return GrantResult{
		ID:          grant.ID,
		Beneficiary: grant.Beneficiary.String(),
		PoolID:      grant.PoolID,
		Token:       grant.Token,
		Amount:      grant.Amount.String(),
		Claimed:     grant.Claimed.String(),
		StartTime:   grant.StartTime,
		Duration:    grant.Duration,
		CreatedAt:   grant.CreatedAt,
	}
}

func (s *Server) handleVestingGrants(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingGrantsParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	beneficiary, err := parseAddress(params.Beneficiary, "beneficiary")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	grants, err := s.node.VestingGrants(beneficiary)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	results := make([]GrantResult, 0, len(grants))
	for _, grant := range grants {
		results = append(results, grantResult(grant))
	}
	writeResult(w, req.ID, results)
}

type vestingClaimParams struct {
	Caller  string `json:"caller,omitempty"`
	GrantID uint64 `json:"grantId"`
}

func (s *Server) handleVestingClaimable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingClaimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	claimable, err := s.node.VestingClaimable(params.GrantID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"claimable": claimable.String()})
}

func (s *Server) handleVestingClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingClaimParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	paid, err := s.node.VestingClaim(caller, params.GrantID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"paid": paid.String()})
}

type referralRegisterParams struct {
	User     string `json:"user"`
	Referrer string `json:"referrer"`
}

func (s *Server) handleReferralRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralRegisterParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	user, err := parseAddress(params.User, "user")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	referrer, err := parseAddress(params.Referrer, "referrer")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.ReferralRegister(user, referrer); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleReferralAccrued(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	accrued, err := s.node.ReferralAccrued(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"accrued": accrued.String()})
}

type referralClaimParams struct {
	Caller         string   `json:"caller"`
	DistributionID uint64   `json:"distributionId"`
	Index          uint64   `json:"index"`
	Amount         string   `json:"amount"`
	Proof          []string `json:"proof"`
}

func parseProof(encoded []string) ([][32]byte, error) {
	proof := make([][32]byte, 0, len(encoded))
	for _, node := range encoded {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(node), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid proof node: %w", err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("proof node must be 32 bytes, got %d", len(raw))
		}
		var fixed [32]byte
		copy(fixed[:], raw)
		proof = append(proof, fixed)
	}
	return proof, nil
}

func (s *Server) handleReferralClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params referralClaimParams
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
	proof, err := parseProof(params.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.node.ReferralClaim(caller, params.DistributionID, params.Index, amount, proof); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

type distributionEntryParams struct {
	Index   uint64 `json:"index"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type createDistributionParams struct {
	Caller  string                    `json:"caller"`
	Entries []distributionEntryParams `json:"entries"`
}

type createDistributionResult struct {
	DistributionID uint64              `json:"distributionId"`
	Root           string              `json:"root"`
	Total          string              `json:"total"`
	Proofs         map[uint64][]string `json:"proofs"`
}

func (s *Server) handleReferralCreateDistribution(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createDistributionParams
	if err := singleParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid request parameters", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entries := make([]referral.LeafEntry, 0, len(params.Entries))
	for _, entry := range params.Entries {
		account, err := parseAddress(entry.Account, "entry account")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		amount, err := parseAmount(entry.Amount, "entry amount")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		entries = append(entries, referral.LeafEntry{Index: entry.Index, Account: account, Amount: amount})
	}
	dist, proofs, err := s.node.ReferralCreateDistribution(caller, entries)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	encoded := make(map[uint64][]string, len(proofs))
	for index, path := range proofs {
		nodes := make([]string, 0, len(path))
		for _, node := range path {
			nodes = append(nodes, hex.EncodeToString(node[:]))
		}
		encoded[index] = nodes
	}
	writeResult(w, req.ID, createDistributionResult{
		DistributionID: dist.ID,
		Root:           hex.EncodeToString(dist.Root[:]),
		Total:          dist.Total.String(),
		Proofs:         encoded,
	})
}
