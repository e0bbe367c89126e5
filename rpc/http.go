package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"ecmstaking/core"
	"ecmstaking/crypto"
	"ecmstaking/native/amm"
	nativecommon "ecmstaking/native/common"
	"ecmstaking/native/referral"
	"ecmstaking/native/stake"
	"ecmstaking/native/vesting"
	"ecmstaking/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeStateConflict  = -32021
	codeCapacity       = -32022
)

type Server struct {
	node      *core.Node
	authToken string
}

// NewServer wraps the node in the JSON-RPC surface. An empty auth token
// disables every administrative method.
func NewServer(node *core.Node, authToken string) *Server {
	return &Server{node: node, authToken: strings.TrimSpace(authToken)}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Start serves the JSON-RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps engine sentinels onto the JSON-RPC error taxonomy.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusInternalServerError
	code := codeServerError
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		status, code = http.StatusServiceUnavailable, codeStateConflict
	case isValidationError(err):
		status, code = http.StatusBadRequest, codeInvalidParams
	default:
		switch stake.Classify(err) {
		case stake.KindAuthorization:
			status, code = http.StatusForbidden, codeUnauthorized
		case stake.KindValidation:
			status, code = http.StatusBadRequest, codeInvalidParams
		case stake.KindState:
			status, code = http.StatusConflict, codeStateConflict
		case stake.KindCapacity:
			status, code = http.StatusConflict, codeCapacity
		}
	}
	writeError(w, status, id, code, err.Error(), nil)
}

// isValidationError covers the collaborator sentinels outside the staking
// taxonomy.
func isValidationError(err error) bool {
	for _, sentinel := range []error{
		amm.ErrEmptyReserves, amm.ErrInvalidAmount, amm.ErrInsufficientReserve,
		vesting.ErrInvalidGrant, vesting.ErrGrantNotFound, vesting.ErrNotBeneficiary, vesting.ErrVaultUnderfunded,
		referral.ErrSelfReferral, referral.ErrAlreadyReferred, referral.ErrInvalidReferrer,
		referral.ErrDistributionNotFound, referral.ErrInvalidProof, referral.ErrAlreadyClaimed,
		referral.ErrInsufficientAccrual, referral.ErrVaultUnderfunded,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r, req)
	observability.ModuleMetrics().Observe(methodModule(req.Method), req.Method, recorder.status, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func methodModule(method string) string {
	if idx := strings.Index(method, "_"); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "stake_buyAndStake":
		s.handleBuyAndStake(w, r, req)
	case "stake_buyAndStakeExact":
		s.handleBuyAndStakeExact(w, r, req)
	case "stake_stake":
		s.handleStake(w, r, req)
	case "stake_claim":
		s.handleClaim(w, r, req)
	case "stake_unstake":
		s.handleUnstake(w, r, req)
	case "stake_pendingReward":
		s.handlePendingReward(w, r, req)
	case "stake_getPool":
		s.handleGetPool(w, r, req)
	case "stake_listPools":
		s.handleListPools(w, r, req)
	case "stake_getPosition":
		s.handleGetPosition(w, r, req)
	case "stake_getBalance":
		s.handleGetBalance(w, r, req)
	case "vesting_grants":
		s.handleVestingGrants(w, r, req)
	case "vesting_claimable":
		s.handleVestingClaimable(w, r, req)
	case "vesting_claim":
		s.handleVestingClaim(w, r, req)
	case "referral_register":
		s.handleReferralRegister(w, r, req)
	case "referral_accrued":
		s.handleReferralAccrued(w, r, req)
	case "referral_claim":
		s.handleReferralClaim(w, r, req)
	case "referral_createDistribution":
		s.handleAuthed(w, r, req, s.handleReferralCreateDistribution)
	case "admin_createPool":
		s.handleAuthed(w, r, req, s.handleCreatePool)
	case "admin_allocateForSale":
		s.handleAuthed(w, r, req, s.handleAllocateForSale)
	case "admin_allocateForRewards":
		s.handleAuthed(w, r, req, s.handleAllocateForRewards)
	case "admin_setLinearRate":
		s.handleAuthed(w, r, req, s.handleSetLinearRate)
	case "admin_setTrancheSchedule":
		s.handleAuthed(w, r, req, s.handleSetTrancheSchedule)
	case "admin_setStakeDurations":
		s.handleAuthed(w, r, req, s.handleSetStakeDurations)
	case "admin_setPenalty":
		s.handleAuthed(w, r, req, s.handleSetPenalty)
	case "admin_setVestingPolicy":
		s.handleAuthed(w, r, req, s.handleSetVestingPolicy)
	case "admin_setPurchaseLimits":
		s.handleAuthed(w, r, req, s.handleSetPurchaseLimits)
	case "admin_setActive":
		s.handleAuthed(w, r, req, s.handleSetActive)
	case "admin_transferOwnership":
		s.handleAuthed(w, r, req, s.handleTransferOwnership)
	case "admin_transferPoolOwnership":
		s.handleAuthed(w, r, req, s.handleTransferPoolOwnership)
	case "admin_moveLiquidity":
		s.handleAuthed(w, r, req, s.handleMoveLiquidity)
	case "admin_reportLiquidityAdded":
		s.handleAuthed(w, r, req, s.handleReportLiquidityAdded)
	case "admin_refillOwed":
		s.handleAuthed(w, r, req, s.handleRefillOwed)
	case "admin_emergencyRecover":
		s.handleAuthed(w, r, req, s.handleEmergencyRecover)
	case "admin_setPairReserves":
		s.handleAuthed(w, r, req, s.handleSetPairReserves)
	case "admin_credit":
		s.handleAuthed(w, r, req, s.handleCredit)
	case "admin_setPaused":
		s.handleAuthed(w, r, req, s.handleSetPaused)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) handleAuthed(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// --- shared param helpers ---

func singleParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value, field string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr, nil
}

func parseAmount(value, field string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: not a base-10 integer", field)
	}
	return amount, nil
}

func parseOptionalAmount(value, field string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(value, field)
}
