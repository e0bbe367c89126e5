package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ecmstaking/core"
	"ecmstaking/crypto"
	"ecmstaking/native/stake"
	"ecmstaking/rpc"
)

// Router exposes the read-only REST facade over the node. Mutations go through
// the JSON-RPC surface only.
type Router struct {
	node   *core.Node
	logger *slog.Logger
}

// New constructs the gateway router.
func New(node *core.Node, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{node: node, logger: logger}
}

// Handler assembles the chi route tree.
func (g *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(g.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/pools", g.listPools)
		v1.Get("/pools/{poolID}", g.getPool)
		v1.Get("/pools/{poolID}/positions/{address}", g.getPosition)
		v1.Get("/pools/{poolID}/pending/{address}", g.getPending)
		v1.Get("/accounts/{address}", g.getAccount)
		v1.Get("/vesting/{address}", g.listGrants)
		v1.Get("/referrals/{address}", g.getAccrued)
	})
	return r
}

// Start serves the gateway on addr until the listener fails.
func (g *Router) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

func (g *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		g.logger.Info("gateway request",
			"method", r.Method,
			"path", r.URL.Path,
			"requestId", FromContext(r.Context()),
			"duration", time.Since(started).String(),
		)
	})
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *Router) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: FromContext(r.Context())})
}

func pathAddress(r *http.Request) (crypto.Address, error) {
	return crypto.DecodeAddress(chi.URLParam(r, "address"))
}

func (g *Router) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := g.node.Pools()
	if err != nil {
		g.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	results := make([]rpc.PoolResult, 0, len(pools))
	for _, pool := range pools {
		results = append(results, rpc.NewPoolResult(pool))
	}
	writeJSON(w, http.StatusOK, results)
}

func (g *Router) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := g.node.Pool(chi.URLParam(r, "poolID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stake.ErrPoolNotFound) {
			status = http.StatusNotFound
		}
		g.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.NewPoolResult(pool))
}

func (g *Router) getPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	pos, err := g.node.Position(chi.URLParam(r, "poolID"), addr)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stake.ErrPoolNotFound) {
			status = http.StatusNotFound
		}
		g.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":             pos.Address.String(),
		"staked":              pos.Staked.String(),
		"stakeStart":          pos.StakeStart,
		"stakeDuration":       pos.StakeDuration,
		"matureAt":            pos.MatureAt(),
		"totalStaked":         pos.TotalStaked.String(),
		"totalUnstaked":       pos.TotalUnstaked.String(),
		"totalRewardsClaimed": pos.TotalRewardsClaimed.String(),
		"totalPenaltiesPaid":  pos.TotalPenaltiesPaid.String(),
	})
}

func (g *Router) getPending(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	pending, err := g.node.PendingReward(chi.URLParam(r, "poolID"), addr)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stake.ErrPoolNotFound) {
			status = http.StatusNotFound
		}
		g.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pending": pending.String()})
}

func (g *Router) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := g.node.Balance(addr)
	if err != nil {
		g.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":     addr.String(),
		"balanceUSDT": account.BalanceUSDT.String(),
		"balanceECM":  account.BalanceECM.String(),
		"nonce":       account.Nonce,
	})
}

func (g *Router) listGrants(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	grants, err := g.node.VestingGrants(addr)
	if err != nil {
		g.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	results := make([]map[string]interface{}, 0, len(grants))
	for _, grant := range grants {
		results = append(results, map[string]interface{}{
			"id":        grant.ID,
			"poolId":    grant.PoolID,
			"token":     grant.Token,
			"amount":    grant.Amount.String(),
			"claimed":   grant.Claimed.String(),
			"startTime": grant.StartTime,
			"duration":  grant.Duration,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (g *Router) getAccrued(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		g.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	accrued, err := g.node.ReferralAccrued(addr)
	if err != nil {
		g.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accrued": accrued.String()})
}
