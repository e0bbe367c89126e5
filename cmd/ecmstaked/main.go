package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecmstaking/config"
	"ecmstaking/core"
	"ecmstaking/gateway"
	"ecmstaking/observability/logging"
	"ecmstaking/rpc"
	"ecmstaking/state"
	"ecmstaking/storage"
)

const (
	envEnvironment = "ECM_ENV"
	envAuthToken   = "ECM_RPC_TOKEN"
	envDataDir     = "ECM_DATA_DIR"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envEnvironment))
	logger := logging.Setup("ecmstaked", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if env == "" {
		env = cfg.Environment
	}

	dataDir := cfg.DataDir
	if override := strings.TrimSpace(os.Getenv(envDataDir)); override != "" {
		dataDir = override
	}
	authToken := cfg.RPCAuthToken
	if override := strings.TrimSpace(os.Getenv(envAuthToken)); override != "" {
		authToken = override
	}

	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		logger.Error("failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	node := core.NewNode(manager, logger, core.NodeConfig{
		Owner:         cfg.Owner(),
		Module:        cfg.Module(),
		VestingVault:  cfg.VestingVault(),
		ReferralVault: cfg.ReferralVault(),
		ReferralBps:   cfg.ReferralLevelBps,
	})

	errCh := make(chan error, 3)

	rpcServer := rpc.NewServer(node, authToken)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- fmt.Errorf("rpc server: %w", rpcServer.Start(cfg.RPCAddress))
	}()

	gw := gateway.New(node, logger)
	go func() {
		logger.Info("starting gateway", "addr", cfg.GatewayAddress)
		errCh <- fmt.Errorf("gateway: %w", gw.Start(cfg.GatewayAddress))
	}()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("starting metrics endpoint", "addr", cfg.MetricsAddress)
		errCh <- fmt.Errorf("metrics: %w", server.ListenAndServe())
	}()

	logger.Info("ecmstaked started", "env", env, "dataDir", dataDir)
	err = <-errCh
	logger.Error("server exited", slog.Any("error", err))
	os.Exit(1)
}
