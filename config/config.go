package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"ecmstaking/crypto"
)

// Config carries the service-level settings for the staking daemon. Pool
// parameters live in state and are managed over RPC, not here.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`

	// OwnerAddress controls pool creation and global administration.
	OwnerAddress string `toml:"OwnerAddress"`
	// ModuleAddress is the vault holding staked principal, sale inventory and
	// collected proceeds.
	ModuleAddress string `toml:"ModuleAddress"`
	// VestingVaultAddress escrows vested reward payouts.
	VestingVaultAddress string `toml:"VestingVaultAddress"`
	// ReferralVaultAddress pays settled referral commissions.
	ReferralVaultAddress string `toml:"ReferralVaultAddress"`

	// RPCAuthToken is the bearer token required on administrative RPC methods.
	// Leaving it empty disables those methods entirely.
	RPCAuthToken string `toml:"RPCAuthToken"`

	// ReferralLevelBps lists the per-level commission shares in basis points,
	// direct referrer first.
	ReferralLevelBps []uint64 `toml:"ReferralLevelBps"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.GatewayAddress) == "" {
		c.GatewayAddress = ":8081"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./ecm-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.ReferralLevelBps == nil {
		c.ReferralLevelBps = []uint64{}
	}
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"OwnerAddress":         c.OwnerAddress,
		"ModuleAddress":        c.ModuleAddress,
		"VestingVaultAddress":  c.VestingVaultAddress,
		"ReferralVaultAddress": c.ReferralVaultAddress,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s is required", name)
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	var totalBps uint64
	for _, bps := range c.ReferralLevelBps {
		totalBps += bps
	}
	if totalBps > 10_000 {
		return fmt.Errorf("config: ReferralLevelBps sum %d exceeds 10000", totalBps)
	}
	return nil
}

func decodeRequired(value string) crypto.Address {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		panic(err)
	}
	return addr
}

// Owner returns the decoded owner address. Call Validate first.
func (c *Config) Owner() crypto.Address { return decodeRequired(c.OwnerAddress) }

// Module returns the decoded module vault address. Call Validate first.
func (c *Config) Module() crypto.Address { return decodeRequired(c.ModuleAddress) }

// VestingVault returns the decoded vesting vault address. Call Validate first.
func (c *Config) VestingVault() crypto.Address { return decodeRequired(c.VestingVaultAddress) }

// ReferralVault returns the decoded referral vault address. Call Validate first.
func (c *Config) ReferralVault() crypto.Address { return decodeRequired(c.ReferralVaultAddress) }

// createDefault creates and saves a default configuration file. The generated
// file still needs the vault addresses filled in before the service starts.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       ":8080",
		GatewayAddress:   ":8081",
		MetricsAddress:   ":9090",
		DataDir:          "./ecm-data",
		Environment:      "local",
		ReferralLevelBps: []uint64{500, 200},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
