package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ecmstaking/crypto"
)

func testAddrString(fill byte) string {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.MustNewAddress(crypto.ECMPrefix, b).String()
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAddresses(t *testing.T) {
	owner := testAddrString(0x01)
	module := testAddrString(0x02)
	vesting := testAddrString(0x03)
	referral := testAddrString(0x04)
	path := writeConfig(t, fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
OwnerAddress = "%s"
ModuleAddress = "%s"
VestingVaultAddress = "%s"
ReferralVaultAddress = "%s"
ReferralLevelBps = [500, 200]
`, owner, module, vesting, referral))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected rpc address %q", cfg.RPCAddress)
	}
	if got := cfg.Owner().String(); got != owner {
		t.Fatalf("owner mismatch: %s != %s", got, owner)
	}
	if got := cfg.Module().String(); got != module {
		t.Fatalf("module mismatch: %s != %s", got, module)
	}
	if len(cfg.ReferralLevelBps) != 2 || cfg.ReferralLevelBps[0] != 500 {
		t.Fatalf("unexpected level bps %v", cfg.ReferralLevelBps)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`OwnerAddress = "%s"
ModuleAddress = "%s"
VestingVaultAddress = "%s"
ReferralVaultAddress = "%s"
`, testAddrString(0x01), testAddrString(0x02), testAddrString(0x03), testAddrString(0x04)))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GatewayAddress != ":8081" {
		t.Fatalf("gateway default not applied: %q", cfg.GatewayAddress)
	}
	if cfg.DataDir != "./ecm-data" {
		t.Fatalf("datadir default not applied: %q", cfg.DataDir)
	}
	if cfg.Environment != "local" {
		t.Fatalf("environment default not applied: %q", cfg.Environment)
	}
}

func TestLoadRejectsMissingVaults(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`OwnerAddress = "%s"
`, testAddrString(0x01)))
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing vault addresses")
	}
}

func TestLoadRejectsInvalidAddress(t *testing.T) {
	path := writeConfig(t, `OwnerAddress = "not-an-address"
ModuleAddress = "also-bad"
VestingVaultAddress = "bad"
ReferralVaultAddress = "bad"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestLoadRejectsExcessiveLevelBps(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`OwnerAddress = "%s"
ModuleAddress = "%s"
VestingVaultAddress = "%s"
ReferralVaultAddress = "%s"
ReferralLevelBps = [9000, 2000]
`, testAddrString(0x01), testAddrString(0x02), testAddrString(0x03), testAddrString(0x04)))
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for level bps above 10000")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected default rpc address %q", cfg.RPCAddress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}
