package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.DataDir != "./vault-data" {
		t.Fatalf("unexpected data dir: %s", cfg.DataDir)
	}
	if cfg.Liquidation.AuctionDurationSeconds != 3600 {
		t.Fatalf("unexpected auction duration: %d", cfg.Liquidation.AuctionDurationSeconds)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file on disk: %v", err)
	}

	// A second load must read the file it just wrote.
	if _, err := Load(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := writeConfig(t, `
DataDir = "/var/lib/vaultcore"

[keeper]
Enabled = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.DataDir != "/var/lib/vaultcore" {
		t.Fatalf("unexpected data dir: %s", cfg.DataDir)
	}
	if cfg.Environment != "local" {
		t.Fatalf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.Keeper.IntervalSeconds != 60 {
		t.Fatalf("unexpected keeper interval: %d", cfg.Keeper.IntervalSeconds)
	}
}

func TestLoadParsesCollateralEntries(t *testing.T) {
	path := writeConfig(t, `
[[collateral]]
Symbol = "ETH"
SpotRay = "1333330000000000000000000000000"
LineRad = "100000000000000000000000000000000000000000000000000"
DustRad = "100000000000000000000000000000000000000000000000"
DutyPerSecondRay = "1000000001000000000000000000"
PenaltyFactorWad = "1080000000000000000"
StartPriceBufferRay = "2000000000000000000000000000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Collateral) != 1 {
		t.Fatalf("expected one collateral entry, got %d", len(cfg.Collateral))
	}
	spot, err := ParseBig(cfg.Collateral[0].SpotRay)
	if err != nil {
		t.Fatalf("parse spot: %v", err)
	}
	if spot == nil || spot.Sign() <= 0 {
		t.Fatalf("unexpected spot: %v", spot)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "negative base rate",
			body: `
[accrual]
BaseRatePerSecondRay = "-5"
`,
			want: "BaseRatePerSecondRay",
		},
		{
			name: "duty below one ray",
			body: `
[[collateral]]
Symbol = "ETH"
DutyPerSecondRay = "1000"
`,
			want: "DutyPerSecondRay",
		},
		{
			name: "penalty below one wad",
			body: `
[[collateral]]
Symbol = "ETH"
PenaltyFactorWad = "1"
`,
			want: "PenaltyFactorWad",
		},
		{
			name: "buffer below one ray",
			body: `
[[collateral]]
Symbol = "ETH"
StartPriceBufferRay = "1"
`,
			want: "StartPriceBufferRay",
		},
		{
			name: "duty above growth bound",
			body: `
[[collateral]]
Symbol = "ETH"
DutyPerSecondRay = "1000010000000000000000000000"
`,
			want: "DutyPerSecondRay",
		},
		{
			name: "base rate above growth bound",
			body: `
[accrual]
BaseRatePerSecondRay = "10000000000000000000000"
`,
			want: "BaseRatePerSecondRay",
		},
		{
			name: "duplicate symbol",
			body: `
[[collateral]]
Symbol = "ETH"

[[collateral]]
Symbol = "ETH"
`,
			want: "duplicate symbol",
		},
		{
			name: "missing symbol",
			body: `
[[collateral]]
SpotRay = "1"
`,
			want: "Symbol required",
		},
		{
			name: "malformed magnitude",
			body: `
[ledger]
GlobalCeilingRad = "not-a-number"
`,
			want: "GlobalCeilingRad",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseBig(t *testing.T) {
	empty, err := ParseBig("  ")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil for blank input, got %v", empty)
	}

	value, err := ParseBig("1000000000000000000000000000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if value.BitLen() == 0 {
		t.Fatalf("expected non-zero value")
	}

	if _, err := ParseBig("0x10"); err == nil {
		t.Fatalf("expected error for non-decimal input")
	}
}
