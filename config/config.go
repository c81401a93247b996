package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	coretypes "vaultcore/core/types"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Environment   string `toml:"Environment"`

	Log         LogConfig         `toml:"log"`
	Ledger      LedgerConfig      `toml:"ledger"`
	Accrual     AccrualConfig     `toml:"accrual"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Keeper      KeeperConfig      `toml:"keeper"`

	Collateral []CollateralConfig `toml:"collateral"`
}

type LogConfig struct {
	FilePath   string `toml:"FilePath"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type LedgerConfig struct {
	AdminAccount     string `toml:"AdminAccount"`
	GlobalCeilingRad string `toml:"GlobalCeilingRad"`
}

type AccrualConfig struct {
	BaseRatePerSecondRay string `toml:"BaseRatePerSecondRay"`
}

type LiquidationConfig struct {
	AuctionDurationSeconds uint64 `toml:"AuctionDurationSeconds"`
}

// KeeperConfig drives the optional background loop that folds fees onto every
// configured class at a fixed cadence.
type KeeperConfig struct {
	Enabled         bool   `toml:"Enabled"`
	IntervalSeconds uint64 `toml:"IntervalSeconds"`
}

// CollateralConfig bootstraps one collateral class across all three engines at
// startup. Magnitudes travel as base-10 strings because Ray and Rad values
// overflow TOML integers.
type CollateralConfig struct {
	Symbol              string `toml:"Symbol"`
	SpotRay             string `toml:"SpotRay"`
	LineRad             string `toml:"LineRad"`
	DustRad             string `toml:"DustRad"`
	DutyPerSecondRay    string `toml:"DutyPerSecondRay"`
	PenaltyFactorWad    string `toml:"PenaltyFactorWad"`
	StartPriceBufferRay string `toml:"StartPriceBufferRay"`
}

// maxRateStep bounds how far a per-second rate may exceed one ray: one part
// per million per second. Beyond that, a years-long catch-up fold makes the
// compounding exponent balloon to enormous integers.
var maxRateStep = new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Liquidation.AuctionDurationSeconds == 0 {
		cfg.Liquidation.AuctionDurationSeconds = 3600
	}
	if cfg.Keeper.IntervalSeconds == 0 {
		cfg.Keeper.IntervalSeconds = 60
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8545",
		DataDir:       "./vault-data",
		Environment:   "local",
		Liquidation:   LiquidationConfig{AuctionDurationSeconds: 3600},
		Keeper:        KeeperConfig{Enabled: false, IntervalSeconds: 60},
		Collateral:    []CollateralConfig{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}

// ParseBig decodes an optional base-10 magnitude. Empty strings decode to nil
// so callers can fall back to engine defaults.
func ParseBig(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return parsed, nil
}

// Validate checks the magnitudes that would otherwise surface as engine
// rejections long after startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if c.Liquidation.AuctionDurationSeconds == 0 {
		return fmt.Errorf("liquidation.AuctionDurationSeconds must be positive")
	}
	if c.Keeper.Enabled && c.Keeper.IntervalSeconds == 0 {
		return fmt.Errorf("keeper.IntervalSeconds must be positive when the keeper is enabled")
	}
	if _, err := ParseBig(c.Ledger.GlobalCeilingRad); err != nil {
		return fmt.Errorf("ledger.GlobalCeilingRad: %w", err)
	}
	base, err := ParseBig(c.Accrual.BaseRatePerSecondRay)
	if err != nil {
		return fmt.Errorf("accrual.BaseRatePerSecondRay: %w", err)
	}
	if base != nil && base.Sign() < 0 {
		return fmt.Errorf("accrual.BaseRatePerSecondRay must not be negative")
	}
	if base != nil && base.Cmp(maxRateStep) > 0 {
		return fmt.Errorf("accrual.BaseRatePerSecondRay exceeds the per-second growth bound")
	}

	seen := make(map[string]struct{}, len(c.Collateral))
	for i := range c.Collateral {
		entry := &c.Collateral[i]
		symbol := strings.TrimSpace(entry.Symbol)
		if symbol == "" {
			return fmt.Errorf("collateral[%d]: Symbol required", i)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("collateral[%d]: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = struct{}{}

		if err := entry.validate(symbol); err != nil {
			return err
		}
	}
	return nil
}

func (c *CollateralConfig) validate(symbol string) error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"SpotRay", c.SpotRay},
		{"LineRad", c.LineRad},
		{"DustRad", c.DustRad},
	} {
		parsed, err := ParseBig(field.value)
		if err != nil {
			return fmt.Errorf("collateral %s: %s: %w", symbol, field.name, err)
		}
		if parsed != nil && parsed.Sign() < 0 {
			return fmt.Errorf("collateral %s: %s must not be negative", symbol, field.name)
		}
	}

	duty, err := ParseBig(c.DutyPerSecondRay)
	if err != nil {
		return fmt.Errorf("collateral %s: DutyPerSecondRay: %w", symbol, err)
	}
	if duty != nil && duty.Cmp(coretypes.Ray) < 0 {
		return fmt.Errorf("collateral %s: DutyPerSecondRay must be at least 1 ray", symbol)
	}
	if duty != nil && new(big.Int).Sub(duty, coretypes.Ray).Cmp(maxRateStep) > 0 {
		return fmt.Errorf("collateral %s: DutyPerSecondRay exceeds the per-second growth bound", symbol)
	}

	penalty, err := ParseBig(c.PenaltyFactorWad)
	if err != nil {
		return fmt.Errorf("collateral %s: PenaltyFactorWad: %w", symbol, err)
	}
	if penalty != nil && penalty.Cmp(coretypes.Wad) < 0 {
		return fmt.Errorf("collateral %s: PenaltyFactorWad must be at least 1 wad", symbol)
	}

	buffer, err := ParseBig(c.StartPriceBufferRay)
	if err != nil {
		return fmt.Errorf("collateral %s: StartPriceBufferRay: %w", symbol, err)
	}
	if buffer != nil && buffer.Cmp(coretypes.Ray) < 0 {
		return fmt.Errorf("collateral %s: StartPriceBufferRay must be at least 1 ray", symbol)
	}
	return nil
}
