package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Protocol policy constants live here so
// deployments can tune them without rebuilding; the engines receive them at
// wiring time and never re-read the file.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`

	// AuthTokenEnv names the environment variable holding the bearer token
	// for privileged RPC methods. The token itself never appears on disk.
	AuthTokenEnv string `toml:"AuthTokenEnv"`

	// VaultAddress and TreasuryAddress are hex-encoded 20-byte accounts.
	VaultAddress    string `toml:"VaultAddress"`
	TreasuryAddress string `toml:"TreasuryAddress"`
	Asset           string `toml:"Asset"`

	Collateral CollateralConfig `toml:"collateral"`
	BNPL       BNPLConfig       `toml:"bnpl"`
	Score      ScoreConfig      `toml:"score"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
}

// CollateralConfig bounds the staking ledger.
type CollateralConfig struct {
	MinDeposit  uint64 `toml:"MinDeposit"`
	MinLockDays uint32 `toml:"MinLockDays"`
	MaxLockDays uint32 `toml:"MaxLockDays"`
}

// BNPLConfig bounds contract creation and repayment.
type BNPLConfig struct {
	AllowedInstallments []uint8 `toml:"AllowedInstallments"`
	MinIntervalDays     uint32  `toml:"MinIntervalDays"`
	MaxIntervalDays     uint32  `toml:"MaxIntervalDays"`
	DefaultIntervalDays uint32  `toml:"DefaultIntervalDays"`
	GraceDays           uint32  `toml:"GraceDays"`
	PenaltyBps          uint32  `toml:"PenaltyBps"`
}

// ScoreConfig seeds the credit score engine.
type ScoreConfig struct {
	InitialScore       uint16 `toml:"InitialScore"`
	OnTimeBonus        int16  `toml:"OnTimeBonus"`
	LateRecoveredDelta int16  `toml:"LateRecoveredDelta"`
	CompletionBonus    int16  `toml:"CompletionBonus"`
	DefaultPenalty     int16  `toml:"DefaultPenalty"`
}

// RateLimitConfig throttles per-client RPC traffic.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Load loads the configuration from the given path. A missing file
// materialises the defaults on disk.
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

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if _, err := c.Vault(); err != nil {
		return err
	}
	if _, err := c.Treasury(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Asset) == "" {
		return fmt.Errorf("config: Asset required")
	}
	if c.Collateral.MinLockDays == 0 || c.Collateral.MaxLockDays < c.Collateral.MinLockDays {
		return fmt.Errorf("config: invalid collateral lock bounds")
	}
	if len(c.BNPL.AllowedInstallments) == 0 {
		return fmt.Errorf("config: AllowedInstallments required")
	}
	if c.BNPL.MinIntervalDays == 0 || c.BNPL.MaxIntervalDays < c.BNPL.MinIntervalDays {
		return fmt.Errorf("config: invalid interval bounds")
	}
	if c.BNPL.DefaultIntervalDays < c.BNPL.MinIntervalDays || c.BNPL.DefaultIntervalDays > c.BNPL.MaxIntervalDays {
		return fmt.Errorf("config: DefaultIntervalDays outside interval bounds")
	}
	if c.Score.InitialScore > 1000 {
		return fmt.Errorf("config: InitialScore exceeds score bound")
	}
	return nil
}

// Vault decodes the configured vault account.
func (c *Config) Vault() ([20]byte, error) {
	return decodeAddress("VaultAddress", c.VaultAddress)
}

// Treasury decodes the configured treasury account.
func (c *Config) Treasury() ([20]byte, error) {
	return decodeAddress("TreasuryAddress", c.TreasuryAddress)
}

// AuthToken resolves the privileged-method bearer token from the environment.
// Empty means privileged methods are disabled.
func (c *Config) AuthToken() string {
	if strings.TrimSpace(c.AuthTokenEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.AuthTokenEnv))
}

func decodeAddress(field, value string) ([20]byte, error) {
	var addr [20]byte
	raw := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, fmt.Errorf("config: %s: %w", field, err)
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("config: %s must be 20 bytes", field)
	}
	copy(addr[:], decoded)
	return addr, nil
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = def.ServiceName
	}
	if strings.TrimSpace(cfg.Asset) == "" {
		cfg.Asset = def.Asset
	}
	if cfg.Collateral == (CollateralConfig{}) {
		cfg.Collateral = def.Collateral
	}
	if len(cfg.BNPL.AllowedInstallments) == 0 && cfg.BNPL.GraceDays == 0 {
		cfg.BNPL = def.BNPL
	}
	if cfg.Score == (ScoreConfig{}) {
		cfg.Score = def.Score
	}
	if cfg.RateLimit == (RateLimitConfig{}) {
		cfg.RateLimit = def.RateLimit
	}
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:      ":8645",
		DataDir:         "./flexcore-data",
		ServiceName:     "flexcored",
		Environment:     "local",
		AuthTokenEnv:    "FLEXCORE_RPC_TOKEN",
		VaultAddress:    "0x" + strings.Repeat("aa", 20),
		TreasuryAddress: "0x" + strings.Repeat("bb", 20),
		Asset:           "USDC",
		Collateral: CollateralConfig{
			MinDeposit:  10_000_000,
			MinLockDays: 7,
			MaxLockDays: 365,
		},
		BNPL: BNPLConfig{
			AllowedInstallments: []uint8{3, 4, 6, 12, 18, 24, 36},
			MinIntervalDays:     15,
			MaxIntervalDays:     90,
			DefaultIntervalDays: 30,
			GraceDays:           15,
			PenaltyBps:          1_000,
		},
		Score: ScoreConfig{
			InitialScore:       500,
			OnTimeBonus:        5,
			LateRecoveredDelta: -20,
			CompletionBonus:    20,
			DefaultPenalty:     -50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
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
