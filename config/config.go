package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default cross-chain selectors: the marketplace chain answers on
// ChainSelector; relayed purchases arrive from SourceChainSelector.
const (
	DefaultChainSelector       uint64 = 10344971235874465080
	DefaultSourceChainSelector uint64 = 16015286601757825753
)

// DefaultMinJudgeFee is the minimum native fee attached to a dispute
// (0.005 units at 18 decimals).
const DefaultMinJudgeFee = "5000000000000000"

type Config struct {
	RPCAddress          string   `toml:"RPCAddress"`
	DataDir             string   `toml:"DataDir"`
	NetworkName         string   `toml:"NetworkName"`
	Env                 string   `toml:"Env"`
	IdentityAppID       string   `toml:"IdentityAppID"`
	MinJudgeFee         string   `toml:"MinJudgeFee"`
	ChainSelector       uint64   `toml:"ChainSelector"`
	SourceChainSelector uint64   `toml:"SourceChainSelector"`
	PausedModules       []string `toml:"PausedModules,omitempty"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
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

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ethay-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "ethay-localnet"
	}
	if strings.TrimSpace(cfg.IdentityAppID) == "" {
		cfg.IdentityAppID = "app_ethay_marketplace"
	}
	if strings.TrimSpace(cfg.MinJudgeFee) == "" {
		cfg.MinJudgeFee = DefaultMinJudgeFee
	}
	if cfg.ChainSelector == 0 {
		cfg.ChainSelector = DefaultChainSelector
	}
	if cfg.SourceChainSelector == 0 {
		cfg.SourceChainSelector = DefaultSourceChainSelector
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if _, ok := new(big.Int).SetString(c.MinJudgeFee, 10); !ok {
		return fmt.Errorf("config: MinJudgeFee %q is not a base-10 integer", c.MinJudgeFee)
	}
	if c.ChainSelector == c.SourceChainSelector {
		return fmt.Errorf("config: ChainSelector and SourceChainSelector must differ")
	}
	return nil
}

// MinJudgeFeeAmount returns the parsed minimum dispute fee.
func (c *Config) MinJudgeFeeAmount() *big.Int {
	fee, ok := new(big.Int).SetString(c.MinJudgeFee, 10)
	if !ok {
		return big.NewInt(0)
	}
	return fee
}
