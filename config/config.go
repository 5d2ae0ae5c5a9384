package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// APIKey maps a gateway credential to the on-ledger identity it acts as.
type APIKey struct {
	Key     string `toml:"Key"`
	Secret  string `toml:"Secret"`
	Address string `toml:"Address"`
}

// Allocation seeds a token balance at boot. An optional Allowance also grants
// the custody vault the right to pull up to that amount from the account, so
// a deployment can fund trades without a prior allowance call per buyer.
type Allocation struct {
	Token     string `toml:"Token"`
	Address   string `toml:"Address"`
	Amount    string `toml:"Amount"`
	Allowance string `toml:"Allowance,omitempty"`
}

// Config captures runtime configuration for the settlement service.
type Config struct {
	ListenAddress      string `toml:"ListenAddress"`
	DataDir            string `toml:"DataDir"`
	Env                string `toml:"Env"`
	LogFile            string `toml:"LogFile"`
	LogMaxSizeMB       int    `toml:"LogMaxSizeMB"`
	SettlementToken    string `toml:"SettlementToken"`
	SecondaryToken     string `toml:"SecondaryToken"`
	FeeBps             uint32 `toml:"FeeBps"`
	ReleaseTimeoutSecs int64  `toml:"ReleaseTimeoutSecs"`
	Owner              string `toml:"Owner"`
	Operator           string `toml:"Operator"`
	FeeReceiver        string `toml:"FeeReceiver"`
	Vault              string `toml:"Vault"`
	VenueAccount       string `toml:"VenueAccount"`
	VenueURL           string `toml:"VenueURL"`
	VenueTimeout       string `toml:"VenueTimeout"`

	APIKeys     []APIKey     `toml:"APIKeys"`
	Allocations []Allocation `toml:"Allocations"`
}

// Load loads the configuration from the given path. When no file exists a
// default one is written and an error is returned: the defaults carry no role
// or vault addresses, so the service cannot boot until they are filled in.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("config: wrote default config to %s; set Owner, Operator, FeeReceiver and Vault before starting", path)
	}
	cfg := &Config{}
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
		cfg.ListenAddress = ":8546"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrowd-data"
	}
	if strings.TrimSpace(cfg.SettlementToken) == "" {
		cfg.SettlementToken = "USDE"
	}
	if strings.TrimSpace(cfg.SecondaryToken) == "" {
		cfg.SecondaryToken = "ZTOK"
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = 250
	}
	if cfg.ReleaseTimeoutSecs == 0 {
		cfg.ReleaseTimeoutSecs = 86_400
	}
}

func createDefault(path string) error {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks the configuration for completeness. Role and account
// addresses must be valid and the fee rate must leave a positive payout.
func (c *Config) Validate() error {
	if c.FeeBps >= 10_000 {
		return fmt.Errorf("config: FeeBps must be below 10000")
	}
	if c.ReleaseTimeoutSecs <= 0 {
		return fmt.Errorf("config: ReleaseTimeoutSecs must be positive")
	}
	for name, raw := range map[string]string{
		"Owner":       c.Owner,
		"Operator":    c.Operator,
		"FeeReceiver": c.FeeReceiver,
		"Vault":       c.Vault,
	} {
		if _, err := ParseAddress(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if strings.TrimSpace(c.VenueURL) != "" {
		if _, err := ParseAddress(c.VenueAccount); err != nil {
			return fmt.Errorf("config: VenueAccount: %w", err)
		}
	}
	if c.VenueTimeout != "" {
		if _, err := time.ParseDuration(c.VenueTimeout); err != nil {
			return fmt.Errorf("config: VenueTimeout: %w", err)
		}
	}
	for i, key := range c.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return fmt.Errorf("config: APIKeys[%d]: key and secret required", i)
		}
		if _, err := ParseAddress(key.Address); err != nil {
			return fmt.Errorf("config: APIKeys[%d].Address: %w", i, err)
		}
	}
	for i, alloc := range c.Allocations {
		if strings.TrimSpace(alloc.Token) == "" {
			return fmt.Errorf("config: Allocations[%d]: token required", i)
		}
		if _, err := ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: Allocations[%d].Address: %w", i, err)
		}
		if strings.TrimSpace(alloc.Amount) == "" {
			return fmt.Errorf("config: Allocations[%d]: amount required", i)
		}
	}
	return nil
}

// VenueCallTimeout returns the parsed venue timeout, zero when unset.
func (c *Config) VenueCallTimeout() time.Duration {
	if c.VenueTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.VenueTimeout)
	if err != nil {
		return 0
	}
	return d
}

// JournalPath returns the journal database location under the data dir.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// ParseAddress decodes a 0x-prefixed hex address into its raw 20-byte form.
// The zero address is rejected.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("invalid address %q", raw)
	}
	parsed := ethcommon.HexToAddress(trimmed)
	if parsed == (ethcommon.Address{}) {
		return addr, fmt.Errorf("zero address not allowed")
	}
	copy(addr[:], parsed.Bytes())
	return addr, nil
}
