package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon's deployment settings. Unknown fields in the file
// are rejected so typos fail loudly at startup.
type Config struct {
	RPCAddress        string `toml:"RPCAddress"`
	DataDir           string `toml:"DataDir"`
	VaultAddress      string `toml:"VaultAddress"`
	SweepIntervalSecs int64  `toml:"SweepIntervalSeconds"`
	CancelPolicy      string `toml:"CancelPolicy"`
	CompoundLegs      bool   `toml:"CompoundLegs"`
	Environment       string `toml:"Environment"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

const (
	defaultRPCAddress    = ":8545"
	defaultDataDir       = "./tradevault-data"
	defaultSweepInterval = 30
	defaultRateLimit     = 600
	defaultRateBurst     = 20

	// Reserved address holding escrowed assets. Any fixed non-zero address
	// works as long as no account key collides with it.
	defaultVaultAddress = "00000000000000000000000000000000000e5c40"
)

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		c.VaultAddress = defaultVaultAddress
	}
	if c.SweepIntervalSecs <= 0 {
		c.SweepIntervalSecs = defaultSweepInterval
	}
	if strings.TrimSpace(c.CancelPolicy) == "" {
		c.CancelPolicy = "sellerOrBuyer"
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = defaultRateLimit
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaultRateBurst
	}
}

// Validate checks the settings that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	switch c.CancelPolicy {
	case "sellerOrBuyer", "sellerOnly":
	default:
		return fmt.Errorf("config: unknown CancelPolicy %q (want sellerOrBuyer or sellerOnly)", c.CancelPolicy)
	}
	if _, err := c.Vault(); err != nil {
		return err
	}
	return nil
}

// Vault decodes the configured vault address into its binary form.
func (c *Config) Vault() ([20]byte, error) {
	var addr [20]byte
	raw := strings.TrimPrefix(strings.TrimSpace(c.VaultAddress), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 20 {
		return addr, fmt.Errorf("config: VaultAddress must be 20 hex bytes")
	}
	copy(addr[:], decoded)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("config: VaultAddress must not be the zero address")
	}
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
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
