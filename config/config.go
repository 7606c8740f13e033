package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config drives the marketd service. Addresses are hex-encoded 20-byte
// account identifiers.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	MetricsAddress string   `toml:"MetricsAddress"`
	DataDir        string   `toml:"DataDir"`
	Environment    string   `toml:"Environment"`
	LogLevel       string   `toml:"LogLevel"`
	Deployer       string   `toml:"Deployer"`
	Admins         []string `toml:"Admins"`
	// Fee is the platform fee in parts per 1000; -1 selects the built-in
	// default.
	Fee int64 `toml:"Fee"`
	// AccessPolicy selects who may change the fee and treasury wallet:
	// "owner" for the single stored owner, "group" for the admin
	// capability group.
	AccessPolicy string `toml:"AccessPolicy"`
}

const (
	PolicyOwner = "owner"
	PolicyGroup = "group"
)

// Load reads the configuration at path, writing a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{Fee: -1}
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
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./tokenmart-data"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.AccessPolicy) == "" {
		c.AccessPolicy = PolicyOwner
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
}

// Validate checks the address fields and the selected access policy.
func (c *Config) Validate() error {
	if _, err := DecodeAddress(c.Deployer); err != nil {
		return fmt.Errorf("config: invalid Deployer: %w", err)
	}
	for i, admin := range c.Admins {
		if _, err := DecodeAddress(admin); err != nil {
			return fmt.Errorf("config: invalid Admins[%d]: %w", i, err)
		}
	}
	switch c.AccessPolicy {
	case PolicyOwner, PolicyGroup:
	default:
		return fmt.Errorf("config: unknown AccessPolicy %q", c.AccessPolicy)
	}
	if c.Fee < -1 || c.Fee > 1000 {
		return fmt.Errorf("config: Fee must be between 0 and 1000 (or -1 for the default), got %d", c.Fee)
	}
	return nil
}

// DeployerAddress returns the decoded deployer account.
func (c *Config) DeployerAddress() ([20]byte, error) {
	return DecodeAddress(c.Deployer)
}

// AdminAddresses returns the decoded admin accounts.
func (c *Config) AdminAddresses() ([][20]byte, error) {
	out := make([][20]byte, 0, len(c.Admins))
	for i, admin := range c.Admins {
		addr, err := DecodeAddress(admin)
		if err != nil {
			return nil, fmt.Errorf("config: invalid Admins[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// DecodeAddress parses a hex-encoded 20-byte account identifier, with or
// without a 0x prefix.
func DecodeAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != len(addr) {
		return addr, fmt.Errorf("expected %d bytes, got %d", len(addr), len(decoded))
	}
	copy(addr[:], decoded)
	return addr, nil
}

// createDefault writes a commented default configuration and returns it. The
// deployer field is intentionally left empty so a fresh install fails loudly
// until it is set.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./tokenmart-data",
		Environment:    "",
		LogLevel:       "info",
		Admins:         []string{},
		Fee:            -1,
		AccessPolicy:   PolicyOwner,
	}
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
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
