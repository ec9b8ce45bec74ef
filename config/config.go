// Package config loads the validator process configuration, following the
// teacher's load-or-create-default TOML flow in config/config.go.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/objectledger/valcore/crypto"
)

// Config is the top-level process configuration.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	RPCAddress     string   `toml:"RPCAddress"`
	DataDir        string   `toml:"DataDir"`
	ValidatorKey   string   `toml:"ValidatorKey"`
	BootstrapPeers []string `toml:"BootstrapPeers"`
	GenesisFile    string   `toml:"GenesisFile"`

	Global `toml:"Global"`
}

// Load loads the configuration from path, creating a default one (with a
// freshly generated validator key) if it does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.ValidatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.ValidatorKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg.Global); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:  ":6001",
		RPCAddress:     ":8080",
		DataDir:        "./valcore-data",
		ValidatorKey:   hex.EncodeToString(key.Bytes()),
		BootstrapPeers: []string{},
		Global: Global{
			Consensus: Consensus{
				MaxRoundGap:            50,
				QuorumTimeout:          5 * time.Second,
				MaxPendingCertificates: 1024,
			},
			Mempool: Mempool{
				MaxEntries:   50_000,
				MaxPerSender: 64,
				TTL:          10 * time.Minute,
			},
			Storage: Storage{
				DataDir: "./valcore-data/db",
			},
		},
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

// GenesisValidator is one validator entry in the genesis committee
// bootstrap file.
type GenesisValidator struct {
	PublicKeyHex string `yaml:"publicKey"`
	Stake        uint64 `yaml:"stake"`
	NetworkAddr  string `yaml:"networkAddr"`
}

// Genesis is the optional genesis.yaml committee bootstrap file: the
// initial validator set and stakes for epoch 0.
type Genesis struct {
	Epoch      uint64             `yaml:"epoch"`
	Validators []GenesisValidator `yaml:"validators"`
}

// LoadGenesis reads and parses a genesis.yaml committee bootstrap file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading genesis file: %w", err)
	}
	g := &Genesis{}
	if err := yaml.Unmarshal(raw, g); err != nil {
		return nil, fmt.Errorf("config: parsing genesis file: %w", err)
	}
	if len(g.Validators) == 0 {
		return nil, fmt.Errorf("config: genesis file has no validators")
	}
	return g, nil
}
