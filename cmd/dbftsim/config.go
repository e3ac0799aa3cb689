package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dcrypto"
	"gopkg.in/yaml.v3"
)

const (
	transportLoopback = "loopback"
	transportLibp2p   = "libp2p"
)

// simConfig is the YAML description of a simulated network.
type simConfig struct {
	Validators []validatorConfig `yaml:"validators"`

	// Indices of validators that are never started.
	Offline []int `yaml:"offline,omitempty"`

	// Number of blocks to finalize before exiting. Zero runs until interrupted.
	Heights uint64 `yaml:"heights"`

	BlockTime      time.Duration `yaml:"block_time"`
	Timeout        time.Duration `yaml:"timeout"`
	TimeoutPerView time.Duration `yaml:"timeout_per_view"`

	// Transactions added to every mempool each block time.
	TxPerBlock int `yaml:"tx_per_block"`

	// Either "loopback" or "libp2p".
	Transport string `yaml:"transport"`

	// When set, each validator keeps its blocks and snapshot
	// in a SQLite file under this directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// When set, the first online validator serves debug routes here.
	HTTPAddr string `yaml:"http_addr,omitempty"`
}

type validatorConfig struct {
	Alias string `yaml:"alias"`

	// Hex-encoded ed25519 seed.
	PrivateKey string `yaml:"private_key"`
}

func loadConfig(path string) (simConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return simConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (simConfig, error) {
	var cfg simConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return simConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.setDefaults(); err != nil {
		return simConfig{}, err
	}
	return cfg, nil
}

func (c *simConfig) setDefaults() error {
	if len(c.Validators) == 0 {
		return errors.New("config must list at least one validator")
	}
	if len(c.Validators) > dbftconsensus.MaxValidators {
		return fmt.Errorf("too many validators: %d > %d", len(c.Validators), dbftconsensus.MaxValidators)
	}

	for _, idx := range c.Offline {
		if idx < 0 || idx >= len(c.Validators) {
			return fmt.Errorf("offline validator %d out of range", idx)
		}
	}
	if len(c.Offline) >= len(c.Validators) {
		return errors.New("at least one validator must be online")
	}

	if c.BlockTime <= 0 {
		c.BlockTime = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.TimeoutPerView < 0 {
		return errors.New("timeout_per_view must not be negative")
	}
	if c.TxPerBlock < 0 {
		return errors.New("tx_per_block must not be negative")
	}

	switch c.Transport {
	case "":
		c.Transport = transportLoopback
	case transportLoopback, transportLibp2p:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	return nil
}

func (c simConfig) isOffline(idx int) bool {
	return slices.Contains(c.Offline, idx)
}

// roster decodes every validator's key,
// returning the validator set and the signers in ID order.
func (c simConfig) roster() (dbftconsensus.ValidatorSet, []dcrypto.Signer, error) {
	vals := make([]dbftconsensus.Validator, len(c.Validators))
	signers := make([]dcrypto.Signer, len(c.Validators))

	for i, vc := range c.Validators {
		seed, err := hex.DecodeString(vc.PrivateKey)
		if err != nil {
			return dbftconsensus.ValidatorSet{}, nil, fmt.Errorf("validator %d: invalid private key: %w", i, err)
		}
		if len(seed) != ed25519.SeedSize {
			return dbftconsensus.ValidatorSet{}, nil, fmt.Errorf(
				"validator %d: private key must be %d bytes, got %d", i, ed25519.SeedSize, len(seed),
			)
		}

		s := dcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed))
		signers[i] = s
		vals[i] = dbftconsensus.Validator{
			ID:     dbftconsensus.ValidatorID(i),
			PubKey: s.PubKey(),
			Alias:  vc.Alias,
		}
	}

	vs, err := dbftconsensus.NewValidatorSet(vals)
	if err != nil {
		return dbftconsensus.ValidatorSet{}, nil, err
	}
	return vs, signers, nil
}
