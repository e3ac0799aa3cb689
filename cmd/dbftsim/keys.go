package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newKeysCmd() *cobra.Command {
	var (
		n   int
		out string
	)

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate a network config with fresh validator keys",
		Long: `Generate a network config with fresh ed25519 validator keys.

Each validator is given a random, unique alias.
The config is written to stdout, or to the file named by --out.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := generateConfig(rand.Reader, n)
			if err != nil {
				return err
			}

			b, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}

			if out == "" {
				_, err := cmd.OutOrStdout().Write(b)
				return err
			}
			return os.WriteFile(out, b, 0o600)
		},
	}

	cmd.Flags().IntVarP(&n, "validators", "n", 4, "number of validators")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the config to this file instead of stdout")

	return cmd
}

// generateConfig returns a default config for n validators
// with keys read from entropy.
func generateConfig(entropy io.Reader, n int) (simConfig, error) {
	if n <= 0 {
		return simConfig{}, fmt.Errorf("validator count must be positive, got %d", n)
	}

	cfg := simConfig{
		Validators: make([]validatorConfig, n),
		Heights:    10,
		TxPerBlock: 8,
	}

	seen := make(map[string]struct{}, n)
	for i := range cfg.Validators {
		_, priv, err := ed25519.GenerateKey(entropy)
		if err != nil {
			return simConfig{}, fmt.Errorf("failed to generate key: %w", err)
		}

		alias := petname.Generate(2, "-")
		for {
			if _, dup := seen[alias]; !dup {
				break
			}
			alias = petname.Generate(3, "-")
		}
		seen[alias] = struct{}{}

		cfg.Validators[i] = validatorConfig{
			Alias:      alias,
			PrivateKey: hex.EncodeToString(priv.Seed()),
		}
	}

	if err := cfg.setDefaults(); err != nil {
		return simConfig{}, err
	}
	return cfg, nil
}
