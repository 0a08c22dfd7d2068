package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/meridian-chain/meridian/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new key pair and print its address",
	Run:   keygenRun,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func keygenRun(cmd *cobra.Command, args []string) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatal(err)
	}

	path := getPrivateKeyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatal(err)
	}

	seed := hex.EncodeToString(priv.Seed())
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("key:     %s\n", path)
	fmt.Printf("address: %s\n", signature.PublicKeyToAddress(pub))
}

// LoadPrivateKey reads a key file written by keygen.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}

	return ed25519.NewKeyFromSeed(seed), nil
}
