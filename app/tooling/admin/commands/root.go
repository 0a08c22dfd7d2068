// Package commands contains the admin tooling for operating a node.
package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	keyName string
	keyPath string
)

const keyExtension = ".key"

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyName, "key", "k", "miner.key", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key-path", "p", "zdata/keys/", "Path to the directory with private keys.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Node administration tooling",
}

// Execute runs the selected command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	if !strings.HasSuffix(keyName, keyExtension) {
		keyName += keyExtension
	}

	return filepath.Join(keyPath, keyName)
}
