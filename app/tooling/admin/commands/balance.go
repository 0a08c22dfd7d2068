package commands

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var nodeURL string

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Query a running node for an account balance",
	Args:  cobra.ExactArgs(1),
	Run:   balanceRun,
}

func init() {
	balanceCmd.Flags().StringVarP(&nodeURL, "url", "u", "http://localhost:8080", "URL of the node to query.")
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/%s", nodeURL, args[0]))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var account struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
		Nonce   uint32 `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("account: %s  balance: %d  nonce: %d\n", account.Address, account.Balance, account.Nonce)
}
