package commands

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/genesis"
	"github.com/spf13/cobra"
)

var genesisOut string

var genesisCmd = &cobra.Command{
	Use:   "genesis [address:balance ...]",
	Short: "Write a genesis file seeded with the specified balances",
	Run:   genesisRun,
}

func init() {
	genesisCmd.Flags().StringVarP(&genesisOut, "out", "o", "zdata/genesis.json", "Path of the genesis file to write.")
	rootCmd.AddCommand(genesisCmd)
}

func genesisRun(cmd *cobra.Command, args []string) {
	balances := make(map[string]uint64)
	for _, arg := range args {
		addr, balStr, found := strings.Cut(arg, ":")
		if !found {
			log.Fatalf("balance %q is not address:balance", arg)
		}
		bal, err := strconv.ParseUint(balStr, 10, 64)
		if err != nil {
			log.Fatalf("balance %q: %s", arg, err)
		}
		balances[addr] = bal
	}

	gen := genesis.Genesis{
		Date:            time.Now().UTC(),
		ChainID:         1,
		BlockTime:       60,
		RetargetWindow:  120,
		InitialNBits:    0x1e7fffff,
		BaseReward:      5000,
		HalvingInterval: 210_000,
		MinFee:          1,
		Balances:        balances,
	}

	if err := gen.Save(genesisOut); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("genesis: %s\n", genesisOut)
}
