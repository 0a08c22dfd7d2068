// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/meridian-chain/meridian/foundation/blockchain/database"
)

// Genesis represents the genesis file: the identity of the network and the
// policy constants every node must agree on.
type Genesis struct {
	Date            time.Time         `json:"date"`
	ChainID         uint16            `json:"chain_id"`         // Unique id for this network.
	BlockTime       uint32            `json:"block_time"`       // Seconds targeted between blocks.
	RetargetWindow  uint32            `json:"retarget_window"`  // Blocks inspected when adjusting difficulty.
	InitialNBits    uint32            `json:"initial_nbits"`    // Compact target of the genesis block.
	BaseReward      uint64            `json:"base_reward"`      // Reward for mining a block before halvings.
	HalvingInterval uint32            `json:"halving_interval"` // Blocks between reward halvings. Zero disables halving.
	MinFee          uint64            `json:"min_fee"`          // Smallest fee the mempool admits.
	Balances        map[string]uint64 `json:"balances"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis information to the specified path.
func (g Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// BlockReward returns the miner reward at the specified height, halved
// every HalvingInterval blocks.
func (g Genesis) BlockReward(height uint32) uint64 {
	if g.HalvingInterval == 0 {
		return g.BaseReward
	}

	halvings := height / g.HalvingInterval
	if halvings >= 64 {
		return 0
	}

	return g.BaseReward >> halvings
}

// AccountBalances converts the genesis balance table into typed addresses.
func (g Genesis) AccountBalances() (map[database.Address]uint64, error) {
	balances := make(map[database.Address]uint64, len(g.Balances))
	for addrStr, balance := range g.Balances {
		addr, err := database.ToAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %q: %w", addrStr, err)
		}
		balances[addr] = balance
	}

	return balances, nil
}
