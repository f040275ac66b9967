package frost

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/frostnetworks/frost/src/alpha"
	"github.com/frostnetworks/frost/src/config"
	"github.com/frostnetworks/frost/src/crypto/keys"
	"github.com/frostnetworks/frost/src/peers"
)

const genesisFile = "genesis.json"

// defaultAllocation is the stake minted to the sole validator of a
// single-node development genesis.
const defaultAllocation = 1000000

// loadOrCreateGenesis reads the genesis staker list from the datadir. When
// no genesis file exists, a single-node development genesis staking this
// node is written and used, so a fresh node is runnable out of the box.
func loadOrCreateGenesis(conf *config.Config, id peers.ID, key *keys.KeyPair, localAddr string) ([]*alpha.InitialStaker, error) {
	path := filepath.Join(conf.DataDir, genesisFile)

	raw, err := os.ReadFile(path)
	if err == nil {
		var stakers []*alpha.InitialStaker
		if err := json.Unmarshal(raw, &stakers); err != nil {
			return nil, err
		}
		return stakers, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	stakers := []*alpha.InitialStaker{{
		ID:         id,
		NetAddr:    localAddr,
		PubKey:     key.Public,
		Allocation: defaultAllocation,
	}}
	data, err := json.MarshalIndent(stakers, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return stakers, nil
}
