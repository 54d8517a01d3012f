// Copyright 2025 The go-lira Authors
// This file is part of the go-lira library.
//
// The go-lira library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-lira library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-lira library. If not, see <http://www.gnu.org/licenses/>.

package core

import (
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/rawdb"
	"github.com/opensyria/go-lira/core/state"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/params"
)

// Genesis is the deterministic recipe block zero is materialized from.
// Two nodes sharing a recipe produce byte-identical databases.
type Genesis struct {
	Config     *params.ChainConfig       `toml:"config"`
	Time       uint64                    `toml:"timestamp"`
	Difficulty uint32                    `toml:"difficulty"`
	Miner      common.Address            `toml:"-"`
	Alloc      map[common.Address]uint64 `toml:"-"`
}

// DefaultGenesis returns the recipe of the main Lira network.
func DefaultGenesis() *Genesis {
	return &Genesis{
		Config:     params.MainnetChainConfig,
		Time:       1735689600, // 2025-01-01 00:00:00 UTC
		Difficulty: 16,
		Miner:      common.HexToAddress("0x6c69726164000000000000000000000000000000000000000000000000000000"),
	}
}

// ToBlock builds the genesis block: height zero, zero parent, empty
// transaction list, the recipe's fixed timestamp and miner.
func (g *Genesis) ToBlock() *types.Block {
	header := &types.Header{
		Time:       g.Time,
		Difficulty: g.Difficulty,
		Height:     0,
		Miner:      g.Miner,
	}
	return types.NewBlock(header, nil)
}

// Commit materializes the recipe into an empty database: the block
// itself, its canonical index, the initial allocation and the chain
// metadata, all in one atomic batch.
func (g *Genesis) Commit(db liradb.Database) (*types.Block, error) {
	block := g.ToBlock()
	hash := block.Hash()

	batch := db.NewBatch()
	rawdb.WriteBlock(batch, block)
	rawdb.WriteCanonicalHash(batch, 0, hash)
	rawdb.WriteTotalWork(batch, hash, WorkForDifficulty(g.Difficulty))
	rawdb.WriteGenesisHash(batch, hash)

	statedb := state.New(db)
	for addr, balance := range g.Alloc {
		statedb.SetAccount(addr, types.Account{Balance: balance})
	}
	statedb.Commit(batch)

	rawdb.WriteMetadata(batch, &types.ChainMetadata{
		BestHash:           hash,
		BestHeight:         0,
		TotalWork:          WorkForDifficulty(g.Difficulty),
		Difficulty:         g.Difficulty,
		LastRetargetHeight: 0,
		LastRetargetTime:   g.Time,
	})
	if err := batch.Write(); err != nil {
		return nil, err
	}
	return block, nil
}

// SetupGenesisBlock writes the genesis into db if it is empty, or checks
// that the stored genesis matches the recipe otherwise. It returns the
// genesis block either way.
func SetupGenesisBlock(db liradb.Database, genesis *Genesis) (*types.Block, error) {
	if genesis == nil {
		genesis = DefaultGenesis()
	}
	stored := rawdb.ReadGenesisHash(db)
	if stored == (common.Hash{}) {
		block, err := genesis.Commit(db)
		if err != nil {
			return nil, err
		}
		log.Info("Wrote genesis block", "hash", block.Hash(), "alloc", len(genesis.Alloc))
		return block, nil
	}
	block := genesis.ToBlock()
	if block.Hash() != stored {
		return nil, ErrGenesisMismatch
	}
	return block, nil
}
