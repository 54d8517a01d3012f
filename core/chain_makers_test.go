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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/liradb/memorydb"
	"github.com/opensyria/go-lira/params"
)

// Deterministic fixture keys and addresses.
func testKey(t *testing.T, seed byte) *crypto.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = seed
	key, err := crypto.PrivateKeyFromSeed(raw)
	require.NoError(t, err)
	return key
}

var (
	minerAddr  = common.Address{0xee, 0x01}
	minerAddr2 = common.Address{0xee, 0x02}
)

// testGenesis allocates 1000 Lira to the key-1 account and starts at
// difficulty 1 so sealing is cheap.
func testGenesis(t *testing.T) *Genesis {
	return &Genesis{
		Config:     params.TestChainConfig,
		Time:       1000000,
		Difficulty: 1,
		Miner:      common.Address{0xfe},
		Alloc: map[common.Address]uint64{
			testKey(t, 1).Address(): 1000 * params.Lira,
		},
	}
}

// newTestChain boots a chain over a fresh memory database.
func newTestChain(t *testing.T, genesis *Genesis) *BlockChain {
	t.Helper()
	bc, err := NewBlockChain(memorydb.New(), genesis)
	require.NoError(t, err)
	t.Cleanup(bc.Stop)
	return bc
}

// mineBlock seals a valid child of parent carrying txs, rewarded to
// miner. The timestamp advances by delta seconds over the parent.
func mineBlock(t *testing.T, bc *BlockChain, parent *types.Block, txs types.Transactions, miner common.Address, delta uint64) *types.Block {
	t.Helper()
	var (
		config = bc.Config()
		height = parent.Height() + 1
		all    = txs
	)
	if config.RewardsEnabled() {
		var fees uint64
		for _, tx := range txs {
			fees += tx.Fee
		}
		coinbase := types.NewCoinbase(height, miner, config.BlockSubsidy(height)+fees)
		all = append(types.Transactions{coinbase}, txs...)
	}
	header := &types.Header{
		ParentHash: parent.Hash(),
		Time:       parent.Time() + delta,
		Difficulty: bc.NextDifficulty(parent),
		Height:     height,
		Miner:      miner,
	}
	template := types.NewBlock(header, all)
	sealed := template.Header()
	for nonce := uint64(0); ; nonce++ {
		sealed.Nonce = nonce
		if crypto.LeadingZeroBits(sealed.Hash()) >= sealed.Difficulty {
			return types.NewBlockWithHeader(sealed, all)
		}
	}
}

// mineChain extends parent with n empty blocks, inserting each.
func mineChain(t *testing.T, bc *BlockChain, parent *types.Block, n int, miner common.Address) []*types.Block {
	t.Helper()
	blocks := make([]*types.Block, 0, n)
	for i := 0; i < n; i++ {
		block := mineBlock(t, bc, parent, nil, miner, 60)
		require.NoError(t, bc.InsertBlock(block))
		blocks = append(blocks, block)
		parent = block
	}
	return blocks
}

// buildBranch seals n empty blocks on parent without inserting them.
func buildBranch(t *testing.T, bc *BlockChain, parent *types.Block, n int, miner common.Address) []*types.Block {
	t.Helper()
	blocks := make([]*types.Block, 0, n)
	for i := 0; i < n; i++ {
		block := mineBlock(t, bc, parent, nil, miner, 60)
		blocks = append(blocks, block)
		parent = block
	}
	return blocks
}
