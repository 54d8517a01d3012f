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

package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/txpool"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/liradb/memorydb"
	"github.com/opensyria/go-lira/params"
)

var rewardAddr = common.Address{0xee, 0x01}

func newTestMiner(t *testing.T, alloc map[common.Address]uint64) (*Miner, *core.BlockChain, *txpool.TxPool) {
	t.Helper()
	genesis := &core.Genesis{
		Config:     params.TestChainConfig,
		Time:       uint64(time.Now().Unix()) - 3600,
		Difficulty: 1,
		Miner:      common.Address{0xfe},
		Alloc:      alloc,
	}
	chain, err := core.NewBlockChain(memorydb.New(), genesis)
	require.NoError(t, err)
	t.Cleanup(chain.Stop)

	pool := txpool.New(txpool.DefaultConfig, chain)
	t.Cleanup(pool.Stop)

	m := New(chain, pool)
	m.SetCoinbase(rewardAddr)
	return m, chain, pool
}

// TestMineEmptyBlocks runs the worker against an empty pool and expects
// the chain to advance with valid coinbase-only blocks.
func TestMineEmptyBlocks(t *testing.T) {
	m, chain, _ := newTestMiner(t, nil)

	m.Start()
	defer m.Stop()
	require.True(t, m.Mining())

	require.Eventually(t, func() bool {
		return chain.CurrentBlock().Height() >= 2
	}, 15*time.Second, 20*time.Millisecond, "miner did not extend the chain")

	block := chain.GetBlockByHeight(1)
	require.NotNil(t, block)
	require.Equal(t, rewardAddr, block.Miner())
	require.Len(t, block.Transactions(), 1)
	require.True(t, block.Transactions()[0].IsCoinbase())
	require.GreaterOrEqual(t, crypto.LeadingZeroBits(block.Hash()), block.Difficulty())
}

// TestMineWithTransactions picks pending transfers up into the sealed
// block and routes their fees into the coinbase.
func TestMineWithTransactions(t *testing.T) {
	raw := make([]byte, 32)
	raw[0] = 1
	key, err := crypto.PrivateKeyFromSeed(raw)
	require.NoError(t, err)

	m, chain, pool := newTestMiner(t, map[common.Address]uint64{
		key.Address(): 1000 * params.Lira,
	})
	to := common.Address{0xbb}
	tx := types.NewTransaction(crypto.PublicKey{}, to, 100*params.Lira, 2*params.Lira, 0).SignWith(key)
	_, err = pool.Add(tx)
	require.NoError(t, err)

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return chain.GetAccount(to).Balance == 100*params.Lira
	}, 15*time.Second, 20*time.Millisecond, "transfer never mined")

	// The pool drops the included transaction.
	require.Eventually(t, func() bool {
		return !pool.Has(tx.Hash())
	}, 5*time.Second, 20*time.Millisecond)

	// The fee rode into the miner's payout.
	reward := chain.GetAccount(rewardAddr).Balance
	require.GreaterOrEqual(t, reward, chain.Config().BlockSubsidy(1)+2*params.Lira)
}

// TestStartStopIdempotent exercises the lifecycle transitions.
func TestStartStopIdempotent(t *testing.T) {
	m, _, _ := newTestMiner(t, nil)

	m.Start()
	m.Start()
	require.True(t, m.Mining())
	m.Stop()
	m.Stop()
	require.False(t, m.Mining())

	// The worker restarts cleanly after a stop.
	m.Start()
	require.True(t, m.Mining())
	m.Stop()
}
