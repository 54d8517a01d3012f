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

package p2p

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/liradb/memorydb"
	"github.com/opensyria/go-lira/params"
)

// chainBackend adapts a bare chain manager to the fabric for tests;
// loose transactions are collected instead of pooled.
type chainBackend struct {
	chain *core.BlockChain

	mu  sync.Mutex
	txs []*types.Transaction
}

func (b *chainBackend) ChainID() uint64            { return b.chain.Config().ChainID }
func (b *chainBackend) GenesisHash() common.Hash   { return b.chain.Genesis().Hash() }
func (b *chainBackend) CurrentBlock() *types.Block { return b.chain.CurrentBlock() }
func (b *chainBackend) Metadata() *types.ChainMetadata {
	return b.chain.Metadata()
}
func (b *chainBackend) HasBlock(hash common.Hash) bool { return b.chain.HasBlock(hash) }
func (b *chainBackend) GetBlock(hash common.Hash) *types.Block {
	return b.chain.GetBlock(hash)
}
func (b *chainBackend) BlocksFrom(height uint64, max int) []*types.Block {
	return b.chain.BlocksFrom(height, max)
}
func (b *chainBackend) HeadersFromLocator(locator []common.Hash, max int) []*types.Header {
	return b.chain.HeadersFromLocator(locator, max)
}
func (b *chainBackend) Locator() []common.Hash { return b.chain.Locator() }
func (b *chainBackend) InsertBlock(block *types.Block) error {
	return b.chain.InsertBlock(block)
}
func (b *chainBackend) MissingParent(hash common.Hash) (common.Hash, bool) {
	return b.chain.MissingParent(hash)
}
func (b *chainBackend) AddRemoteTx(tx *types.Transaction) error {
	if err := core.ValidateTx(tx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	return nil
}

func (b *chainBackend) receivedTxs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.txs)
}

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config:     params.TestChainConfig,
		Time:       1000000,
		Difficulty: 1,
		Miner:      common.Address{0xfe},
	}
}

func newTestServer(t *testing.T) (*Server, *chainBackend) {
	t.Helper()
	chain, err := core.NewBlockChain(memorydb.New(), testGenesis())
	require.NoError(t, err)
	t.Cleanup(chain.Stop)

	backend := &chainBackend{chain: chain}
	srv := NewServer(Config{
		ListenAddr:  "127.0.0.1:0",
		MaxPeers:    8,
		NoDiscovery: true,
	}, backend)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv, backend
}

// mineOn seals one empty child of the backend's tip and inserts it.
func mineOn(t *testing.T, backend *chainBackend, miner common.Address) *types.Block {
	t.Helper()
	var (
		chain  = backend.chain
		parent = chain.CurrentBlock()
		config = chain.Config()
		height = parent.Height() + 1
	)
	var txs types.Transactions
	if config.RewardsEnabled() {
		txs = types.Transactions{types.NewCoinbase(height, miner, config.BlockSubsidy(height))}
	}
	header := &types.Header{
		ParentHash: parent.Hash(),
		Time:       parent.Time() + 60,
		Difficulty: chain.NextDifficulty(parent),
		Height:     height,
		Miner:      miner,
	}
	template := types.NewBlock(header, txs)
	sealed := template.Header()
	for sealed.Nonce = 0; crypto.LeadingZeroBits(sealed.Hash()) < sealed.Difficulty; sealed.Nonce++ {
	}
	block := types.NewBlockWithHeader(sealed, txs)
	require.NoError(t, chain.InsertBlock(block))
	return block
}

func connect(t *testing.T, from, to *Server) {
	t.Helper()
	from.addCandidate(to.listener.Addr().String())
	require.Eventually(t, func() bool {
		return from.PeerCount() == 1 && to.PeerCount() == 1
	}, 5*time.Second, 20*time.Millisecond, "peers did not connect")
}

// TestHandshakeAndSync connects a fresh node to one with history and
// expects the whole chain to transfer through the sync path.
func TestHandshakeAndSync(t *testing.T) {
	srvA, backendA := newTestServer(t)
	srvB, backendB := newTestServer(t)

	for i := 0; i < 5; i++ {
		mineOn(t, backendA, common.Address{0xee, 0x01})
	}
	connect(t, srvB, srvA)

	require.Eventually(t, func() bool {
		return backendB.chain.CurrentBlock().Hash() == backendA.chain.CurrentBlock().Hash()
	}, 10*time.Second, 50*time.Millisecond, "chains did not converge")
	require.EqualValues(t, 5, backendB.chain.Metadata().BestHeight)
}

// TestBlockGossip propagates a freshly mined block through announce and
// retrieval.
func TestBlockGossip(t *testing.T) {
	srvA, backendA := newTestServer(t)
	srvB, backendB := newTestServer(t)
	connect(t, srvB, srvA)

	block := mineOn(t, backendA, common.Address{0xee, 0x01})
	srvA.BroadcastBlock(block)

	require.Eventually(t, func() bool {
		return backendB.chain.CurrentBlock().Hash() == block.Hash()
	}, 10*time.Second, 50*time.Millisecond, "block did not propagate")
}

// TestTxGossip propagates a loose transaction.
func TestTxGossip(t *testing.T) {
	srvA, _ := newTestServer(t)
	srvB, backendB := newTestServer(t)
	connect(t, srvA, srvB)

	raw := make([]byte, 32)
	raw[0] = 9
	key, err := crypto.PrivateKeyFromSeed(raw)
	require.NoError(t, err)
	tx := types.NewTransaction(crypto.PublicKey{}, common.Address{0xbb}, 10, params.MinFee, 0).SignWith(key)

	srvA.BroadcastTx(tx)
	require.Eventually(t, func() bool {
		return backendB.receivedTxs() == 1
	}, 10*time.Second, 50*time.Millisecond, "transaction did not propagate")
}

// TestGossipDeduplication: the first sighting owns forwarding, repeats
// are dropped.
func TestGossipDeduplication(t *testing.T) {
	srv, _ := newTestServer(t)

	hash := common.Hash{0x42}
	require.False(t, srv.alreadySeen(hash))
	require.True(t, srv.alreadySeen(hash))
	require.True(t, srv.alreadySeen(hash))
}

// TestBanThreshold: repeated penalties disconnect and cool the address
// down.
func TestBanThreshold(t *testing.T) {
	srvA, _ := newTestServer(t)
	srvB, _ := newTestServer(t)
	connect(t, srvB, srvA)

	peer := srvA.Peers()[0]
	for i := 0; i < 2; i++ {
		srvA.penalize(peer, penaltyInvalid, "test")
	}
	require.True(t, srvA.isBanned(peer.RemoteIP()))
	require.Eventually(t, func() bool {
		return srvA.PeerCount() == 0
	}, 5*time.Second, 20*time.Millisecond, "banned peer not dropped")
}
