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

// Package node wires the storage engine, chain manager, mempool, miner
// and p2p fabric into one process and exposes the ingress API consumed
// by front ends.
package node

import (
	"errors"
	"sync"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/txpool"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/event"
	"github.com/opensyria/go-lira/liradb"
	"github.com/opensyria/go-lira/liradb/leveldb"
	"github.com/opensyria/go-lira/liradb/memorydb"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/miner"
	"github.com/opensyria/go-lira/p2p"
)

// ErrNodeStopped is returned from API calls after Stop.
var ErrNodeStopped = errors.New("node stopped")

// Node is the orchestrator: it owns every subsystem and multiplexes
// their events. All writes funnel through the chain manager's
// serialization point.
type Node struct {
	config Config
	log    log.Logger

	db     liradb.Database
	chain  *core.BlockChain
	pool   *txpool.TxPool
	server *p2p.Server
	miner  *miner.Miner

	quit    chan struct{}
	wg      sync.WaitGroup
	stopped bool
	mu      sync.Mutex
}

// New assembles a node from its configuration and genesis recipe.
func New(config Config, genesis *core.Genesis) (*Node, error) {
	n := &Node{
		config: config,
		log:    log.New("module", "node"),
		quit:   make(chan struct{}),
	}
	dir, err := config.chainDir()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		n.log.Warn("No data directory, running on a memory database")
		n.db = memorydb.New()
	} else {
		db, err := leveldb.New(dir, config.DatabaseCache, config.DatabaseHandles, false)
		if err != nil {
			return nil, err
		}
		n.db = db
	}
	chain, err := core.NewBlockChain(n.db, genesis)
	if err != nil {
		n.db.Close()
		return nil, err
	}
	n.chain = chain
	n.pool = txpool.New(config.TxPool, chain)
	n.server = p2p.NewServer(config.P2P, (*p2pBackend)(n))
	n.miner = miner.New(chain, n.pool)
	n.miner.SetCoinbase(config.CoinbaseAddress())
	return n, nil
}

// Start brings the subsystems up and launches the event forwarding
// loop.
func (n *Node) Start() error {
	if err := n.server.Start(); err != nil {
		return err
	}
	n.wg.Add(1)
	go n.forwardEvents()
	if n.config.Mine {
		n.miner.Start()
	}
	n.log.Info("Node started", "mining", n.config.Mine)
	return nil
}

// Stop tears the node down in dependency order.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()

	n.miner.Stop()
	n.server.Stop()
	close(n.quit)
	n.wg.Wait()
	n.pool.Stop()
	n.chain.Stop()
	if err := n.db.Close(); err != nil {
		n.log.Error("Database close failed", "err", err)
	}
	n.log.Info("Node stopped")
}

// forwardEvents pushes freshly accepted blocks and pooled transactions
// into the gossip layer. The chain and pool feeds preserve commit
// order per subscriber.
func (n *Node) forwardEvents() {
	defer n.wg.Done()

	headCh := make(chan core.ChainHeadEvent, 16)
	headSub := n.chain.SubscribeChainHeadEvent(headCh)
	defer headSub.Unsubscribe()

	txCh := make(chan core.NewTxsEvent, 64)
	txSub := n.pool.SubscribeNewTxsEvent(txCh)
	defer txSub.Unsubscribe()

	for {
		select {
		case ev := <-headCh:
			n.server.BroadcastBlock(ev.Block)
		case ev := <-txCh:
			for _, tx := range ev.Txs {
				n.server.BroadcastTx(tx)
			}
		case <-n.quit:
			return
		}
	}
}

// Chain exposes the chain manager.
func (n *Node) Chain() *core.BlockChain { return n.chain }

// TxPool exposes the mempool.
func (n *Node) TxPool() *txpool.TxPool { return n.pool }

// Miner exposes the proof-of-work worker.
func (n *Node) Miner() *miner.Miner { return n.miner }

// Server exposes the p2p fabric.
func (n *Node) Server() *p2p.Server { return n.server }

// SubmitTransaction validates a transaction and admits it to the
// mempool. The priority rank of the accepted entry is returned.
func (n *Node) SubmitTransaction(tx *types.Transaction) (int, error) {
	return n.pool.Add(tx)
}

// SubmitBlock feeds a candidate block through the ingestion path. The
// miner and the RPC surface share this entry with the p2p fabric.
func (n *Node) SubmitBlock(block *types.Block) error {
	return n.chain.InsertBlock(block)
}

// SubscribeChainHeadEvent subscribes to canonical tip changes.
func (n *Node) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return n.chain.SubscribeChainHeadEvent(ch)
}

// SubscribeReorgEvent subscribes to chain reorganizations.
func (n *Node) SubscribeReorgEvent(ch chan<- core.ReorgEvent) event.Subscription {
	return n.chain.SubscribeReorgEvent(ch)
}

// SubscribeRejectedBlockEvent subscribes to typed block rejections.
func (n *Node) SubscribeRejectedBlockEvent(ch chan<- core.RejectedBlockEvent) event.Subscription {
	return n.chain.SubscribeRejectedBlockEvent(ch)
}

// GetBlockByHash returns a stored block, canonical or side branch.
func (n *Node) GetBlockByHash(hash common.Hash) *types.Block {
	return n.chain.GetBlock(hash)
}

// GetBlockByHeight returns the canonical block at a height.
func (n *Node) GetBlockByHeight(height uint64) *types.Block {
	return n.chain.GetBlockByHeight(height)
}

// GetTransaction looks a transaction up in the mempool first, then in
// the canonical chain from the tip back to genesis.
func (n *Node) GetTransaction(hash common.Hash) *types.Transaction {
	if tx := n.pool.Get(hash); tx != nil {
		return tx
	}
	// Walk back from the tip; there is no transaction index.
	for block := n.chain.CurrentBlock(); block != nil; block = n.chain.GetBlock(block.ParentHash()) {
		if tx := block.Transaction(hash); tx != nil {
			return tx
		}
		if block.Height() == 0 {
			break
		}
	}
	return nil
}

// GetAccount returns the committed state of an address.
func (n *Node) GetAccount(addr common.Address) types.Account {
	return n.chain.GetAccount(addr)
}

// MempoolContent returns a snapshot of pending transactions in priority
// order.
func (n *Node) MempoolContent() types.Transactions {
	return n.pool.Content()
}

// Metadata returns the committed chain metadata.
func (n *Node) Metadata() *types.ChainMetadata {
	return n.chain.Metadata()
}

// p2pBackend adapts the node to the fabric's backend interface without
// widening the node's public API.
type p2pBackend Node

func (b *p2pBackend) ChainID() uint64          { return b.chain.Config().ChainID }
func (b *p2pBackend) GenesisHash() common.Hash { return b.chain.Genesis().Hash() }
func (b *p2pBackend) CurrentBlock() *types.Block {
	return b.chain.CurrentBlock()
}
func (b *p2pBackend) Metadata() *types.ChainMetadata { return b.chain.Metadata() }
func (b *p2pBackend) HasBlock(hash common.Hash) bool { return b.chain.HasBlock(hash) }
func (b *p2pBackend) GetBlock(hash common.Hash) *types.Block {
	return b.chain.GetBlock(hash)
}
func (b *p2pBackend) BlocksFrom(height uint64, max int) []*types.Block {
	return b.chain.BlocksFrom(height, max)
}
func (b *p2pBackend) HeadersFromLocator(locator []common.Hash, max int) []*types.Header {
	return b.chain.HeadersFromLocator(locator, max)
}
func (b *p2pBackend) Locator() []common.Hash { return b.chain.Locator() }
func (b *p2pBackend) InsertBlock(block *types.Block) error {
	return b.chain.InsertBlock(block)
}
func (b *p2pBackend) MissingParent(hash common.Hash) (common.Hash, bool) {
	return b.chain.MissingParent(hash)
}
func (b *p2pBackend) AddRemoteTx(tx *types.Transaction) error {
	_, err := b.pool.Add(tx)
	return err
}
