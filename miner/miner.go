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

// Package miner assembles block templates from the transaction pool and
// searches nonces for them. A sealed block is submitted through the same
// ingestion path as peer blocks; a new chain tip aborts the current
// search and restarts on top of it.
package miner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/txpool"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/log"
)

var (
	sealedMeter   = metrics.GetOrRegisterMeter("miner/sealed", nil)
	staleMeter    = metrics.GetOrRegisterMeter("miner/stale", nil)
	hashrateGauge = metrics.GetOrRegisterGauge("miner/hashrate", nil)
)

const (
	// sealChunk is how many nonces are tried between abort checks.
	sealChunk = 4096

	// maxTemplateTxs bounds the transaction count of one template.
	maxTemplateTxs = 5000

	// chainHeadChanSize is the buffer of the tip subscription.
	chainHeadChanSize = 10
)

// Miner drives the proof-of-work worker.
type Miner struct {
	chain *core.BlockChain
	pool  *txpool.TxPool
	log   log.Logger

	coinbase common.Address
	mining   atomic.Bool

	mu    sync.Mutex // protects start/stop transitions
	abort chan struct{}
	quit  chan struct{}
	wg    sync.WaitGroup
}

// New creates a stopped miner.
func New(chain *core.BlockChain, pool *txpool.TxPool) *Miner {
	return &Miner{
		chain: chain,
		pool:  pool,
		log:   log.New("module", "miner"),
		quit:  make(chan struct{}),
	}
}

// SetCoinbase sets the address block rewards are paid to.
func (m *Miner) SetCoinbase(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coinbase = addr
}

// Coinbase returns the configured reward address.
func (m *Miner) Coinbase() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coinbase
}

// Mining reports whether the worker is running.
func (m *Miner) Mining() bool { return m.mining.Load() }

// Start launches the worker loop.
func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mining.CompareAndSwap(false, true) {
		return
	}
	m.wg.Add(1)
	go m.loop()
	m.log.Info("Mining started", "coinbase", m.coinbase)
}

// Stop halts the worker and waits for it.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.mining.CompareAndSwap(true, false) {
		m.mu.Unlock()
		return
	}
	close(m.quit)
	m.mu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	m.quit = make(chan struct{})
	m.mu.Unlock()
	m.log.Info("Mining stopped")
}

// loop reacts to chain head changes, aborting and restarting the nonce
// search so work is never wasted on a superseded parent.
func (m *Miner) loop() {
	defer m.wg.Done()

	headCh := make(chan core.ChainHeadEvent, chainHeadChanSize)
	headSub := m.chain.SubscribeChainHeadEvent(headCh)
	defer headSub.Unsubscribe()

	results := make(chan *types.Block, 1)
	m.startWork(results)
	for {
		select {
		case <-headCh:
			// The tip moved: abandon the in-flight candidate. Nothing is
			// lost; submission runs through the common ingestion path.
			m.abortWork()
			m.startWork(results)

		case block := <-results:
			m.abortWork()
			if err := m.chain.InsertBlock(block); err != nil {
				staleMeter.Mark(1)
				m.log.Debug("Sealed block rejected", "height", block.Height(), "err", err)
				// No head event will fire for a rejected block; restart
				// on the current tip explicitly.
				m.startWork(results)
			}
			// On success the chain head event restarts the worker.

		case <-m.quit:
			m.abortWork()
			return
		}
	}
}

// abortWork signals the running seal, if any.
func (m *Miner) abortWork() {
	if m.abort != nil {
		close(m.abort)
		m.abort = nil
	}
}

// startWork assembles a template on the current tip and launches the
// nonce search for it.
func (m *Miner) startWork(results chan<- *types.Block) {
	parent := m.chain.CurrentBlock()
	block := m.buildTemplate(parent)
	abort := make(chan struct{})
	m.abort = abort
	go m.seal(block.Header(), block.Transactions(), abort, results)
}

// buildTemplate selects pool transactions by priority, prepends the
// coinbase and binds the header to the retarget-prescribed difficulty.
func (m *Miner) buildTemplate(parent *types.Block) *types.Block {
	var (
		config = m.chain.Config()
		height = parent.Height() + 1
		txs    = m.pool.SelectForBlock(txpool.MaxTemplateBytes(), maxTemplateTxs)
	)
	if config.RewardsEnabled() {
		var fees uint64
		for _, tx := range txs {
			fees += tx.Fee
		}
		coinbase := types.NewCoinbase(height, m.Coinbase(), config.BlockSubsidy(height)+fees)
		txs = append(types.Transactions{coinbase}, txs...)
	}
	timestamp := uint64(time.Now().Unix())
	if mtp := m.chain.MedianTimePast(parent); timestamp <= mtp {
		timestamp = mtp + 1
	}
	header := &types.Header{
		ParentHash: parent.Hash(),
		Time:       timestamp,
		Difficulty: m.chain.NextDifficulty(parent),
		Height:     height,
		Miner:      m.Coinbase(),
	}
	return types.NewBlock(header, txs)
}

// seal iterates the header nonce until the block hash satisfies the
// difficulty, checking for aborts between chunks.
func (m *Miner) seal(header *types.Header, txs types.Transactions, abort <-chan struct{}, results chan<- *types.Block) {
	var (
		started = time.Now()
		tried   uint64
	)
	for nonce := uint64(0); ; {
		select {
		case <-abort:
			return
		default:
		}
		for i := 0; i < sealChunk; i++ {
			header.Nonce = nonce
			if crypto.LeadingZeroBits(header.Hash()) >= header.Difficulty {
				block := types.NewBlockWithHeader(header, txs)
				sealedMeter.Mark(1)
				if elapsed := time.Since(started).Seconds(); elapsed > 0 {
					hashrateGauge.Update(int64(float64(tried) / elapsed))
				}
				m.log.Info("Block sealed", "height", header.Height,
					"hash", block.Hash().TerminalString(), "nonce", nonce,
					"elapsed", time.Since(started).Round(time.Millisecond))
				select {
				case results <- block:
				case <-abort:
				}
				return
			}
			nonce++
			tried++
		}
	}
}
