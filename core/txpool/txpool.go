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

// Package txpool holds the pending transactions of the node, ordered by
// fee priority for block template selection and revalidated as the chain
// moves.
package txpool

import (
	"errors"
	"sync"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/exp/slices"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/event"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/params"
)

var (
	// ErrAlreadyKnown is returned if a transaction is already contained
	// within the pool.
	ErrAlreadyKnown = errors.New("already known")

	// ErrUnderpriced is returned if the pool is full and the transaction
	// does not outbid the cheapest pending entry.
	ErrUnderpriced = errors.New("transaction underpriced for full pool")

	// ErrOverdraft is returned if the sender's balance cannot cover this
	// transaction on top of its other pending ones.
	ErrOverdraft = errors.New("pending transactions exceed balance")
)

var (
	pendingGauge     = metrics.GetOrRegisterGauge("txpool/pending", nil)
	addMeter         = metrics.GetOrRegisterMeter("txpool/adds", nil)
	evictMeter       = metrics.GetOrRegisterMeter("txpool/evictions", nil)
	includedMeter    = metrics.GetOrRegisterMeter("txpool/included", nil)
	reinjectMeter    = metrics.GetOrRegisterMeter("txpool/reinjected", nil)
	invalidatedMeter = metrics.GetOrRegisterMeter("txpool/invalidated", nil)
)

const (
	// chainEventChanSize is the buffer of the chain subscription
	// channels.
	chainEventChanSize = 10
)

// Config are the bounds of the pool.
type Config struct {
	// MaxBytes caps the summed encoding size of pending transactions.
	MaxBytes uint64 `toml:"max-bytes"`

	// MaxCount caps the number of pending transactions.
	MaxCount int `toml:"max-count"`
}

// DefaultConfig holds the default pool bounds.
var DefaultConfig = Config{
	MaxBytes: 32 << 20,
	MaxCount: 65536,
}

// blockChain is the subset of the chain manager the pool depends on.
type blockChain interface {
	CurrentBlock() *types.Block
	GetAccount(addr common.Address) types.Account
	SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription
	SubscribeReorgEvent(ch chan<- core.ReorgEvent) event.Subscription
}

// poolTx is a pending transaction with its priority inputs.
type poolTx struct {
	tx      *types.Transaction
	feeRate uint64 // fee per 1000 encoding bytes
	arrival uint64 // monotonic arrival sequence, the tie break
}

// TxPool holds pending transactions keyed by hash, ordered by fee per
// byte descending then arrival ascending. All mutation is serialized by
// one mutex; readers snapshot under RLock.
type TxPool struct {
	config Config
	chain  blockChain

	mu       sync.RWMutex
	all      map[common.Hash]*poolTx
	bySender map[common.Address][]*poolTx // sorted by nonce ascending
	bytes    uint64
	arrival  uint64

	txFeed event.FeedOf[core.NewTxsEvent]
	scope  event.SubscriptionScope

	chainHeadCh  chan core.ChainHeadEvent
	chainHeadSub event.Subscription
	reorgCh      chan core.ReorgEvent
	reorgSub     event.Subscription

	quit chan struct{}
	wg   sync.WaitGroup
}

// New creates a transaction pool tracking the given chain.
func New(config Config, chain blockChain) *TxPool {
	if config.MaxCount == 0 {
		config = DefaultConfig
	}
	pool := &TxPool{
		config:      config,
		chain:       chain,
		all:         make(map[common.Hash]*poolTx),
		bySender:    make(map[common.Address][]*poolTx),
		chainHeadCh: make(chan core.ChainHeadEvent, chainEventChanSize),
		reorgCh:     make(chan core.ReorgEvent, chainEventChanSize),
		quit:        make(chan struct{}),
	}
	pool.chainHeadSub = chain.SubscribeChainHeadEvent(pool.chainHeadCh)
	pool.reorgSub = chain.SubscribeReorgEvent(pool.reorgCh)

	pool.wg.Add(1)
	go pool.loop()
	return pool
}

// Stop terminates the pool's event loop.
func (pool *TxPool) Stop() {
	pool.scope.Close()
	pool.chainHeadSub.Unsubscribe()
	pool.reorgSub.Unsubscribe()
	close(pool.quit)
	pool.wg.Wait()
	log.Info("Transaction pool stopped")
}

// SubscribeNewTxsEvent registers a subscription of NewTxsEvent, posted
// when transactions enter the pending set.
func (pool *TxPool) SubscribeNewTxsEvent(ch chan<- core.NewTxsEvent) event.Subscription {
	return pool.scope.Track(pool.txFeed.Subscribe(ch))
}

// loop is the pool's actor: chain events serialize through it.
func (pool *TxPool) loop() {
	defer pool.wg.Done()
	for {
		select {
		case ev := <-pool.chainHeadCh:
			pool.onBlockApplied(ev.Block)
		case ev := <-pool.reorgCh:
			pool.onReorg(ev)
		case <-pool.quit:
			return
		}
	}
}

// Add validates a transaction against the committed state plus the
// sender's other pending transactions and inserts it. It returns the
// zero-based priority rank of the new entry.
func (pool *TxPool) Add(tx *types.Transaction) (int, error) {
	if err := core.ValidateTx(tx); err != nil {
		return 0, err
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()

	hash := tx.Hash()
	if _, ok := pool.all[hash]; ok {
		return 0, ErrAlreadyKnown
	}
	from := tx.From.Address()
	acct := pool.chain.GetAccount(from)
	if tx.Nonce < acct.Nonce {
		return 0, core.ErrNonceTooLow
	}
	// The sender must cover this transfer on top of everything it
	// already has pending.
	var pendingCost uint64
	for _, p := range pool.bySender[from] {
		if p.tx.Nonce == tx.Nonce {
			return 0, ErrAlreadyKnown
		}
		pendingCost += p.tx.Cost()
	}
	if acct.Balance < pendingCost+tx.Cost() {
		return 0, ErrOverdraft
	}
	entry := &poolTx{
		tx:      tx,
		feeRate: tx.Fee * 1000 / tx.Size(),
		arrival: pool.arrival,
	}
	// Enforce the pool bounds, evicting the lowest priority entries
	// first. A transaction that cannot outbid the cheapest entry of a
	// full pool is refused outright.
	for len(pool.all) >= pool.config.MaxCount || pool.bytes+tx.Size() > pool.config.MaxBytes {
		victim := pool.lowestPriority()
		if victim == nil || !less(entry, victim) {
			return 0, ErrUnderpriced
		}
		pool.remove(victim.tx.Hash())
		evictMeter.Mark(1)
	}
	pool.arrival++
	pool.all[hash] = entry
	pool.bytes += tx.Size()
	sender := append(pool.bySender[from], entry)
	slices.SortFunc(sender, func(a, b *poolTx) int {
		switch {
		case a.tx.Nonce < b.tx.Nonce:
			return -1
		case a.tx.Nonce > b.tx.Nonce:
			return 1
		}
		return 0
	})
	pool.bySender[from] = sender

	addMeter.Mark(1)
	pendingGauge.Update(int64(len(pool.all)))
	pool.txFeed.Send(core.NewTxsEvent{Txs: types.Transactions{tx}})
	return pool.rankLocked(entry), nil
}

// less orders two entries by priority: fee rate descending, then arrival
// ascending. It reports whether a outranks b.
func less(a, b *poolTx) bool {
	if a.feeRate != b.feeRate {
		return a.feeRate > b.feeRate
	}
	return a.arrival < b.arrival
}

// lowestPriority returns the entry that would be evicted first.
func (pool *TxPool) lowestPriority() *poolTx {
	var victim *poolTx
	for _, p := range pool.all {
		if victim == nil || less(victim, p) {
			victim = p
		}
	}
	return victim
}

// rankLocked computes the zero-based priority position of entry.
func (pool *TxPool) rankLocked(entry *poolTx) int {
	rank := 0
	for _, p := range pool.all {
		if p != entry && less(p, entry) {
			rank++
		}
	}
	return rank
}

// remove drops a transaction from all indexes. Callers hold the lock.
func (pool *TxPool) remove(hash common.Hash) {
	entry, ok := pool.all[hash]
	if !ok {
		return
	}
	delete(pool.all, hash)
	pool.bytes -= entry.tx.Size()
	from := entry.tx.From.Address()
	sender := pool.bySender[from]
	for i, p := range sender {
		if p == entry {
			sender = append(sender[:i], sender[i+1:]...)
			break
		}
	}
	if len(sender) == 0 {
		delete(pool.bySender, from)
	} else {
		pool.bySender[from] = sender
	}
}

// Get returns a pending transaction by hash, or nil.
func (pool *TxPool) Get(hash common.Hash) *types.Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if entry, ok := pool.all[hash]; ok {
		return entry.tx
	}
	return nil
}

// Has reports whether the pool holds the transaction.
func (pool *TxPool) Has(hash common.Hash) bool {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	_, ok := pool.all[hash]
	return ok
}

// Stats returns the pending count and summed bytes.
func (pool *TxPool) Stats() (int, uint64) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.all), pool.bytes
}

// Content returns a snapshot of the pending set in priority order.
func (pool *TxPool) Content() types.Transactions {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	entries := pool.sortedLocked()
	txs := make(types.Transactions, len(entries))
	for i, p := range entries {
		txs[i] = p.tx
	}
	return txs
}

// sortedLocked returns the entries ordered by priority.
func (pool *TxPool) sortedLocked() []*poolTx {
	entries := make([]*poolTx, 0, len(pool.all))
	for _, p := range pool.all {
		entries = append(entries, p)
	}
	slices.SortFunc(entries, func(a, b *poolTx) int {
		if less(a, b) {
			return -1
		}
		if less(b, a) {
			return 1
		}
		return 0
	})
	return entries
}

// SelectForBlock assembles the highest priority transactions honoring
// per-sender nonce order (gap free from the committed account nonce) and
// balance coverage, within the given bounds. The result is ready for a
// block template after the coinbase.
func (pool *TxPool) SelectForBlock(maxBytes uint64, maxCount int) types.Transactions {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	var (
		selected  types.Transactions
		bytes     uint64
		nextNonce = make(map[common.Address]uint64)
		spendable = make(map[common.Address]uint64)
		entries   = pool.sortedLocked()
	)
	// Passes over the priority order: a transaction becomes eligible
	// once its sender's earlier nonces are in. Repeat until a pass adds
	// nothing.
	for {
		progressed := false
		for _, p := range entries {
			if len(selected) >= maxCount || bytes+p.tx.Size() > maxBytes {
				continue
			}
			hash := p.tx.Hash()
			if containsTx(selected, hash) {
				continue
			}
			from := p.tx.From.Address()
			if _, ok := nextNonce[from]; !ok {
				acct := pool.chain.GetAccount(from)
				nextNonce[from] = acct.Nonce
				spendable[from] = acct.Balance
			}
			if p.tx.Nonce != nextNonce[from] {
				continue
			}
			if spendable[from] < p.tx.Cost() {
				continue
			}
			selected = append(selected, p.tx)
			bytes += p.tx.Size()
			nextNonce[from]++
			spendable[from] -= p.tx.Cost()
			progressed = true
		}
		if !progressed || len(selected) >= maxCount {
			return selected
		}
	}
}

func containsTx(txs types.Transactions, hash common.Hash) bool {
	for _, tx := range txs {
		if tx.Hash() == hash {
			return true
		}
	}
	return false
}

// onBlockApplied drops the transactions included in a freshly applied
// block and revalidates the remaining pending set of the touched
// senders.
func (pool *TxPool) onBlockApplied(block *types.Block) {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	senders := make(map[common.Address]struct{})
	for _, tx := range block.Transactions() {
		if entry, ok := pool.all[tx.Hash()]; ok {
			pool.remove(tx.Hash())
			includedMeter.Mark(1)
			senders[entry.tx.From.Address()] = struct{}{}
		} else if !tx.IsCoinbase() {
			senders[tx.From.Address()] = struct{}{}
		}
	}
	for from := range senders {
		pool.revalidateSender(from)
	}
	pendingGauge.Update(int64(len(pool.all)))
}

// onReorg reinjects the transactions of reverted blocks where still
// valid, then drops everything included by the applied side.
func (pool *TxPool) onReorg(ev core.ReorgEvent) {
	included := make(map[common.Hash]struct{})
	for _, block := range ev.Applied {
		for _, tx := range block.Transactions() {
			included[tx.Hash()] = struct{}{}
		}
	}
	reinjected := 0
	for i := len(ev.Reverted) - 1; i >= 0; i-- {
		for _, tx := range ev.Reverted[i].Transactions() {
			if tx.IsCoinbase() {
				continue
			}
			if _, ok := included[tx.Hash()]; ok {
				continue
			}
			if _, err := pool.Add(tx); err == nil {
				reinjected++
			}
		}
	}
	pool.mu.Lock()
	senders := make(map[common.Address]struct{})
	for hash := range included {
		if entry, ok := pool.all[hash]; ok {
			senders[entry.tx.From.Address()] = struct{}{}
			pool.remove(hash)
		}
	}
	for from := range senders {
		pool.revalidateSender(from)
	}
	pendingGauge.Update(int64(len(pool.all)))
	pool.mu.Unlock()
	if reinjected > 0 {
		reinjectMeter.Mark(int64(reinjected))
		log.Debug("Reinjected reverted transactions", "count", reinjected)
	}
}

// revalidateSender drops a sender's pending transactions that the
// committed state no longer admits: stale nonces or an overdrawn
// balance. Callers hold the lock.
func (pool *TxPool) revalidateSender(from common.Address) {
	sender := pool.bySender[from]
	if len(sender) == 0 {
		return
	}
	acct := pool.chain.GetAccount(from)
	var (
		pendingCost uint64
		drop        []common.Hash
	)
	for _, p := range sender {
		if p.tx.Nonce < acct.Nonce || acct.Balance < pendingCost+p.tx.Cost() {
			drop = append(drop, p.tx.Hash())
			continue
		}
		pendingCost += p.tx.Cost()
	}
	for _, hash := range drop {
		pool.remove(hash)
		invalidatedMeter.Mark(1)
	}
	if len(drop) > 0 {
		log.Trace("Dropped invalidated transactions", "sender", from.TerminalString(), "count", len(drop))
	}
}

// MaxTemplateBytes returns the byte budget for transactions in a block
// template, leaving room for the header and the coinbase.
func MaxTemplateBytes() uint64 {
	return params.MaxBlockBytes - types.HeaderSize - 4 - types.TxSize
}
