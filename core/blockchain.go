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

// Package core implements the chain manager: it owns the authoritative
// chain, applies and reverts blocks, runs fork choice and difficulty
// retargeting, and emits chain events.
package core

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/rcrowley/go-metrics"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/event"
	"github.com/opensyria/go-lira/core/rawdb"
	"github.com/opensyria/go-lira/core/state"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/params"
)

var (
	blockInsertTimer    = metrics.GetOrRegisterTimer("chain/inserts", nil)
	blockSideMeter      = metrics.GetOrRegisterMeter("chain/side", nil)
	blockOrphanMeter    = metrics.GetOrRegisterMeter("chain/orphans", nil)
	blockReorgMeter     = metrics.GetOrRegisterMeter("chain/reorg/executes", nil)
	blockReorgAddMeter  = metrics.GetOrRegisterMeter("chain/reorg/add", nil)
	blockReorgDropMeter = metrics.GetOrRegisterMeter("chain/reorg/drop", nil)
)

const (
	// blockCacheLimit bounds the recently touched block cache.
	blockCacheLimit = 256

	// maxOrphanBlocks bounds the orphan pool; the oldest entry is
	// evicted on overflow.
	maxOrphanBlocks = 128

	// orphanSweepInterval is how often expired orphans are collected.
	orphanSweepInterval = 30 * time.Second
)

// orphanBlock is a structurally valid block whose parent is unknown,
// parked until the parent arrives or the TTL passes.
type orphanBlock struct {
	block   *types.Block
	expires time.Time
}

// BlockChain owns the canonical chain and all state transitions over it.
// Mutation is serialized through a single mutex; readers work off the
// committed database and atomic tip markers without taking it.
type BlockChain struct {
	config    *params.ChainConfig
	db        liradb.Database
	genesis   *types.Block
	validator *BlockValidator
	processor *StateProcessor

	// chainmu serializes chain write operations. It is never held while
	// waiting on external input.
	chainmu sync.Mutex

	currentBlock atomic.Pointer[types.Block]
	currentMeta  atomic.Pointer[types.ChainMetadata]

	blockCache *lru.Cache // common.Hash -> *types.Block

	orphanMu  sync.Mutex
	orphans   map[common.Hash]*orphanBlock
	orphanIdx map[common.Hash]map[common.Hash]*orphanBlock // parent -> children

	chainHeadFeed event.FeedOf[ChainHeadEvent]
	chainSideFeed event.FeedOf[ChainSideEvent]
	reorgFeed     event.FeedOf[ReorgEvent]
	rejectedFeed  event.FeedOf[RejectedBlockEvent]
	scope         event.SubscriptionScope

	quit     chan struct{}
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// NewBlockChain opens the chain over db, materializing genesis if the
// database is fresh, and restores the tip markers.
func NewBlockChain(db liradb.Database, genesis *Genesis) (*BlockChain, error) {
	if genesis == nil {
		genesis = DefaultGenesis()
	}
	gblock, err := SetupGenesisBlock(db, genesis)
	if err != nil {
		return nil, err
	}
	cache, _ := lru.New(blockCacheLimit)
	bc := &BlockChain{
		config:     genesis.Config,
		db:         db,
		genesis:    gblock,
		validator:  NewBlockValidator(genesis.Config),
		processor:  NewStateProcessor(genesis.Config),
		blockCache: cache,
		orphans:    make(map[common.Hash]*orphanBlock),
		orphanIdx:  make(map[common.Hash]map[common.Hash]*orphanBlock),
		quit:       make(chan struct{}),
	}
	meta := rawdb.ReadMetadata(db)
	if meta == nil {
		return nil, ErrNoGenesis
	}
	head := rawdb.ReadBlock(db, meta.BestHash)
	if head == nil {
		return nil, fmt.Errorf("head block %s missing from database", meta.BestHash)
	}
	bc.currentBlock.Store(head)
	bc.currentMeta.Store(meta)

	log.Info("Loaded local chain", "height", meta.BestHeight, "hash", meta.BestHash.TerminalString(),
		"difficulty", meta.Difficulty)

	bc.wg.Add(1)
	go bc.orphanSweeper()
	return bc, nil
}

// Stop shuts the chain manager down. No insertions are accepted
// afterwards.
func (bc *BlockChain) Stop() {
	if !bc.stopping.CompareAndSwap(false, true) {
		return
	}
	close(bc.quit)
	bc.wg.Wait()
	bc.scope.Close()
	log.Info("Blockchain stopped", "height", bc.CurrentBlock().Height())
}

// SubscribeChainHeadEvent registers a subscription of ChainHeadEvent.
func (bc *BlockChain) SubscribeChainHeadEvent(ch chan<- ChainHeadEvent) event.Subscription {
	return bc.scope.Track(bc.chainHeadFeed.Subscribe(ch))
}

// SubscribeChainSideEvent registers a subscription of ChainSideEvent.
func (bc *BlockChain) SubscribeChainSideEvent(ch chan<- ChainSideEvent) event.Subscription {
	return bc.scope.Track(bc.chainSideFeed.Subscribe(ch))
}

// SubscribeReorgEvent registers a subscription of ReorgEvent.
func (bc *BlockChain) SubscribeReorgEvent(ch chan<- ReorgEvent) event.Subscription {
	return bc.scope.Track(bc.reorgFeed.Subscribe(ch))
}

// SubscribeRejectedBlockEvent registers a subscription of
// RejectedBlockEvent.
func (bc *BlockChain) SubscribeRejectedBlockEvent(ch chan<- RejectedBlockEvent) event.Subscription {
	return bc.scope.Track(bc.rejectedFeed.Subscribe(ch))
}

// Config returns the chain configuration.
func (bc *BlockChain) Config() *params.ChainConfig { return bc.config }

// Genesis returns the genesis block.
func (bc *BlockChain) Genesis() *types.Block { return bc.genesis }

// CurrentBlock returns the canonical tip.
func (bc *BlockChain) CurrentBlock() *types.Block {
	return bc.currentBlock.Load()
}

// Metadata returns a copy of the committed chain metadata.
func (bc *BlockChain) Metadata() *types.ChainMetadata {
	return bc.currentMeta.Load().Copy()
}

// GetBlock retrieves a block by hash from any branch, or nil.
func (bc *BlockChain) GetBlock(hash common.Hash) *types.Block {
	if cached, ok := bc.blockCache.Get(hash); ok {
		return cached.(*types.Block)
	}
	block := rawdb.ReadBlock(bc.db, hash)
	if block != nil {
		bc.blockCache.Add(hash, block)
	}
	return block
}

// HasBlock reports whether the block is stored on any branch.
func (bc *BlockChain) HasBlock(hash common.Hash) bool {
	if bc.blockCache.Contains(hash) {
		return true
	}
	return rawdb.HasBlock(bc.db, hash)
}

// GetCanonicalHash returns the canonical block hash at the height, or the
// zero hash.
func (bc *BlockChain) GetCanonicalHash(height uint64) common.Hash {
	return rawdb.ReadCanonicalHash(bc.db, height)
}

// GetBlockByHeight retrieves a canonical block by height, or nil.
func (bc *BlockChain) GetBlockByHeight(height uint64) *types.Block {
	hash := rawdb.ReadCanonicalHash(bc.db, height)
	if hash == (common.Hash{}) {
		return nil
	}
	return bc.GetBlock(hash)
}

// GetAccount returns the committed state of an address.
func (bc *BlockChain) GetAccount(addr common.Address) types.Account {
	return rawdb.ReadAccount(bc.db, addr)
}

// BlocksFrom returns up to max canonical blocks starting at the given
// height, in ascending order. Used to serve range sync requests.
func (bc *BlockChain) BlocksFrom(height uint64, max int) []*types.Block {
	var blocks []*types.Block
	for i := 0; i < max; i++ {
		block := bc.GetBlockByHeight(height + uint64(i))
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// HeadersFromLocator locates the most recent canonical block referenced
// by the exponential-step locator and returns up to max headers following
// it, ascending. An empty or unknown locator starts right after genesis.
func (bc *BlockChain) HeadersFromLocator(locator []common.Hash, max int) []*types.Header {
	start := uint64(1)
	for _, hash := range locator {
		block := bc.GetBlock(hash)
		if block == nil {
			continue
		}
		if rawdb.ReadCanonicalHash(bc.db, block.Height()) == hash {
			start = block.Height() + 1
			break
		}
	}
	var headers []*types.Header
	for len(headers) < max {
		block := bc.GetBlockByHeight(start)
		if block == nil {
			break
		}
		headers = append(headers, block.Header())
		start++
	}
	return headers
}

// Locator assembles an exponential-step hash locator from the current tip
// backwards, ending at genesis. Nearby blocks are dense, far ones sparse,
// so a common ancestor is found in logarithmic messages.
func (bc *BlockChain) Locator() []common.Hash {
	var (
		locator []common.Hash
		height  = bc.CurrentBlock().Height()
		step    = uint64(1)
	)
	for {
		hash := rawdb.ReadCanonicalHash(bc.db, height)
		if hash != (common.Hash{}) {
			locator = append(locator, hash)
		}
		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if height > step {
			height -= step
		} else {
			height = 0
		}
	}
	return locator
}

// MedianTimePast returns the median timestamp of the given block and its
// recent ancestors, the floor a child's timestamp must exceed.
func (bc *BlockChain) MedianTimePast(block *types.Block) uint64 {
	times := make([]uint64, 0, params.MedianTimeBlocks)
	for i := 0; i < params.MedianTimeBlocks && block != nil; i++ {
		times = append(times, block.Time())
		if block.Height() == 0 {
			break
		}
		block = bc.GetBlock(block.ParentHash())
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

// NextDifficulty returns the difficulty prescribed for the child of
// parent. Away from a retarget boundary this is the parent's difficulty;
// on a boundary the window span rule applies, evaluated along parent's
// own branch so side chains retarget correctly.
func (bc *BlockChain) NextDifficulty(parent *types.Block) uint32 {
	next := parent.Height() + 1
	if next%params.RetargetInterval != 0 {
		return parent.Difficulty()
	}
	ancestor := parent
	for i := uint64(0); i < params.RetargetInterval-1 && ancestor != nil; i++ {
		ancestor = bc.GetBlock(ancestor.ParentHash())
	}
	if ancestor == nil {
		return parent.Difficulty()
	}
	var span uint64
	if parent.Time() > ancestor.Time() {
		span = parent.Time() - ancestor.Time()
	}
	return retargetDifficulty(parent.Difficulty(), span)
}

// InsertBlock feeds one candidate block through the full ingestion path:
// structural checks without the chain lock, then contextual validation,
// fork choice and the atomic state transition under it. The same path
// serves the miner, the RPC surface and peer sync.
func (bc *BlockChain) InsertBlock(block *types.Block) error {
	if bc.stopping.Load() {
		return errChainStopped
	}
	start := time.Now()
	hash := block.Hash()
	if bc.HasBlock(hash) {
		return ErrKnownBlock
	}
	if err := bc.validator.ValidateStructure(block, uint64(time.Now().Unix())); err != nil {
		bc.rejectedFeed.Send(RejectedBlockEvent{Hash: hash, Err: err})
		return err
	}
	err := bc.insert(block)
	switch err {
	case nil:
		blockInsertTimer.UpdateSince(start)
		// The new block may be the missing parent of parked orphans.
		bc.wakeOrphans(hash)
	case ErrKnownBlock, ErrMissingParent, ErrDeepReorg:
		// Duplicate delivery, a parked orphan, or a refusal insert has
		// already reported.
	default:
		bc.rejectedFeed.Send(RejectedBlockEvent{Hash: hash, Err: err})
	}
	return err
}

// insert runs the serialized part of ingestion.
func (bc *BlockChain) insert(block *types.Block) error {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	hash := block.Hash()
	if bc.HasBlock(hash) {
		return ErrKnownBlock
	}
	parent := bc.GetBlock(block.ParentHash())
	if parent == nil {
		bc.addOrphan(block)
		return ErrMissingParent
	}
	// Contextual header rules against the parent.
	if block.Height() != parent.Height()+1 {
		return ErrBadHeight
	}
	if block.Time() <= bc.MedianTimePast(parent) {
		return ErrStaleTimestamp
	}
	if want := bc.NextDifficulty(parent); block.Difficulty() != want {
		return fmt.Errorf("%w: have %d, want %d", ErrBadDifficulty, block.Difficulty(), want)
	}
	parentWork := rawdb.ReadTotalWork(bc.db, parent.Hash())
	if parentWork == nil {
		log.Crit("Missing total work for stored block", "hash", parent.Hash())
	}
	newWork := new(uint256.Int).Add(parentWork, WorkForDifficulty(block.Difficulty()))

	var (
		current = bc.CurrentBlock()
		meta    = bc.currentMeta.Load()
		better  = newWork.Gt(meta.TotalWork) ||
			(newWork.Eq(meta.TotalWork) && hash.Cmp(meta.BestHash) < 0)
	)
	// Locate the fork point. For a tip extension both lists are empty.
	revert, apply, err := bc.reorgPaths(current, parent)
	if err != nil {
		// The branch forks deeper than the reorg bound. The block is
		// kept on its side branch; if it would have won fork choice the
		// refusal is reported.
		bc.writeSideBlock(block, newWork)
		if better {
			log.Warn("Refusing deep reorganization", "hash", hash.TerminalString(),
				"height", block.Height(), "tip", current.Height())
			bc.rejectedFeed.Send(RejectedBlockEvent{Hash: hash, Err: ErrDeepReorg})
			return ErrDeepReorg
		}
		return nil
	}
	// Contextual transaction validation runs against the state at the
	// parent, reconstructed from undo records and side-branch replays
	// when the parent is off the canonical chain.
	statedb := state.New(bc.db)
	for _, rb := range revert {
		undo := rawdb.ReadUndo(bc.db, rb.Hash())
		if undo == nil && len(rb.Transactions()) > 0 {
			log.Crit("Missing undo record for canonical block", "hash", rb.Hash())
		}
		statedb.ApplyUndo(undo)
	}
	undos := make(map[common.Hash][]rawdb.UndoEntry, len(apply)+1)
	for _, ab := range append(apply[:len(apply):len(apply)], block) {
		statedb.BeginBlock()
		if err := bc.processor.Process(ab, statedb); err != nil {
			if ab == block {
				return err
			}
			// A stored side block no longer validates on replay; the
			// branch is inconsistent and the candidate unusable.
			return fmt.Errorf("branch replay of %s failed: %w", ab.Hash().TerminalString(), err)
		}
		undos[ab.Hash()] = statedb.UndoEntries()
	}
	if !better {
		bc.writeSideBlock(block, newWork)
		return nil
	}

	// The candidate wins fork choice: commit the whole transition as one
	// atomic batch.
	applied := append(apply, block)
	batch := bc.db.NewBatch()
	rawdb.WriteBlock(batch, block)
	rawdb.WriteTotalWork(batch, hash, newWork)
	for _, rb := range revert {
		rawdb.DeleteUndo(batch, rb.Hash())
		rawdb.DeleteCanonicalHash(batch, rb.Height())
	}
	for _, ab := range applied {
		rawdb.WriteCanonicalHash(batch, ab.Height(), ab.Hash())
		rawdb.WriteUndo(batch, ab.Hash(), undos[ab.Hash()])
	}
	statedb.Commit(batch)

	// The retarget bookkeeping follows the new canonical branch: the
	// boundary block is among the applied ones, or below the fork point
	// where the old height index is still valid.
	retargetHeight := block.Height() / params.RetargetInterval * params.RetargetInterval
	retargetBlock := bc.GetBlockByHeight(retargetHeight)
	for _, ab := range applied {
		if ab.Height() == retargetHeight {
			retargetBlock = ab
		}
	}
	if retargetBlock == nil {
		log.Crit("Missing retarget boundary block", "height", retargetHeight)
	}
	newMeta := &types.ChainMetadata{
		BestHash:           hash,
		BestHeight:         block.Height(),
		TotalWork:          newWork,
		Difficulty:         block.Difficulty(),
		LastRetargetHeight: retargetHeight,
		LastRetargetTime:   retargetBlock.Time(),
	}
	rawdb.WriteMetadata(batch, newMeta)

	// A failed batch write is a storage fault; the contract is fatal.
	if err := batch.Write(); err != nil {
		log.Crit("Failed to commit chain transition", "err", err)
	}
	bc.blockCache.Add(hash, block)
	bc.currentBlock.Store(block)
	bc.currentMeta.Store(newMeta)

	// Post commit: events in commit order.
	if len(revert) > 0 {
		blockReorgMeter.Mark(1)
		blockReorgDropMeter.Mark(int64(len(revert)))
		blockReorgAddMeter.Mark(int64(len(applied)))
		log.Warn("Chain reorganization executed", "drop", len(revert), "add", len(applied),
			"fork", revert[len(revert)-1].ParentHash().TerminalString(), "tip", hash.TerminalString())
		for _, rb := range revert {
			bc.chainSideFeed.Send(ChainSideEvent{Block: rb})
		}
		bc.reorgFeed.Send(ReorgEvent{Reverted: revert, Applied: applied})
	}
	for _, ab := range applied {
		bc.chainHeadFeed.Send(ChainHeadEvent{Block: ab})
	}
	log.Info("Imported new block", "height", block.Height(), "hash", hash.TerminalString(),
		"txs", len(block.Transactions()), "work", newWork)
	return nil
}

// writeSideBlock persists a block that stays off the canonical chain.
func (bc *BlockChain) writeSideBlock(block *types.Block, work *uint256.Int) {
	batch := bc.db.NewBatch()
	rawdb.WriteBlock(batch, block)
	rawdb.WriteTotalWork(batch, block.Hash(), work)
	if err := batch.Write(); err != nil {
		log.Crit("Failed to store side block", "err", err)
	}
	bc.blockCache.Add(block.Hash(), block)
	blockSideMeter.Mark(1)
	log.Debug("Stored side branch block", "height", block.Height(), "hash", block.Hash().TerminalString())
	bc.chainSideFeed.Send(ChainSideEvent{Block: block})
}

// reorgPaths computes the blocks to revert (tip first, down to but
// excluding the fork point) and to apply (fork point exclusive up to and
// including newParent, ascending) to move the chain onto newParent's
// branch. It fails once the revert list passes the reorg depth bound.
func (bc *BlockChain) reorgPaths(tip, newParent *types.Block) (revert, apply []*types.Block, err error) {
	a, b := tip, newParent
	for a.Height() > b.Height() {
		revert = append(revert, a)
		if len(revert) > params.MaxReorgDepth {
			return nil, nil, ErrDeepReorg
		}
		if a = bc.GetBlock(a.ParentHash()); a == nil {
			log.Crit("Broken canonical ancestry", "tip", tip.Hash())
		}
	}
	for b.Height() > a.Height() {
		apply = append(apply, b)
		if b = bc.GetBlock(b.ParentHash()); b == nil {
			return nil, nil, ErrMissingParent
		}
	}
	for a.Hash() != b.Hash() {
		revert = append(revert, a)
		if len(revert) > params.MaxReorgDepth {
			return nil, nil, ErrDeepReorg
		}
		apply = append(apply, b)
		if a = bc.GetBlock(a.ParentHash()); a == nil {
			log.Crit("Broken canonical ancestry", "tip", tip.Hash())
		}
		if b = bc.GetBlock(b.ParentHash()); b == nil {
			return nil, nil, ErrMissingParent
		}
	}
	// The apply list was collected tip-down; flip it ascending.
	for i, j := 0, len(apply)-1; i < j; i, j = i+1, j-1 {
		apply[i], apply[j] = apply[j], apply[i]
	}
	return revert, apply, nil
}

// addOrphan parks a block whose parent is unknown.
func (bc *BlockChain) addOrphan(block *types.Block) {
	bc.orphanMu.Lock()
	defer bc.orphanMu.Unlock()

	hash := block.Hash()
	if _, ok := bc.orphans[hash]; ok {
		return
	}
	// Bound the pool: drop the entry closest to expiry.
	if len(bc.orphans) >= maxOrphanBlocks {
		var (
			oldest common.Hash
			first  time.Time
		)
		for h, o := range bc.orphans {
			if first.IsZero() || o.expires.Before(first) {
				oldest, first = h, o.expires
			}
		}
		bc.removeOrphanLocked(oldest)
	}
	o := &orphanBlock{block: block, expires: time.Now().Add(time.Duration(params.OrphanTTL) * time.Second)}
	bc.orphans[hash] = o
	parent := block.ParentHash()
	if bc.orphanIdx[parent] == nil {
		bc.orphanIdx[parent] = make(map[common.Hash]*orphanBlock)
	}
	bc.orphanIdx[parent][hash] = o
	blockOrphanMeter.Mark(1)
	log.Debug("Parked orphan block", "hash", hash.TerminalString(), "missing", parent.TerminalString())
}

func (bc *BlockChain) removeOrphanLocked(hash common.Hash) {
	o, ok := bc.orphans[hash]
	if !ok {
		return
	}
	delete(bc.orphans, hash)
	parent := o.block.ParentHash()
	if kids := bc.orphanIdx[parent]; kids != nil {
		delete(kids, hash)
		if len(kids) == 0 {
			delete(bc.orphanIdx, parent)
		}
	}
}

// wakeOrphans re-inserts any parked blocks whose missing parent is now
// known, cascading through orphan chains.
func (bc *BlockChain) wakeOrphans(parent common.Hash) {
	queue := []common.Hash{parent}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		bc.orphanMu.Lock()
		var children []*types.Block
		for hash, o := range bc.orphanIdx[next] {
			children = append(children, o.block)
			bc.removeOrphanLocked(hash)
		}
		bc.orphanMu.Unlock()

		for _, child := range children {
			if err := bc.insert(child); err == nil {
				queue = append(queue, child.Hash())
			} else if err != ErrKnownBlock {
				log.Debug("Woken orphan rejected", "hash", child.Hash().TerminalString(), "err", err)
			}
		}
	}
}

// MissingParent returns the parent hash a parked orphan chain is waiting
// for, walking the pool upwards so the request targets the lowest unknown
// ancestor.
func (bc *BlockChain) MissingParent(hash common.Hash) (common.Hash, bool) {
	bc.orphanMu.Lock()
	defer bc.orphanMu.Unlock()

	o, ok := bc.orphans[hash]
	if !ok {
		return common.Hash{}, false
	}
	missing := o.block.ParentHash()
	for {
		parent, ok := bc.orphans[missing]
		if !ok {
			return missing, true
		}
		missing = parent.block.ParentHash()
	}
}

// orphanSweeper drops orphans whose parent never arrived within the TTL.
func (bc *BlockChain) orphanSweeper() {
	defer bc.wg.Done()

	ticker := time.NewTicker(orphanSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			bc.orphanMu.Lock()
			for hash, o := range bc.orphans {
				if o.expires.Before(now) {
					log.Debug("Expired orphan block", "hash", hash.TerminalString())
					bc.removeOrphanLocked(hash)
				}
			}
			bc.orphanMu.Unlock()
		case <-bc.quit:
			return
		}
	}
}
