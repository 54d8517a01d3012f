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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/params"
)

// TestSimpleTransfer mines one block moving 100 Lira with a 1 Lira fee
// and checks every balance movement, including the coinbase payout.
func TestSimpleTransfer(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))

	keyA := testKey(t, 1)
	addrB := testKey(t, 2).Address()
	tx := types.NewTransaction(crypto.PublicKey{}, addrB, 100*params.Lira, 1*params.Lira, 0).SignWith(keyA)

	block := mineBlock(t, bc, bc.Genesis(), types.Transactions{tx}, minerAddr, 60)
	require.NoError(t, bc.InsertBlock(block))

	require.Equal(t, block.Hash(), bc.CurrentBlock().Hash())
	require.EqualValues(t, 899*params.Lira, bc.GetAccount(keyA.Address()).Balance)
	require.EqualValues(t, 100*params.Lira, bc.GetAccount(addrB).Balance)
	require.EqualValues(t, 1, bc.GetAccount(keyA.Address()).Nonce)

	// The miner collects the subsidy plus the fee.
	reward := bc.Config().BlockSubsidy(1)
	require.EqualValues(t, reward+1*params.Lira, bc.GetAccount(minerAddr).Balance)
}

// TestStoredBlockSatisfiesPoW re-reads every canonical block and checks
// hash determinism and the proof-of-work invariant against storage.
func TestStoredBlockSatisfiesPoW(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	mineChain(t, bc, bc.Genesis(), 5, minerAddr)

	for h := uint64(1); h <= 5; h++ {
		block := bc.GetBlockByHeight(h)
		require.NotNil(t, block)
		require.Equal(t, block.Hash(), bc.GetCanonicalHash(h))
		require.GreaterOrEqual(t, crypto.LeadingZeroBits(block.Hash()), block.Difficulty())
	}
}

func TestRejectInvalidBlocks(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	genesis := bc.Genesis()

	t.Run("bad merkle root", func(t *testing.T) {
		block := mineBlock(t, bc, genesis, nil, minerAddr, 60)
		header := block.Header()
		header.MerkleRoot = common.Hash{0xde, 0xad}
		// Re-seal over the corrupted root so only the Merkle check fires.
		for header.Nonce = 0; crypto.LeadingZeroBits(header.Hash()) < header.Difficulty; header.Nonce++ {
		}
		err := bc.InsertBlock(types.NewBlockWithHeader(header, block.Transactions()))
		require.ErrorIs(t, err, ErrBadMerkleRoot)
	})

	t.Run("insufficient pow", func(t *testing.T) {
		g := testGenesis(t)
		g.Difficulty = 24
		weak := newTestChain(t, g)
		block := mineBlock(t, bc, genesis, nil, minerAddr, 60) // difficulty 1 seal
		header := block.Header()
		header.Difficulty = 24
		for crypto.LeadingZeroBits(header.Hash()) >= 24 {
			header.Nonce++
		}
		err := weak.InsertBlock(types.NewBlockWithHeader(header, block.Transactions()))
		require.ErrorIs(t, err, ErrPoWInsufficient)
	})

	t.Run("future timestamp", func(t *testing.T) {
		future := uint64(time.Now().Unix()) + 10*params.MaxFutureDrift
		block := mineBlock(t, bc, genesis, nil, minerAddr, future-genesis.Time())
		require.ErrorIs(t, bc.InsertBlock(block), ErrFutureTimestamp)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		tip := bc.CurrentBlock()
		block := mineBlock(t, bc, tip, nil, minerAddr, 0)
		require.ErrorIs(t, bc.InsertBlock(block), ErrStaleTimestamp)
	})

	t.Run("wrong difficulty", func(t *testing.T) {
		block := mineBlock(t, bc, genesis, nil, minerAddr, 60)
		header := block.Header()
		header.Difficulty = 2
		for header.Nonce = 0; crypto.LeadingZeroBits(header.Hash()) < 2; header.Nonce++ {
		}
		err := bc.InsertBlock(types.NewBlockWithHeader(header, block.Transactions()))
		require.ErrorIs(t, err, ErrBadDifficulty)
	})

	t.Run("overspending transfer", func(t *testing.T) {
		keyA := testKey(t, 1)
		tx := types.NewTransaction(crypto.PublicKey{}, minerAddr2, 5000*params.Lira, params.MinFee, 0).SignWith(keyA)
		block := mineBlock(t, bc, genesis, types.Transactions{tx}, minerAddr, 60)
		require.ErrorIs(t, bc.InsertBlock(block), ErrInsufficientFunds)
	})
}

// TestDuplicateInsert checks duplicate delivery is flagged as known, not
// rejected.
func TestDuplicateInsert(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	block := mineBlock(t, bc, bc.Genesis(), nil, minerAddr, 60)
	require.NoError(t, bc.InsertBlock(block))
	require.ErrorIs(t, bc.InsertBlock(block), ErrKnownBlock)
}

// TestOrphanAdoption delivers a child before its parent and expects the
// pair to connect once the parent arrives.
func TestOrphanAdoption(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))

	b1 := mineBlock(t, bc, bc.Genesis(), nil, minerAddr, 60)
	b2 := mineBlock(t, bc, b1, nil, minerAddr, 60)

	require.ErrorIs(t, bc.InsertBlock(b2), ErrMissingParent)
	missing, ok := bc.MissingParent(b2.Hash())
	require.True(t, ok)
	require.Equal(t, b1.Hash(), missing)

	require.NoError(t, bc.InsertBlock(b1))
	require.Equal(t, b2.Hash(), bc.CurrentBlock().Hash())
}

// TestReorg replays the shared-parent scenario: from a fork at height
// 10, branch X reaches 12 and branch Y 13. Accepting Y reverts two
// blocks and applies three.
func TestReorg(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))

	base := mineChain(t, bc, bc.Genesis(), 10, minerAddr)
	forkPoint := base[9]

	x := buildBranch(t, bc, forkPoint, 2, minerAddr)
	for _, block := range x {
		require.NoError(t, bc.InsertBlock(block))
	}
	require.Equal(t, x[1].Hash(), bc.CurrentBlock().Hash())

	reorgCh := make(chan ReorgEvent, 4)
	sub := bc.SubscribeReorgEvent(reorgCh)
	defer sub.Unsubscribe()

	y := buildBranch(t, bc, forkPoint, 3, minerAddr2)
	for _, block := range y {
		err := bc.InsertBlock(block)
		require.True(t, err == nil || err == ErrKnownBlock, "insert: %v", err)
	}
	require.Equal(t, y[2].Hash(), bc.CurrentBlock().Hash())
	require.EqualValues(t, 13, bc.Metadata().BestHeight)

	// Both X blocks were reverted, exactly once across however many
	// transitions fork choice took.
	reverted := make(map[common.Hash]int)
	for done := false; !done; {
		select {
		case ev := <-reorgCh:
			for _, block := range ev.Reverted {
				reverted[block.Hash()]++
			}
		default:
			done = true
		}
	}
	require.Equal(t, map[common.Hash]int{x[0].Hash(): 1, x[1].Hash(): 1}, reverted)

	// The canonical index follows Y.
	for i, block := range y {
		require.Equal(t, block.Hash(), bc.GetCanonicalHash(uint64(11+i)))
	}
}

// TestDeepReorgRefused forks at genesis against a 110 block canonical
// chain: the heavier branch is refused and the tip retained.
func TestDeepReorgRefused(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	canon := mineChain(t, bc, bc.Genesis(), 110, minerAddr)
	tip := canon[len(canon)-1]

	rejectedCh := make(chan RejectedBlockEvent, 4)
	sub := bc.SubscribeRejectedBlockEvent(rejectedCh)
	defer sub.Unsubscribe()

	parent := bc.Genesis()
	var refused bool
	for i := 0; i < 120; i++ {
		block := mineBlock(t, bc, parent, nil, minerAddr2, 60)
		err := bc.InsertBlock(block)
		if err != nil {
			require.ErrorIs(t, err, ErrDeepReorg)
			refused = true
			break
		}
		parent = block
	}
	require.True(t, refused, "branch never outgrew the canonical chain")
	require.Equal(t, tip.Hash(), bc.CurrentBlock().Hash())

	select {
	case ev := <-rejectedCh:
		require.ErrorIs(t, ev.Err, ErrDeepReorg)
	case <-time.After(time.Second):
		t.Fatal("no DeepReorgRejected report")
	}
}

// TestConservation checks apply-then-revert restores accounts and
// metadata exactly.
func TestConservation(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	keyA := testKey(t, 1)
	addrB := testKey(t, 2).Address()
	genesis := bc.Genesis()

	preA := bc.GetAccount(keyA.Address())
	preMeta := bc.Metadata()

	// Apply a block with a transfer...
	tx := types.NewTransaction(crypto.PublicKey{}, addrB, 10*params.Lira, params.MinFee, 0).SignWith(keyA)
	spend := mineBlock(t, bc, genesis, types.Transactions{tx}, minerAddr, 60)
	require.NoError(t, bc.InsertBlock(spend))
	require.NotEqual(t, preA, bc.GetAccount(keyA.Address()))

	// ...then revert it with a heavier empty branch.
	branch := buildBranch(t, bc, genesis, 2, minerAddr2)
	for _, block := range branch {
		err := bc.InsertBlock(block)
		require.True(t, err == nil || err == ErrKnownBlock, "insert: %v", err)
	}
	require.Equal(t, branch[1].Hash(), bc.CurrentBlock().Hash())

	require.Equal(t, preA, bc.GetAccount(keyA.Address()))
	require.Equal(t, types.Account{}, bc.GetAccount(addrB))
	require.Equal(t, types.Account{}, bc.GetAccount(minerAddr))

	// Metadata fields unrelated to the new branch are restored too.
	meta := bc.Metadata()
	require.Equal(t, preMeta.Difficulty, meta.Difficulty)
	require.Equal(t, preMeta.LastRetargetHeight, meta.LastRetargetHeight)
}

// TestForkChoiceTieBreak feeds two equal-work siblings and expects the
// lexicographically lower hash to win, regardless of arrival order.
func TestForkChoiceTieBreak(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	genesis := bc.Genesis()

	a := mineBlock(t, bc, genesis, nil, minerAddr, 60)
	b := mineBlock(t, bc, genesis, nil, minerAddr2, 60)
	lower, higher := a, b
	if b.Hash().Cmp(a.Hash()) < 0 {
		lower, higher = b, a
	}

	require.NoError(t, bc.InsertBlock(higher))
	require.Equal(t, higher.Hash(), bc.CurrentBlock().Hash())

	require.NoError(t, bc.InsertBlock(lower))
	require.Equal(t, lower.Hash(), bc.CurrentBlock().Hash(),
		"equal work must prefer the lower hash")

	// And the loser stays available on its side branch.
	require.True(t, bc.HasBlock(higher.Hash()))
}

// TestRetargetClampThroughChain mines a full retarget window at one
// second spacing: the difficulty may rise by at most 25%.
func TestRetargetClampThroughChain(t *testing.T) {
	g := testGenesis(t)
	g.Difficulty = 8
	bc := newTestChain(t, g)

	parent := bc.Genesis()
	for i := 0; i < 99; i++ {
		block := mineBlock(t, bc, parent, nil, minerAddr, 1)
		require.NoError(t, bc.InsertBlock(block))
		parent = block
	}
	// Height 100 sits on the retarget boundary; 8 * 5/4 = 10.
	require.Equal(t, uint32(10), bc.NextDifficulty(parent))
	boundary := mineBlock(t, bc, parent, nil, minerAddr, 1)
	require.NoError(t, bc.InsertBlock(boundary))
	require.Equal(t, uint32(10), boundary.Difficulty())
	require.Equal(t, uint32(10), bc.Metadata().Difficulty)
	require.EqualValues(t, 100, bc.Metadata().LastRetargetHeight)
}

// TestTotalWorkMonotonic checks the fork choice invariant: the tip's
// total work never decreases across any insertion sequence.
func TestTotalWorkMonotonic(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	genesis := bc.Genesis()

	last := bc.Metadata().TotalWork
	insert := func(block *types.Block) {
		err := bc.InsertBlock(block)
		require.True(t, err == nil || err == ErrKnownBlock, "insert: %v", err)
		work := bc.Metadata().TotalWork
		require.True(t, work.Cmp(last) >= 0, "tip work decreased")
		last = work
	}
	for _, block := range buildBranch(t, bc, genesis, 3, minerAddr) {
		insert(block)
	}
	for _, block := range buildBranch(t, bc, genesis, 5, minerAddr2) {
		insert(block)
	}
}

// TestBlocksFrom serves ordered ranges for sync.
func TestBlocksFrom(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	mineChain(t, bc, bc.Genesis(), 5, minerAddr)

	blocks := bc.BlocksFrom(2, 10)
	require.Len(t, blocks, 4)
	for i, block := range blocks {
		require.EqualValues(t, 2+i, block.Height())
	}
	require.Empty(t, bc.BlocksFrom(6, 10))
}

// TestHeadersFromLocator finds the fork point through an exponential
// locator.
func TestHeadersFromLocator(t *testing.T) {
	bc := newTestChain(t, testGenesis(t))
	blocks := mineChain(t, bc, bc.Genesis(), 8, minerAddr)

	headers := bc.HeadersFromLocator([]common.Hash{blocks[4].Hash()}, 10)
	require.Len(t, headers, 3)
	require.EqualValues(t, 6, headers[0].Height)

	// Unknown locators restart after genesis.
	headers = bc.HeadersFromLocator([]common.Hash{{0xff}}, 4)
	require.Len(t, headers, 4)
	require.EqualValues(t, 1, headers[0].Height)

	// The locator of the chain itself resolves to its own tip.
	require.Empty(t, bc.HeadersFromLocator(bc.Locator(), 10))
}
