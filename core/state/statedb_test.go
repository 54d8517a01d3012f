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

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/rawdb"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb/memorydb"
)

var (
	addrA = common.Address{0xa1}
	addrB = common.Address{0xb2}
)

func TestDefaultAccount(t *testing.T) {
	statedb := New(memorydb.New())
	require.Equal(t, types.Account{}, statedb.GetAccount(addrA))
	require.EqualValues(t, 0, statedb.GetBalance(addrA))
	require.EqualValues(t, 0, statedb.GetNonce(addrA))
}

func TestCreditDebit(t *testing.T) {
	statedb := New(memorydb.New())
	statedb.Credit(addrA, 1000)
	require.NoError(t, statedb.Debit(addrA, 300))
	require.EqualValues(t, 700, statedb.GetBalance(addrA))

	require.ErrorIs(t, statedb.Debit(addrA, 701), ErrInsufficientBalance)
	require.EqualValues(t, 700, statedb.GetBalance(addrA))

	statedb.BumpNonce(addrA)
	statedb.BumpNonce(addrA)
	require.EqualValues(t, 2, statedb.GetNonce(addrA))
}

func TestCommitDeletesEmpty(t *testing.T) {
	db := memorydb.New()
	statedb := New(db)
	statedb.Credit(addrA, 500)
	batch := db.NewBatch()
	statedb.Commit(batch)
	require.NoError(t, batch.Write())
	require.Equal(t, types.Account{Balance: 500}, rawdb.ReadAccount(db, addrA))

	// Draining the account back to the default state removes the entry:
	// existence equals nonzero balance or nonce.
	statedb = New(db)
	require.NoError(t, statedb.Debit(addrA, 500))
	batch = db.NewBatch()
	statedb.Commit(batch)
	require.NoError(t, batch.Write())
	has, _ := db.Has(append([]byte("a"), addrA.Bytes()...))
	require.False(t, has)
}

func TestUndoEntries(t *testing.T) {
	db := memorydb.New()
	seed := New(db)
	seed.Credit(addrA, 1000)
	batch := db.NewBatch()
	seed.Commit(batch)
	require.NoError(t, batch.Write())

	statedb := New(db)
	statedb.BeginBlock()
	require.NoError(t, statedb.Debit(addrA, 400))
	statedb.Credit(addrB, 400)
	undo := statedb.UndoEntries()

	// One entry per touched account, holding the pre-block value,
	// ordered by address.
	require.Len(t, undo, 2)
	require.Equal(t, addrA, undo[0].Addr)
	require.Equal(t, types.Account{Balance: 1000}, undo[0].Prev)
	require.Equal(t, addrB, undo[1].Addr)
	require.Equal(t, types.Account{}, undo[1].Prev)

	// Applying the undo restores the pre-block state exactly.
	statedb.ApplyUndo(undo)
	require.EqualValues(t, 1000, statedb.GetBalance(addrA))
	require.EqualValues(t, 0, statedb.GetBalance(addrB))
}

func TestUndoTracksFirstWriteOnly(t *testing.T) {
	statedb := New(memorydb.New())
	statedb.BeginBlock()
	statedb.Credit(addrA, 1)
	statedb.Credit(addrA, 2)
	statedb.Credit(addrA, 3)

	undo := statedb.UndoEntries()
	require.Len(t, undo, 1)
	require.Equal(t, types.Account{}, undo[0].Prev)
}

func TestBeginBlockResetsTracking(t *testing.T) {
	statedb := New(memorydb.New())
	statedb.BeginBlock()
	statedb.Credit(addrA, 10)
	require.Len(t, statedb.UndoEntries(), 1)

	statedb.BeginBlock()
	require.Empty(t, statedb.UndoEntries())
	statedb.Credit(addrB, 10)
	undo := statedb.UndoEntries()
	require.Len(t, undo, 1)
	require.Equal(t, addrB, undo[0].Addr)
}
