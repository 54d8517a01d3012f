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

// Package state provides a mutable account-state overlay above the chain
// database. A StateDB is used by exactly one goroutine; readers elsewhere
// see the committed database snapshot.
package state

import (
	"bytes"
	"errors"
	"sort"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/rawdb"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb"
)

// ErrInsufficientBalance is returned by Debit when the account cannot
// cover the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// StateDB accumulates account mutations in memory. Mutations between
// BeginBlock calls are tracked so each block's pre-state can be persisted
// as an undo record, and the net effect of any number of blocks is flushed
// with a single Commit.
type StateDB struct {
	db      liradb.KeyValueReader
	cache   map[common.Address]types.Account // current view, loaded lazily
	dirty   map[common.Address]struct{}      // modified since construction
	touched map[common.Address]types.Account // pre-block values since BeginBlock
}

// New creates a state overlay above the given database snapshot.
func New(db liradb.KeyValueReader) *StateDB {
	return &StateDB{
		db:    db,
		cache: make(map[common.Address]types.Account),
		dirty: make(map[common.Address]struct{}),
	}
}

// GetAccount returns the current state of addr.
func (s *StateDB) GetAccount(addr common.Address) types.Account {
	if acct, ok := s.cache[addr]; ok {
		return acct
	}
	acct := rawdb.ReadAccount(s.db, addr)
	s.cache[addr] = acct
	return acct
}

// GetBalance returns the spendable balance of addr.
func (s *StateDB) GetBalance(addr common.Address) uint64 {
	return s.GetAccount(addr).Balance
}

// GetNonce returns the next expected nonce of addr.
func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.GetAccount(addr).Nonce
}

func (s *StateDB) set(addr common.Address, acct types.Account) {
	if s.touched != nil {
		if _, ok := s.touched[addr]; !ok {
			s.touched[addr] = s.GetAccount(addr)
		}
	}
	s.cache[addr] = acct
	s.dirty[addr] = struct{}{}
}

// Credit adds amount to the balance of addr.
func (s *StateDB) Credit(addr common.Address, amount uint64) {
	acct := s.GetAccount(addr)
	acct.Balance += amount
	s.set(addr, acct)
}

// Debit removes amount from the balance of addr.
func (s *StateDB) Debit(addr common.Address, amount uint64) error {
	acct := s.GetAccount(addr)
	if acct.Balance < amount {
		return ErrInsufficientBalance
	}
	acct.Balance -= amount
	s.set(addr, acct)
	return nil
}

// BumpNonce advances the nonce of addr by one.
func (s *StateDB) BumpNonce(addr common.Address) {
	acct := s.GetAccount(addr)
	acct.Nonce++
	s.set(addr, acct)
}

// SetAccount overwrites the state of addr. Used by the genesis allocation.
func (s *StateDB) SetAccount(addr common.Address, acct types.Account) {
	s.set(addr, acct)
}

// BeginBlock starts tracking pre-states for a new block. Mutations made
// before the first BeginBlock are not tracked.
func (s *StateDB) BeginBlock() {
	s.touched = make(map[common.Address]types.Account)
}

// UndoEntries returns the pre-block state of every account modified since
// BeginBlock, ordered by address so the record is deterministic.
func (s *StateDB) UndoEntries() []rawdb.UndoEntry {
	entries := make([]rawdb.UndoEntry, 0, len(s.touched))
	for addr, prev := range s.touched {
		entries = append(entries, rawdb.UndoEntry{Addr: addr, Prev: prev})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Addr[:], entries[j].Addr[:]) < 0
	})
	return entries
}

// ApplyUndo restores the pre-states recorded in entries, reverting one
// block's effect. The restoration itself is not tracked as touched.
func (s *StateDB) ApplyUndo(entries []rawdb.UndoEntry) {
	for _, e := range entries {
		s.cache[e.Addr] = e.Prev
		s.dirty[e.Addr] = struct{}{}
	}
}

// Commit writes every modified account into the batch. Accounts back at
// the default state are deleted, keeping existence equal to nonzero
// balance or nonce.
func (s *StateDB) Commit(batch liradb.KeyValueWriter) {
	for addr := range s.dirty {
		rawdb.WriteAccount(batch, addr, s.cache[addr])
	}
}
