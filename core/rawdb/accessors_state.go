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

package rawdb

import (
	"bytes"
	"io"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb"
	"github.com/opensyria/go-lira/log"
)

// ReadAccount retrieves the state of an address. A missing entry is the
// default (empty) account.
func ReadAccount(db liradb.KeyValueReader, addr common.Address) types.Account {
	data, _ := db.Get(accountKey(addr))
	if len(data) == 0 {
		return types.Account{}
	}
	var acct types.Account
	if err := codec.DecodeBytes(data, &acct); err != nil {
		log.Error("Invalid account encoding in database", "address", addr, "err", err)
		return types.Account{}
	}
	return acct
}

// WriteAccount stores the state of an address. Empty accounts are deleted
// instead: existence equals a nonzero balance or nonce.
func WriteAccount(db liradb.KeyValueWriter, addr common.Address, acct types.Account) {
	if acct.IsEmpty() {
		DeleteAccount(db, addr)
		return
	}
	if err := db.Put(accountKey(addr), codec.MustEncode(&acct)); err != nil {
		log.Crit("Failed to store account", "err", err)
	}
}

// DeleteAccount removes the state of an address.
func DeleteAccount(db liradb.KeyValueWriter, addr common.Address) {
	if err := db.Delete(accountKey(addr)); err != nil {
		log.Crit("Failed to delete account", "err", err)
	}
}

// UndoEntry records the pre-block state of one account touched by a block.
type UndoEntry struct {
	Addr common.Address
	Prev types.Account
}

// undoRecord is the serializable list wrapper.
type undoRecord struct {
	entries []UndoEntry
}

func (u *undoRecord) Serialize(w io.Writer) error {
	if err := codec.WriteCount(w, len(u.entries)); err != nil {
		return err
	}
	for i := range u.entries {
		if err := codec.WriteBytes(w, u.entries[i].Addr[:]); err != nil {
			return err
		}
		if err := u.entries[i].Prev.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func (u *undoRecord) Deserialize(r io.Reader) error {
	n, err := codec.ReadCount(r, -1)
	if err != nil {
		return err
	}
	u.entries = make([]UndoEntry, n)
	for i := range u.entries {
		if err := codec.ReadBytes(r, u.entries[i].Addr[:]); err != nil {
			return err
		}
		if err := u.entries[i].Prev.Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

// ReadUndo retrieves the undo record of a block, or nil if absent.
func ReadUndo(db liradb.KeyValueReader, hash common.Hash) []UndoEntry {
	data, _ := db.Get(undoKey(hash))
	if len(data) == 0 {
		return nil
	}
	var rec undoRecord
	if err := codec.DecodeBytes(data, &rec); err != nil {
		log.Error("Invalid undo record in database", "hash", hash, "err", err)
		return nil
	}
	return rec.entries
}

// WriteUndo stores the undo record of an applied block.
func WriteUndo(db liradb.KeyValueWriter, hash common.Hash, entries []UndoEntry) {
	var buf bytes.Buffer
	rec := undoRecord{entries: entries}
	if err := rec.Serialize(&buf); err != nil {
		log.Crit("Failed to encode undo record", "err", err)
	}
	if err := db.Put(undoKey(hash), buf.Bytes()); err != nil {
		log.Crit("Failed to store undo record", "err", err)
	}
}

// DeleteUndo removes the undo record of a reverted block.
func DeleteUndo(db liradb.KeyValueWriter, hash common.Hash) {
	if err := db.Delete(undoKey(hash)); err != nil {
		log.Crit("Failed to delete undo record", "err", err)
	}
}
