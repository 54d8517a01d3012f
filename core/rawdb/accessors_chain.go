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
	"github.com/holiman/uint256"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/liradb"
	"github.com/opensyria/go-lira/log"
)

// ReadBlock retrieves the block with the given hash, along with all of its
// transactions, or nil if unknown.
func ReadBlock(db liradb.KeyValueReader, hash common.Hash) *types.Block {
	data, _ := db.Get(blockKey(hash))
	if len(data) == 0 {
		return nil
	}
	block := new(types.Block)
	if err := codec.DecodeBytes(data, block); err != nil {
		log.Error("Invalid block encoding in database", "hash", hash, "err", err)
		return nil
	}
	return block
}

// HasBlock reports whether a block with the given hash is stored.
func HasBlock(db liradb.KeyValueReader, hash common.Hash) bool {
	ok, _ := db.Has(blockKey(hash))
	return ok
}

// WriteBlock stores a block's canonical encoding keyed by its hash.
func WriteBlock(db liradb.KeyValueWriter, block *types.Block) {
	if err := db.Put(blockKey(block.Hash()), codec.MustEncode(block)); err != nil {
		log.Crit("Failed to store block", "err", err)
	}
}

// ReadCanonicalHash retrieves the hash of the canonical block at the given
// height, or the zero hash if the height is above the tip.
func ReadCanonicalHash(db liradb.KeyValueReader, height uint64) common.Hash {
	data, _ := db.Get(canonicalKey(height))
	if len(data) != common.HashLength {
		return common.Hash{}
	}
	return common.BytesToHash(data)
}

// WriteCanonicalHash stores the canonical hash of a height.
func WriteCanonicalHash(db liradb.KeyValueWriter, height uint64, hash common.Hash) {
	if err := db.Put(canonicalKey(height), hash.Bytes()); err != nil {
		log.Crit("Failed to store height to hash mapping", "err", err)
	}
}

// DeleteCanonicalHash removes the canonical mapping of a height.
func DeleteCanonicalHash(db liradb.KeyValueWriter, height uint64) {
	if err := db.Delete(canonicalKey(height)); err != nil {
		log.Crit("Failed to delete height to hash mapping", "err", err)
	}
}

// ReadTotalWork retrieves the cumulative work of the branch ending in the
// given block, or nil if unknown.
func ReadTotalWork(db liradb.KeyValueReader, hash common.Hash) *uint256.Int {
	data, _ := db.Get(workKey(hash))
	if len(data) != 32 {
		return nil
	}
	return new(uint256.Int).SetBytes32(data)
}

// WriteTotalWork stores the cumulative work of a block.
func WriteTotalWork(db liradb.KeyValueWriter, hash common.Hash, work *uint256.Int) {
	buf := work.Bytes32()
	if err := db.Put(workKey(hash), buf[:]); err != nil {
		log.Crit("Failed to store block total work", "err", err)
	}
}

// ReadMetadata retrieves the chain metadata record, or nil on a fresh
// database.
func ReadMetadata(db liradb.KeyValueReader) *types.ChainMetadata {
	data, _ := db.Get(metaKey)
	if len(data) == 0 {
		return nil
	}
	meta := new(types.ChainMetadata)
	if err := codec.DecodeBytes(data, meta); err != nil {
		log.Error("Invalid chain metadata in database", "err", err)
		return nil
	}
	return meta
}

// WriteMetadata stores the chain metadata record.
func WriteMetadata(db liradb.KeyValueWriter, meta *types.ChainMetadata) {
	if err := db.Put(metaKey, codec.MustEncode(meta)); err != nil {
		log.Crit("Failed to store chain metadata", "err", err)
	}
}

// ReadGenesisHash retrieves the hash the database was initialized with.
func ReadGenesisHash(db liradb.KeyValueReader) common.Hash {
	data, _ := db.Get(genesisKey)
	if len(data) != common.HashLength {
		return common.Hash{}
	}
	return common.BytesToHash(data)
}

// WriteGenesisHash marks the database as initialized from the given
// genesis.
func WriteGenesisHash(db liradb.KeyValueWriter, hash common.Hash) {
	if err := db.Put(genesisKey, hash.Bytes()); err != nil {
		log.Crit("Failed to store genesis hash", "err", err)
	}
}
