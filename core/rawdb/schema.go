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

// Package rawdb contains the low level database schema of the chain and
// typed accessors over it.
package rawdb

import (
	"encoding/binary"

	"github.com/opensyria/go-lira/common"
)

// The schema divides the keyspace into logical column families by a one
// byte prefix. Keys are fixed width so each family iterates in its natural
// order.
var (
	// blockPrefix + block hash -> canonical block encoding
	// (the blocks_by_hash family).
	blockPrefix = []byte("b")

	// canonicalPrefix + big-endian uint64 height -> block hash
	// (the height_to_hash family; canonical chain only).
	canonicalPrefix = []byte("h")

	// accountPrefix + address -> account encoding (the accounts family).
	accountPrefix = []byte("a")

	// workPrefix + block hash -> 32 byte cumulative work of the branch
	// ending in that block.
	workPrefix = []byte("w")

	// undoPrefix + block hash -> pre-state of the accounts the block
	// touched, consumed when the block is reverted.
	undoPrefix = []byte("u")

	// metaKey tracks the chain metadata record (the meta family).
	metaKey = []byte("LiraChainMetadata")

	// genesisKey tracks the genesis block hash for sanity checks on open.
	genesisKey = []byte("LiraGenesisHash")
)

// blockKey = blockPrefix + hash
func blockKey(hash common.Hash) []byte {
	return append(blockPrefix, hash.Bytes()...)
}

// canonicalKey = canonicalPrefix + height (uint64 big endian)
func canonicalKey(height uint64) []byte {
	key := make([]byte, len(canonicalPrefix)+8)
	copy(key, canonicalPrefix)
	binary.BigEndian.PutUint64(key[len(canonicalPrefix):], height)
	return key
}

// accountKey = accountPrefix + address
func accountKey(addr common.Address) []byte {
	return append(accountPrefix, addr.Bytes()...)
}

// workKey = workPrefix + hash
func workKey(hash common.Hash) []byte {
	return append(workPrefix, hash.Bytes()...)
}

// undoKey = undoPrefix + hash
func undoKey(hash common.Hash) []byte {
	return append(undoPrefix, hash.Bytes()...)
}
