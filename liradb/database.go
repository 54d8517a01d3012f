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

// Package liradb defines the interfaces of the ordered key-value store the
// chain persists into. Concrete backends live in the leveldb and memorydb
// subpackages.
package liradb

import "io"

// KeyValueReader wraps the Has and Get method of a backing data store.
type KeyValueReader interface {
	// Has retrieves if a key is present in the key-value data store.
	Has(key []byte) (bool, error)

	// Get retrieves the given key if it's present in the key-value data store.
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put and Delete method of a backing data store.
type KeyValueWriter interface {
	// Put inserts the given value into the key-value data store.
	Put(key []byte, value []byte) error

	// Delete removes the key from the key-value data store.
	Delete(key []byte) error
}

// Batch is a write-only store that buffers changes until Write is called.
// Write is atomic and durable: either every buffered mutation persists or
// none does. A batch cannot be used concurrently.
type Batch interface {
	KeyValueWriter

	// ValueSize retrieves the amount of data queued up for writing.
	ValueSize() int

	// Write flushes any accumulated data to disk.
	Write() error

	// Reset resets the batch for reuse.
	Reset()

	// Replay replays the batch contents onto w.
	Replay(w KeyValueWriter) error
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	// NewBatch creates a write-only database that buffers changes to its
	// host db until a final write is called.
	NewBatch() Batch
}

// Iterator iterates over a database's key/value pairs in ascending key
// order. It must be released after use.
type Iterator interface {
	// Next moves the iterator to the next key/value pair. It returns
	// false once the iterator is exhausted.
	Next() bool

	// Error returns any accumulated error.
	Error() error

	// Key returns the key of the current key/value pair, or nil if done.
	// The caller should not modify the contents of the returned slice.
	Key() []byte

	// Value returns the value of the current key/value pair, or nil if
	// done. The caller should not modify the contents of the returned
	// slice.
	Value() []byte

	// Release releases associated resources.
	Release()
}

// Iteratee wraps the NewIterator method of a backing data store.
type Iteratee interface {
	// NewIterator creates a binary-alphabetical iterator over a subset of
	// database content with a particular key prefix, starting at a
	// particular initial key (or after, if it does not exist).
	NewIterator(prefix []byte, start []byte) Iterator
}

// Compacter wraps the Compact method of a backing data store.
type Compacter interface {
	// Compact flattens the underlying data store for the given key range.
	Compact(start []byte, limit []byte) error
}

// KeyValueStore contains all the methods required to allow handling
// different key-value stores backing the chain database.
type KeyValueStore interface {
	KeyValueReader
	KeyValueWriter
	Batcher
	Iteratee
	Compacter
	io.Closer
}

// Database is the full key-value store the chain runs on. Readers may be
// concurrent; the chain manager is the single writer.
type Database = KeyValueStore

// Reader is the read-only handle handed to components that must not write,
// such as the mempool.
type Reader interface {
	KeyValueReader
	Iteratee
}
