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

package types

import (
	"io"
	"sync/atomic"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/crypto"
)

// HeaderSize is the length of a header's canonical encoding.
const HeaderSize = common.HashLength + common.HashLength + 8 + 4 + 8 + 8 + common.AddressLength

// Header is the block header. The block hash covers every field, so the
// proof-of-work nonce changes the hash.
type Header struct {
	ParentHash common.Hash
	MerkleRoot common.Hash
	Time       uint64
	Difficulty uint32
	Nonce      uint64
	Height     uint64
	Miner      common.Address
}

// Hash returns SHA256 of the canonical header encoding.
func (h *Header) Hash() common.Hash {
	return crypto.Sum256(codec.MustEncode(h))
}

// Copy returns a deep copy of the header.
func (h *Header) Copy() *Header {
	cpy := *h
	return &cpy
}

// Serialize writes the canonical encoding: fixed-width fields in
// declaration order.
func (h *Header) Serialize(w io.Writer) error {
	if err := codec.WriteBytes(w, h.ParentHash[:]); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, h.MerkleRoot[:]); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, h.Time); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, h.Difficulty); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, h.Nonce); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, h.Height); err != nil {
		return err
	}
	return codec.WriteBytes(w, h.Miner[:])
}

// Deserialize reads the canonical encoding.
func (h *Header) Deserialize(r io.Reader) error {
	if err := codec.ReadBytes(r, h.ParentHash[:]); err != nil {
		return err
	}
	if err := codec.ReadBytes(r, h.MerkleRoot[:]); err != nil {
		return err
	}
	var err error
	if h.Time, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if h.Difficulty, err = codec.ReadUint32(r); err != nil {
		return err
	}
	if h.Nonce, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if h.Height, err = codec.ReadUint64(r); err != nil {
		return err
	}
	return codec.ReadBytes(r, h.Miner[:])
}

// Block is a header together with its ordered transactions. Blocks are
// immutable once accepted by the chain.
type Block struct {
	header *Header
	txs    Transactions

	hash atomic.Pointer[common.Hash]
	size atomic.Uint64
}

// NewBlock assembles a block and computes the Merkle root over txs. The
// input header is copied.
func NewBlock(header *Header, txs Transactions) *Block {
	b := &Block{header: header.Copy(), txs: txs}
	b.header.MerkleRoot = crypto.MerkleRoot(txs.Hashes())
	return b
}

// NewBlockWithHeader creates a block with the given header and
// transactions exactly as passed, without recomputing the Merkle root.
// Used when reassembling received blocks.
func NewBlockWithHeader(header *Header, txs Transactions) *Block {
	return &Block{header: header.Copy(), txs: txs}
}

// Header returns a copy of the block header.
func (b *Block) Header() *Header { return b.header.Copy() }

// Transactions returns the block's transactions in block order.
func (b *Block) Transactions() Transactions { return b.txs }

// Transaction returns the transaction with the given hash, or nil.
func (b *Block) Transaction(hash common.Hash) *Transaction {
	for _, tx := range b.txs {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

// Accessor shortcuts into the header.
func (b *Block) ParentHash() common.Hash { return b.header.ParentHash }
func (b *Block) MerkleRoot() common.Hash { return b.header.MerkleRoot }
func (b *Block) Time() uint64            { return b.header.Time }
func (b *Block) Difficulty() uint32      { return b.header.Difficulty }
func (b *Block) Nonce() uint64           { return b.header.Nonce }
func (b *Block) Height() uint64          { return b.header.Height }
func (b *Block) Miner() common.Address   { return b.header.Miner }

// Hash returns the block hash, SHA256 of the canonical header encoding.
// The result is cached.
func (b *Block) Hash() common.Hash {
	if h := b.hash.Load(); h != nil {
		return *h
	}
	h := b.header.Hash()
	b.hash.Store(&h)
	return h
}

// Size returns the length of the block's canonical encoding in bytes. The
// result is cached.
func (b *Block) Size() uint64 {
	if s := b.size.Load(); s != 0 {
		return s
	}
	s := uint64(HeaderSize) + 4 + uint64(len(b.txs))*TxSize
	b.size.Store(s)
	return s
}

// Serialize writes the header followed by the u32 count prefixed
// transaction vector.
func (b *Block) Serialize(w io.Writer) error {
	if err := b.header.Serialize(w); err != nil {
		return err
	}
	if err := codec.WriteCount(w, len(b.txs)); err != nil {
		return err
	}
	for _, tx := range b.txs {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads the canonical encoding. The transaction count is
// bounded by the maximum block size so a corrupt prefix cannot force a
// huge allocation.
func (b *Block) Deserialize(r io.Reader) error {
	b.header = new(Header)
	if err := b.header.Deserialize(r); err != nil {
		return err
	}
	n, err := codec.ReadCount(r, maxTxsPerBlock)
	if err != nil {
		return err
	}
	b.txs = make(Transactions, n)
	for i := range b.txs {
		tx := new(Transaction)
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		b.txs[i] = tx
	}
	b.hash.Store(nil)
	b.size.Store(0)
	return nil
}

// maxTxsPerBlock is the largest transaction count a 1 MiB block can hold;
// used as the decoder's allocation bound.
const maxTxsPerBlock = (1 << 20) / TxSize

// Blocks is a Block slice.
type Blocks []*Block

// Headers extracts the headers of all blocks in order.
func (bs Blocks) Headers() []*Header {
	headers := make([]*Header, len(bs))
	for i, b := range bs {
		headers[i] = b.Header()
	}
	return headers
}
