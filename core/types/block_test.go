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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/crypto"
)

func testHeader() *Header {
	return &Header{
		ParentHash: common.Hash{0x01},
		Time:       1735689700,
		Difficulty: 12,
		Nonce:      998877,
		Height:     42,
		Miner:      common.Address{0x02},
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	header := testHeader()
	enc := codec.MustEncode(header)
	require.Len(t, enc, HeaderSize)

	var out Header
	require.NoError(t, codec.DecodeBytes(enc, &out))
	require.Equal(t, *header, out)
	require.Equal(t, header.Hash(), out.Hash())
}

func TestHeaderHashCoversNonce(t *testing.T) {
	header := testHeader()
	h1 := header.Hash()
	header.Nonce++
	require.NotEqual(t, h1, header.Hash(), "nonce must change the block hash")
}

func TestBlockAssembly(t *testing.T) {
	key := testKey(t, 7)
	txs := Transactions{
		NewTransaction(crypto.PublicKey{}, common.Address{0x10}, 5, 1, 0).SignWith(key),
		NewTransaction(crypto.PublicKey{}, common.Address{0x11}, 6, 1, 1).SignWith(key),
	}
	block := NewBlock(testHeader(), txs)

	// NewBlock commits to the transactions.
	require.Equal(t, crypto.MerkleRoot(txs.Hashes()), block.MerkleRoot())
	require.Equal(t, uint64(HeaderSize+4+2*TxSize), block.Size())

	// The header accessor hands out copies.
	header := block.Header()
	header.Nonce = 1
	require.NotEqual(t, header.Nonce, block.Nonce())
}

func TestBlockRoundTrip(t *testing.T) {
	key := testKey(t, 8)
	txs := Transactions{
		NewTransaction(crypto.PublicKey{}, common.Address{0x10}, 5, 1, 0).SignWith(key),
	}
	block := NewBlock(testHeader(), txs)

	enc := codec.MustEncode(block)
	require.EqualValues(t, block.Size(), len(enc))

	var out Block
	require.NoError(t, codec.DecodeBytes(enc, &out))
	// Hash determinism: the decoded block reproduces the storage key.
	require.Equal(t, block.Hash(), out.Hash())
	require.Len(t, out.Transactions(), 1)
	require.Equal(t, txs[0].Hash(), out.Transactions()[0].Hash())
	require.Equal(t, enc, codec.MustEncode(&out))
}

func TestEmptyBlockMerkleRoot(t *testing.T) {
	block := NewBlock(testHeader(), nil)
	require.Equal(t, crypto.Sum256(nil), block.MerkleRoot())
}

func TestBlockTransactionLookup(t *testing.T) {
	key := testKey(t, 9)
	tx := NewTransaction(crypto.PublicKey{}, common.Address{0x10}, 5, 1, 0).SignWith(key)
	block := NewBlock(testHeader(), Transactions{tx})

	require.Equal(t, tx, block.Transaction(tx.Hash()))
	require.Nil(t, block.Transaction(common.Hash{0xff}))
}
