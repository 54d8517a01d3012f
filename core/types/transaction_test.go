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
	"pgregory.net/rapid"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/crypto"
)

func testKey(t *testing.T, seed byte) *crypto.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = seed
	key, err := crypto.PrivateKeyFromSeed(raw)
	require.NoError(t, err)
	return key
}

func TestTransactionSigning(t *testing.T) {
	key := testKey(t, 1)
	to := testKey(t, 2).Address()

	tx := NewTransaction(crypto.PublicKey{}, to, 100, 1, 0).SignWith(key)
	require.Equal(t, key.Public(), tx.From)
	require.True(t, tx.VerifySignature())

	// The signature is not part of the identity preimage.
	unsigned := NewTransaction(key.Public(), to, 100, 1, 0)
	require.Equal(t, unsigned.Hash(), tx.Hash())

	// Any field change breaks the signature.
	tx.Amount = 101
	require.False(t, tx.VerifySignature())
}

func TestTransactionRoundTrip(t *testing.T) {
	key := testKey(t, 3)
	tx := NewTransaction(crypto.PublicKey{}, common.Address{0xaa}, 12345, 7, 42).SignWith(key)

	enc := codec.MustEncode(tx)
	require.Len(t, enc, TxSize)
	require.EqualValues(t, TxSize, tx.Size())

	var out Transaction
	require.NoError(t, codec.DecodeBytes(enc, &out))
	require.Equal(t, tx.From, out.From)
	require.Equal(t, tx.To, out.To)
	require.Equal(t, tx.Amount, out.Amount)
	require.Equal(t, tx.Fee, out.Fee)
	require.Equal(t, tx.Nonce, out.Nonce)
	require.Equal(t, tx.Sig, out.Sig)
	require.Equal(t, tx.Hash(), out.Hash())
	require.True(t, out.VerifySignature())
}

// TestTransactionEncodingBijection checks decode(encode(tx)) == tx and
// encode(decode(encode(tx))) == encode(tx) over arbitrary field values.
func TestTransactionEncodingBijection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tx := &Transaction{
			Amount: rapid.Uint64().Draw(t, "amount").(uint64),
			Fee:    rapid.Uint64().Draw(t, "fee").(uint64),
			Nonce:  rapid.Uint64().Draw(t, "nonce").(uint64),
		}
		copy(tx.From[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "from").([]byte))
		copy(tx.To[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "to").([]byte))
		copy(tx.Sig[:], rapid.SliceOfN(rapid.Byte(), 64, 64).Draw(t, "sig").([]byte))

		enc := codec.MustEncode(tx)
		var out Transaction
		if err := codec.DecodeBytes(enc, &out); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if out.From != tx.From || out.To != tx.To || out.Amount != tx.Amount ||
			out.Fee != tx.Fee || out.Nonce != tx.Nonce || out.Sig != tx.Sig {
			t.Fatalf("round trip mismatch")
		}
		if string(codec.MustEncode(&out)) != string(enc) {
			t.Fatalf("re-encoding differs")
		}
	})
}

func TestCoinbaseIdentity(t *testing.T) {
	miner := common.Address{0x01}
	cb10 := NewCoinbase(10, miner, 5000)
	cb11 := NewCoinbase(11, miner, 5000)

	require.True(t, cb10.IsCoinbase())
	// The height-bound nonce keeps coinbase hashes unique across blocks
	// with identical payouts.
	require.NotEqual(t, cb10.Hash(), cb11.Hash())
}
