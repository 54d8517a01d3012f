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

// Package types contains the data types of the consensus layer and their
// canonical encodings.
package types

import (
	"io"
	"sync/atomic"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/crypto"
)

// TxSize is the length of a transaction's canonical encoding. All fields
// are fixed width.
const TxSize = crypto.PublicKeyLength + common.AddressLength + 8 + 8 + 8 + crypto.SignatureLength

// Transaction is a signed value transfer. The signature covers the
// canonical encoding of all prior fields; the transaction hash covers the
// same bytes, so it is stable under signing.
type Transaction struct {
	From   crypto.PublicKey
	To     common.Address
	Amount uint64
	Fee    uint64
	Nonce  uint64
	Sig    crypto.Signature

	hash atomic.Pointer[common.Hash]
}

// NewTransaction creates an unsigned transfer.
func NewTransaction(from crypto.PublicKey, to common.Address, amount, fee, nonce uint64) *Transaction {
	return &Transaction{From: from, To: to, Amount: amount, Fee: fee, Nonce: nonce}
}

// NewCoinbase creates the coinbase transaction of a block: zero sender and
// signature, nonce bound to the height so coinbase hashes never repeat
// across blocks.
func NewCoinbase(height uint64, miner common.Address, amount uint64) *Transaction {
	return &Transaction{To: miner, Amount: amount, Nonce: height}
}

// IsCoinbase reports whether the sender is the zero public key.
func (tx *Transaction) IsCoinbase() bool { return tx.From.IsZero() }

// SigningBytes returns the canonical encoding of all fields preceding the
// signature. This is the preimage for both the signature and the hash.
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, TxSize-crypto.SignatureLength)
	buf = append(buf, tx.From[:]...)
	buf = append(buf, tx.To[:]...)
	buf = appendUint64(buf, tx.Amount)
	buf = appendUint64(buf, tx.Fee)
	buf = appendUint64(buf, tx.Nonce)
	return buf
}

// Hash returns the transaction identity, SHA256 of the signing bytes. The
// result is cached.
func (tx *Transaction) Hash() common.Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	h := crypto.Sum256(tx.SigningBytes())
	tx.hash.Store(&h)
	return h
}

// Size returns the length of the canonical encoding in bytes.
func (tx *Transaction) Size() uint64 { return TxSize }

// Cost returns amount plus fee, the total debit against the sender.
func (tx *Transaction) Cost() uint64 { return tx.Amount + tx.Fee }

// SignWith signs the transaction in place and stamps the sender key.
func (tx *Transaction) SignWith(key *crypto.PrivateKey) *Transaction {
	tx.From = key.Public()
	tx.hash.Store(nil)
	tx.Sig = key.Sign(tx.SigningBytes())
	return tx
}

// VerifySignature checks the Ed25519 signature against the sender key.
// Coinbase transactions carry no signature and always fail this check;
// callers exempt them explicitly.
func (tx *Transaction) VerifySignature() bool {
	return crypto.Verify(tx.From, tx.SigningBytes(), tx.Sig)
}

// Serialize writes the canonical encoding.
func (tx *Transaction) Serialize(w io.Writer) error {
	if err := codec.WriteBytes(w, tx.SigningBytes()); err != nil {
		return err
	}
	return codec.WriteBytes(w, tx.Sig[:])
}

// Deserialize reads the canonical encoding.
func (tx *Transaction) Deserialize(r io.Reader) error {
	if err := codec.ReadBytes(r, tx.From[:]); err != nil {
		return err
	}
	if err := codec.ReadBytes(r, tx.To[:]); err != nil {
		return err
	}
	var err error
	if tx.Amount, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if tx.Fee, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if tx.Nonce, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if err = codec.ReadBytes(r, tx.Sig[:]); err != nil {
		return err
	}
	tx.hash.Store(nil)
	return nil
}

// Transactions is a Transaction slice with helpers.
type Transactions []*Transaction

// Hashes returns the transaction hashes in order.
func (txs Transactions) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
