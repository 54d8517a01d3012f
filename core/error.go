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

package core

import "errors"

// Typed rejection reasons. The p2p fabric decrements the reputation of
// peers whose blocks fail with one of these, except ErrKnownBlock,
// ErrMissingParent and ErrDeepReorg, and of peers whose transactions fail
// with ErrInvalidSignature or ErrMalformedEncoding. ErrGenesisMismatch and
// ErrNoGenesis are startup errors returned by NewBlockChain.
var (
	// ErrKnownBlock is returned when a block to import is already known
	// locally.
	ErrKnownBlock = errors.New("block already known")

	// ErrMissingParent is returned when a block's parent is unknown; the
	// block has been parked in the orphan pool.
	ErrMissingParent = errors.New("parent block unknown")

	// ErrMalformedEncoding is returned when a payload does not round-trip
	// through the canonical codec.
	ErrMalformedEncoding = errors.New("malformed canonical encoding")

	// ErrInvalidSignature is returned when a transaction signature does
	// not verify against its sender key.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrPoWInsufficient is returned when a block hash does not meet the
	// difficulty encoded in its header.
	ErrPoWInsufficient = errors.New("insufficient proof of work")

	// ErrBadMerkleRoot is returned when the recomputed transaction Merkle
	// root differs from the header.
	ErrBadMerkleRoot = errors.New("merkle root mismatch")

	// ErrFutureTimestamp is returned when a block timestamp is further
	// ahead of local time than the permitted drift.
	ErrFutureTimestamp = errors.New("block timestamp too far in the future")

	// ErrStaleTimestamp is returned when a block timestamp is not past
	// the median of its recent ancestors.
	ErrStaleTimestamp = errors.New("block timestamp below median time past")

	// ErrBadDifficulty is returned when a header difficulty differs from
	// the retarget-prescribed value at its parent.
	ErrBadDifficulty = errors.New("difficulty does not match retarget schedule")

	// ErrBadHeight is returned when a block height is not parent height
	// plus one.
	ErrBadHeight = errors.New("block height not parent height plus one")

	// ErrBlockTooLarge is returned when a block encoding exceeds the
	// protocol limit.
	ErrBlockTooLarge = errors.New("block exceeds size limit")

	// ErrTxTooLarge is returned when a transaction encoding exceeds the
	// protocol limit.
	ErrTxTooLarge = errors.New("transaction exceeds size limit")

	// ErrDuplicateTx is returned when a block contains the same
	// transaction twice.
	ErrDuplicateTx = errors.New("duplicate transaction in block")

	// ErrInvalidCoinbase is returned when the coinbase transaction is
	// missing, duplicated, misplaced or pays the wrong amount.
	ErrInvalidCoinbase = errors.New("invalid coinbase transaction")

	// ErrZeroAmount is returned when a transfer moves no value.
	ErrZeroAmount = errors.New("transfer amount is zero")

	// ErrFeeTooLow is returned when a fee is below the protocol minimum.
	ErrFeeTooLow = errors.New("fee below minimum")

	// ErrNonceTooLow is returned when a transaction nonce is behind the
	// sender's account nonce.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrNonceTooHigh is returned when a transaction nonce is ahead of
	// the sender's account nonce at inclusion.
	ErrNonceTooHigh = errors.New("nonce too high")

	// ErrInsufficientFunds is returned when a sender cannot cover amount
	// plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds for transfer")

	// ErrDeepReorg is returned when a heavier branch would revert more
	// canonical blocks than the reorg depth bound permits. The current
	// tip is retained.
	ErrDeepReorg = errors.New("reorganization deeper than limit refused")

	// ErrGenesisMismatch is returned when a database was initialized with
	// a different genesis than the one configured.
	ErrGenesisMismatch = errors.New("database genesis mismatch")

	// ErrNoGenesis is returned when the chain database holds no chain
	// metadata after genesis setup.
	ErrNoGenesis = errors.New("genesis not found in chain database")

	// errChainStopped is returned internally when ingestion is attempted
	// after Stop.
	errChainStopped = errors.New("blockchain is stopped")
)
