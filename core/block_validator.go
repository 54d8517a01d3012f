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

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/crypto"
	"github.com/opensyria/go-lira/params"
)

// BlockValidator performs the stateless structural checks of a candidate
// block: everything verifiable without the parent or the account state.
// Structural validation runs outside the chain mutation lock and may be
// invoked concurrently for independent candidates.
type BlockValidator struct {
	config *params.ChainConfig
}

// NewBlockValidator returns a validator for the given chain
// configuration.
func NewBlockValidator(config *params.ChainConfig) *BlockValidator {
	return &BlockValidator{config: config}
}

// ValidateStructure checks the stateless rules of a candidate block.
// now is the local wall clock in unix seconds.
func (v *BlockValidator) ValidateStructure(block *types.Block, now uint64) error {
	header := block.Header()

	// Size limits.
	if block.Size() > params.MaxBlockBytes {
		return fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, block.Size())
	}
	// Proof of work against the difficulty the header itself declares.
	// Whether that difficulty is the prescribed one is a contextual
	// question answered against the parent.
	if header.Difficulty < params.MinDifficulty || header.Difficulty > params.MaxDifficulty {
		return fmt.Errorf("%w: difficulty %d outside bounds", ErrBadDifficulty, header.Difficulty)
	}
	if crypto.LeadingZeroBits(block.Hash()) < header.Difficulty {
		return fmt.Errorf("%w: need %d leading zero bits", ErrPoWInsufficient, header.Difficulty)
	}
	// Clock rule: not further ahead of local time than the drift bound.
	if header.Time > now+params.MaxFutureDrift {
		return fmt.Errorf("%w: block time %d, local %d", ErrFutureTimestamp, header.Time, now)
	}
	// Merkle commitment over the transaction list.
	txs := block.Transactions()
	if got := crypto.MerkleRoot(txs.Hashes()); got != header.MerkleRoot {
		return fmt.Errorf("%w: have %s, computed %s", ErrBadMerkleRoot, header.MerkleRoot, got)
	}
	// Per-transaction stateless rules and in-block duplicates.
	seen := make(map[common.Hash]struct{}, len(txs))
	for i, tx := range txs {
		if tx.Size() > params.MaxTxBytes {
			return ErrTxTooLarge
		}
		if _, ok := seen[tx.Hash()]; ok {
			return ErrDuplicateTx
		}
		seen[tx.Hash()] = struct{}{}

		if tx.IsCoinbase() {
			// A coinbase is only ever the first transaction; its amount
			// is checked contextually against subsidy plus fees.
			if i != 0 {
				return fmt.Errorf("%w: coinbase at index %d", ErrInvalidCoinbase, i)
			}
			if !v.config.RewardsEnabled() {
				return fmt.Errorf("%w: rewards disabled", ErrInvalidCoinbase)
			}
			if tx.Fee != 0 || tx.Sig != (crypto.Signature{}) {
				return fmt.Errorf("%w: nonzero fee or signature", ErrInvalidCoinbase)
			}
			if tx.Nonce != header.Height {
				return fmt.Errorf("%w: nonce %d, height %d", ErrInvalidCoinbase, tx.Nonce, header.Height)
			}
			if tx.To != header.Miner {
				return fmt.Errorf("%w: pays %s, miner %s", ErrInvalidCoinbase, tx.To, header.Miner)
			}
			continue
		}
		if tx.Amount == 0 {
			return ErrZeroAmount
		}
		if tx.Fee < params.MinFee {
			return ErrFeeTooLow
		}
	}
	// Rewards enabled means exactly one coinbase, disabled means none.
	if v.config.RewardsEnabled() && header.Height > 0 {
		if len(txs) == 0 || !txs[0].IsCoinbase() {
			return fmt.Errorf("%w: missing", ErrInvalidCoinbase)
		}
	}
	// Signature verification is the expensive part; spread it over the
	// available cores.
	return v.verifySignatures(txs)
}

// verifySignatures checks every non-coinbase signature, fanning the work
// out across cores.
func (v *BlockValidator) verifySignatures(txs types.Transactions) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}
		tx := tx
		g.Go(func() error {
			if !tx.VerifySignature() {
				return fmt.Errorf("%w: tx %s", ErrInvalidSignature, tx.Hash())
			}
			return nil
		})
	}
	return g.Wait()
}

// ValidateTx checks the stateless rules of a single loose transaction as
// the mempool and the wire ingress see them. Coinbase transactions are
// never valid outside a block.
func ValidateTx(tx *types.Transaction) error {
	if tx.Size() > params.MaxTxBytes {
		return ErrTxTooLarge
	}
	if tx.IsCoinbase() {
		return ErrInvalidCoinbase
	}
	if tx.Amount == 0 {
		return ErrZeroAmount
	}
	if tx.Fee < params.MinFee {
		return ErrFeeTooLow
	}
	if !tx.VerifySignature() {
		return ErrInvalidSignature
	}
	return nil
}
