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

	"github.com/opensyria/go-lira/core/state"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/params"
)

// StateProcessor applies the transactions of a block to an account state,
// enforcing the contextual rules: nonce continuity, balance coverage and
// the coinbase payout. Application happens in strict block order.
type StateProcessor struct {
	config *params.ChainConfig
}

// NewStateProcessor returns a processor for the given chain
// configuration.
func NewStateProcessor(config *params.ChainConfig) *StateProcessor {
	return &StateProcessor{config: config}
}

// Process applies block to statedb. On error the statedb must be
// discarded; nothing is rolled back.
func (p *StateProcessor) Process(block *types.Block, statedb *state.StateDB) error {
	var (
		txs      = block.Transactions()
		header   = block.Header()
		feeTotal uint64
	)
	// The coinbase commits to subsidy plus fees, so collect the fee sum
	// up front.
	for _, tx := range txs {
		if !tx.IsCoinbase() {
			feeTotal += tx.Fee
		}
	}
	for i, tx := range txs {
		if tx.IsCoinbase() {
			want := p.config.BlockSubsidy(header.Height) + feeTotal
			if tx.Amount != want {
				return fmt.Errorf("%w: pays %d dirham, want %d", ErrInvalidCoinbase, tx.Amount, want)
			}
			statedb.Credit(tx.To, tx.Amount)
			continue
		}
		if err := p.applyTransfer(tx, statedb); err != nil {
			return fmt.Errorf("tx %d (%s): %w", i, tx.Hash().TerminalString(), err)
		}
	}
	return nil
}

// applyTransfer moves value for one signed transfer.
func (p *StateProcessor) applyTransfer(tx *types.Transaction, statedb *state.StateDB) error {
	from := tx.From.Address()
	acct := statedb.GetAccount(from)
	if tx.Nonce < acct.Nonce {
		return ErrNonceTooLow
	}
	if tx.Nonce > acct.Nonce {
		return ErrNonceTooHigh
	}
	if acct.Balance < tx.Cost() {
		return fmt.Errorf("%w: balance %d, cost %d", ErrInsufficientFunds, acct.Balance, tx.Cost())
	}
	statedb.Debit(from, tx.Cost())
	statedb.BumpNonce(from)
	statedb.Credit(tx.To, tx.Amount)
	return nil
}
