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
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
)

// ChainHeadEvent is posted when a block becomes the new canonical tip.
// During a reorganization one event is posted per applied block, in
// commit order.
type ChainHeadEvent struct {
	Block *types.Block
}

// ChainSideEvent is posted when a valid block lands on a side branch.
type ChainSideEvent struct {
	Block *types.Block
}

// ReorgEvent is posted after a reorganization commits, carrying the
// reverted blocks tip-first and the applied blocks in ascending order.
type ReorgEvent struct {
	Reverted []*types.Block
	Applied  []*types.Block
}

// RejectedBlockEvent is posted when block ingestion fails with a typed
// reason, including refused deep reorganizations.
type RejectedBlockEvent struct {
	Hash common.Hash
	Err  error
}

// NewTxsEvent is posted by the transaction pool when transactions enter
// the pending set.
type NewTxsEvent struct {
	Txs types.Transactions
}
