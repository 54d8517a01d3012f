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
	"github.com/holiman/uint256"

	"github.com/opensyria/go-lira/params"
)

// WorkForDifficulty returns the expected hash count to find a block at the
// given leading-zero-bit difficulty, 2^bits. Branch work is the sum of
// these per block.
func WorkForDifficulty(bits uint32) *uint256.Int {
	if bits > params.MaxDifficulty {
		bits = params.MaxDifficulty
	}
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
}

// retargetDifficulty computes the difficulty following a retarget
// boundary. old is the difficulty of the closing window, span the
// timestamp delta across it in seconds. The multiplicative move is
// clamped to [3/4, 5/4] and the result to the absolute difficulty
// bounds. Arithmetic saturates; a zero span counts as one second.
func retargetDifficulty(old uint32, span uint64) uint32 {
	if span == 0 {
		span = 1
	}
	expected := params.RetargetInterval * params.TargetBlockTime

	// next = old * expected / span, in u64 so the product cannot
	// overflow for any u32 difficulty.
	next := uint64(old) * expected / span

	// Clamp the per-retarget move to 25% either way. A difficulty this
	// coarse rounds toward the old value, so the lower clamp uses the
	// ceiling and the upper clamp the floor of the factor.
	lo := (uint64(old)*params.MinRetargetNum + params.MinRetargetDenom - 1) / params.MinRetargetDenom
	hi := uint64(old) * params.MaxRetargetNum / params.MaxRetargetDenom
	if next < lo {
		next = lo
	}
	if next > hi {
		next = hi
	}

	// Absolute bounds.
	if next < uint64(params.MinDifficulty) {
		next = uint64(params.MinDifficulty)
	}
	if next > uint64(params.MaxDifficulty) {
		next = uint64(params.MaxDifficulty)
	}
	return uint32(next)
}
