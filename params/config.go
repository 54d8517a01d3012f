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

// Package params holds the consensus parameters fixed at genesis and the
// protocol constants shared across the node.
package params

// Currency denominations. All amounts in the protocol are unsigned 64 bit
// integers of dirham, the smallest indivisible unit.
const (
	Dirham uint64 = 1
	Lira   uint64 = 1e8
)

// Consensus parameters fixed at genesis.
const (
	// TargetBlockTime is the block interval the difficulty retarget aims
	// for, in seconds.
	TargetBlockTime uint64 = 60

	// RetargetInterval is the number of blocks between difficulty
	// retargets.
	RetargetInterval uint64 = 100

	// MaxRetargetNum/MaxRetargetDenom bound a single retarget to a 25%
	// upward move (factor 5/4).
	MaxRetargetNum   uint64 = 5
	MaxRetargetDenom uint64 = 4

	// MinRetargetNum/MinRetargetDenom bound a single retarget to a 25%
	// downward move (factor 3/4).
	MinRetargetNum   uint64 = 3
	MinRetargetDenom uint64 = 4

	// MinDifficulty is the implementation floor for the leading-zero-bit
	// difficulty. MaxDifficulty is capped below the digest width so a
	// conforming hash always exists.
	MinDifficulty uint32 = 1
	MaxDifficulty uint32 = 255

	// MaxReorgDepth is the deepest chain reorganization the node will
	// execute. Heavier branches that fork deeper are refused.
	MaxReorgDepth = 100

	// MaxFutureDrift is how far ahead of local time a block timestamp may
	// be, in seconds.
	MaxFutureDrift uint64 = 60

	// MedianTimeBlocks is the window of prior blocks sampled for the
	// median-time-past timestamp rule.
	MedianTimeBlocks = 11

	// MaxBlockBytes bounds a block's canonical encoding.
	MaxBlockBytes = 1 << 20

	// MaxTxBytes bounds a transaction's canonical encoding.
	MaxTxBytes = 64 << 10

	// MinFee is the smallest acceptable transaction fee in dirham.
	MinFee uint64 = 1

	// OrphanTTL is how long a parked orphan block waits for its parent
	// before being garbage collected, in seconds.
	OrphanTTL uint64 = 600
)

// ChainConfig is the per-network portion of the consensus rules, chosen in
// the genesis recipe and immutable afterwards.
type ChainConfig struct {
	// ChainID distinguishes independent deployments on the wire.
	ChainID uint64 `toml:"chain-id"`

	// BlockReward is the base coinbase subsidy in dirham. Zero disables
	// rewards, in which case blocks must carry no coinbase transaction.
	BlockReward uint64 `toml:"block-reward"`

	// SubsidyHalvingInterval halves the subsidy every given number of
	// blocks. Zero disables halving.
	SubsidyHalvingInterval uint64 `toml:"subsidy-halving-interval"`
}

// RewardsEnabled reports whether blocks carry a coinbase transaction.
func (c *ChainConfig) RewardsEnabled() bool { return c.BlockReward > 0 }

// BlockSubsidy returns the base coinbase subsidy at the given height,
// before fees.
func (c *ChainConfig) BlockSubsidy(height uint64) uint64 {
	if c.BlockReward == 0 {
		return 0
	}
	if c.SubsidyHalvingInterval == 0 {
		return c.BlockReward
	}
	halvings := height / c.SubsidyHalvingInterval
	if halvings >= 64 {
		return 0
	}
	return c.BlockReward >> halvings
}

// MainnetChainConfig is the chain configuration of the main Lira network.
var MainnetChainConfig = &ChainConfig{
	ChainID:                1,
	BlockReward:            50 * Lira,
	SubsidyHalvingInterval: 210000,
}

// TestChainConfig keeps rewards enabled with no halving, convenient for
// unit tests that reason about exact balances.
var TestChainConfig = &ChainConfig{
	ChainID:     1337,
	BlockReward: 50 * Lira,
}
