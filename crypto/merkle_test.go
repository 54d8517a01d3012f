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

package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
)

func leaves(n int) []common.Hash {
	out := make([]common.Hash, n)
	for i := range out {
		out[i] = Sum256([]byte{byte(i)})
	}
	return out
}

func TestMerkleRootEmpty(t *testing.T) {
	// A block with zero transactions commits to SHA256 of the empty
	// string.
	require.Equal(t, Sum256(nil), MerkleRoot(nil))
}

func TestMerkleRootSingle(t *testing.T) {
	l := leaves(1)
	require.Equal(t, l[0], MerkleRoot(l))
}

func TestMerkleRootPair(t *testing.T) {
	l := leaves(2)
	require.Equal(t, Sum256(l[0].Bytes(), l[1].Bytes()), MerkleRoot(l))
}

func TestMerkleRootOddDuplication(t *testing.T) {
	l := leaves(3)
	// The odd leaf pairs with itself.
	left := Sum256(l[0].Bytes(), l[1].Bytes())
	right := Sum256(l[2].Bytes(), l[2].Bytes())
	require.Equal(t, Sum256(left.Bytes(), right.Bytes()), MerkleRoot(l))
}

func TestMerkleRootSensitivity(t *testing.T) {
	l := leaves(7)
	root := MerkleRoot(l)

	// Reordering any two leaves changes the root.
	swapped := append([]common.Hash(nil), l...)
	swapped[2], swapped[5] = swapped[5], swapped[2]
	require.NotEqual(t, root, MerkleRoot(swapped))

	// Removing a leaf changes the root.
	require.NotEqual(t, root, MerkleRoot(l[:6]))

	// The input slice is not clobbered by the in-place folding.
	require.Equal(t, leaves(7), l)
	require.Equal(t, root, MerkleRoot(l))
}
