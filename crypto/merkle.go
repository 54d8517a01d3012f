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

import "github.com/opensyria/go-lira/common"

// MerkleRoot computes the root of the binary Merkle tree over leaves.
// Level 0 is the leaves in order; each higher level hashes concatenated
// pairs. A level with an odd count duplicates its last hash. The root of
// zero leaves is SHA256 of the empty string.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return Sum256(nil)
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:len(level)/2]
		for i := 0; i < len(level); i += 2 {
			next[i/2] = Sum256(level[i].Bytes(), level[i+1].Bytes())
		}
		level = next
	}
	return level[0]
}
