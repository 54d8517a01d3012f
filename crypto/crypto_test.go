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
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opensyria/go-lira/common"
)

func TestSum256MatchesStdlib(t *testing.T) {
	want := sha256.Sum256([]byte("hello dirham"))
	require.Equal(t, common.Hash(want), Sum256([]byte("hello"), []byte(" dirham")))
}

func TestSignVerify(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("transfer 100 lira")
	sig := key.Sign(msg)
	require.True(t, Verify(key.Public(), msg, sig))

	// Any bit flip must break verification.
	sig[0] ^= 0x01
	require.False(t, Verify(key.Public(), msg, sig))
}

func TestAddressDerivation(t *testing.T) {
	key, err := PrivateKeyFromSeed(make([]byte, 32))
	require.NoError(t, err)

	pub := key.Public()
	require.Equal(t, common.Address(sha256.Sum256(pub[:])), pub.Address())
	require.Equal(t, key.Address(), pub.Address())
}

func TestPrivateKeyFromSeedDeterministic(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	k1, err := PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	k2, err := PrivateKeyFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, k1.Public(), k2.Public())

	_, err = PrivateKeyFromSeed([]byte("short"))
	require.Error(t, err)
}

func TestLeadingZeroBits(t *testing.T) {
	tests := []struct {
		hash common.Hash
		want uint32
	}{
		{common.Hash{0x80}, 0},
		{common.Hash{0x40}, 1},
		{common.Hash{0x01}, 7},
		{common.Hash{0x00, 0xff}, 8},
		{common.Hash{0x00, 0x00, 0x10}, 19},
		{common.Hash{}, 256},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LeadingZeroBits(tt.hash), "hash %x", tt.hash)
	}
}

func TestZeroPublicKey(t *testing.T) {
	var zero PublicKey
	require.True(t, zero.IsZero())
	require.False(t, Verify(zero, []byte("x"), Signature{}))
}
