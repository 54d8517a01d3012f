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

package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUint16(&buf, 0xbeef))
	require.NoError(t, WriteUint32(&buf, 0xdeadbeef))
	require.NoError(t, WriteUint64(&buf, 0x0102030405060708))

	// Big endian on the wire.
	require.Equal(t, []byte{0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef}, buf.Bytes()[:6])

	v16, err := ReadUint16(&buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0xbeef), v16)
	v32, err := ReadUint32(&buf)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32)
	v64, err := ReadUint64(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), v64)
}

func TestReadShortInput(t *testing.T) {
	_, err := ReadUint64(bytes.NewReader([]byte{1, 2, 3}))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCountLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCount(&buf, 500))
	_, err := ReadCount(bytes.NewReader(buf.Bytes()), 100)
	require.ErrorIs(t, err, ErrCountTooLarge)

	n, err := ReadCount(bytes.NewReader(buf.Bytes()), 1000)
	require.NoError(t, err)
	require.Equal(t, 500, n)
}

// pair is a minimal serializable for exercising the byte helpers.
type pair struct {
	A uint32
	B uint64
}

func (p *pair) Serialize(w io.Writer) error {
	if err := WriteUint32(w, p.A); err != nil {
		return err
	}
	return WriteUint64(w, p.B)
}

func (p *pair) Deserialize(r io.Reader) error {
	var err error
	if p.A, err = ReadUint32(r); err != nil {
		return err
	}
	p.B, err = ReadUint64(r)
	return err
}

func TestDecodeBytesStrict(t *testing.T) {
	enc := MustEncode(&pair{A: 1, B: 2})

	var out pair
	require.NoError(t, DecodeBytes(enc, &out))
	require.Equal(t, pair{A: 1, B: 2}, out)

	// Trailing garbage makes the encoding ambiguous.
	require.ErrorIs(t, DecodeBytes(append(enc, 0x00), &out), ErrTrailingBytes)
}
