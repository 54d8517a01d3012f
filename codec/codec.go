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

// Package codec implements the primitives of the canonical binary encoding:
// fixed-width big-endian integers and u32 count prefixed vectors, written in
// field declaration order. The encoding is bijective; decoders are strict
// and reject trailing bytes at the top level.
package codec

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrTrailingBytes is returned by DecodeBytes when input remains after
	// a complete value has been decoded.
	ErrTrailingBytes = errors.New("codec: trailing bytes after value")

	// ErrCountTooLarge is returned when a vector count prefix exceeds the
	// limit passed by the caller.
	ErrCountTooLarge = errors.New("codec: vector count exceeds limit")
)

// Serializable is the interface implemented by all wire types.
type Serializable interface {
	Serialize(w io.Writer) error
	Deserialize(r io.Reader) error
}

// WriteUint16 writes v as 2 big-endian bytes.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint32 writes v as 4 big-endian bytes.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint64 writes v as 8 big-endian bytes.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteBytes writes b verbatim. It is used for fixed-width fields whose
// length is implied by the schema.
func WriteBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// WriteCount writes the u32 big-endian count prefix of a vector.
func WriteCount(w io.Writer, n int) error {
	return WriteUint32(w, uint32(n))
}

// ReadUint16 reads 2 big-endian bytes.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadUint32 reads 4 big-endian bytes.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads 8 big-endian bytes.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadBytes fills b from r.
func ReadBytes(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}

// ReadCount reads a u32 vector count prefix and rejects counts above max.
func ReadCount(r io.Reader, max int) (int, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return 0, err
	}
	if max >= 0 && int64(n) > int64(max) {
		return 0, ErrCountTooLarge
	}
	return int(n), nil
}
