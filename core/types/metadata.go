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

package types

import (
	"io"

	"github.com/holiman/uint256"
	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
)

// ChainMetadata is the persisted chain bookkeeping: the canonical tip, its
// cumulative work and the difficulty retarget state.
type ChainMetadata struct {
	BestHash            common.Hash
	BestHeight          uint64
	TotalWork           *uint256.Int
	Difficulty          uint32
	LastRetargetHeight  uint64
	LastRetargetTime    uint64
}

// Copy returns a deep copy.
func (m *ChainMetadata) Copy() *ChainMetadata {
	cpy := *m
	cpy.TotalWork = new(uint256.Int).Set(m.TotalWork)
	return &cpy
}

// Serialize writes the canonical encoding. TotalWork is stored as a fixed
// 32 byte big-endian integer.
func (m *ChainMetadata) Serialize(w io.Writer) error {
	if err := codec.WriteBytes(w, m.BestHash[:]); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, m.BestHeight); err != nil {
		return err
	}
	work := m.TotalWork.Bytes32()
	if err := codec.WriteBytes(w, work[:]); err != nil {
		return err
	}
	if err := codec.WriteUint32(w, m.Difficulty); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, m.LastRetargetHeight); err != nil {
		return err
	}
	return codec.WriteUint64(w, m.LastRetargetTime)
}

// Deserialize reads the canonical encoding.
func (m *ChainMetadata) Deserialize(r io.Reader) error {
	if err := codec.ReadBytes(r, m.BestHash[:]); err != nil {
		return err
	}
	var err error
	if m.BestHeight, err = codec.ReadUint64(r); err != nil {
		return err
	}
	var work [32]byte
	if err = codec.ReadBytes(r, work[:]); err != nil {
		return err
	}
	m.TotalWork = new(uint256.Int).SetBytes32(work[:])
	if m.Difficulty, err = codec.ReadUint32(r); err != nil {
		return err
	}
	if m.LastRetargetHeight, err = codec.ReadUint64(r); err != nil {
		return err
	}
	m.LastRetargetTime, err = codec.ReadUint64(r)
	return err
}
