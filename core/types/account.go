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

	"github.com/opensyria/go-lira/codec"
)

// Account is the state of a single address: spendable balance and the next
// expected nonce. The zero value is the state of every untouched address;
// an account exists iff either field is nonzero.
type Account struct {
	Balance uint64
	Nonce   uint64
}

// IsEmpty reports whether the account equals the default state, in which
// case it is not stored.
func (a Account) IsEmpty() bool { return a.Balance == 0 && a.Nonce == 0 }

// Serialize writes the 16 byte canonical encoding.
func (a *Account) Serialize(w io.Writer) error {
	if err := codec.WriteUint64(w, a.Balance); err != nil {
		return err
	}
	return codec.WriteUint64(w, a.Nonce)
}

// Deserialize reads the 16 byte canonical encoding.
func (a *Account) Deserialize(r io.Reader) error {
	var err error
	if a.Balance, err = codec.ReadUint64(r); err != nil {
		return err
	}
	a.Nonce, err = codec.ReadUint64(r)
	return err
}
