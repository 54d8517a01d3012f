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

import "bytes"

// Encode serializes v into a fresh byte slice.
func Encode(v Serializable) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustEncode serializes v, panicking on failure. Serialization of in-memory
// values into a buffer cannot fail for well-formed types.
func MustEncode(v Serializable) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeBytes deserializes v from b. The whole input must be consumed;
// trailing bytes make the encoding ambiguous and are rejected.
func DecodeBytes(b []byte, v Serializable) error {
	r := bytes.NewReader(b)
	if err := v.Deserialize(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return ErrTrailingBytes
	}
	return nil
}
