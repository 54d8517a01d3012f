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

// Package crypto implements the hashing and signature primitives of the
// protocol: SHA-256 digests and Ed25519 signatures.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/bits"

	"github.com/opensyria/go-lira/common"
)

const (
	// PublicKeyLength is the byte length of an Ed25519 public key.
	PublicKeyLength = ed25519.PublicKeySize
	// SignatureLength is the byte length of an Ed25519 signature.
	SignatureLength = ed25519.SignatureSize
)

var errInvalidSeed = errors.New("invalid private key seed length")

// PublicKey is a fixed-size Ed25519 public key as it appears on the wire.
type PublicKey [PublicKeyLength]byte

// Signature is a fixed-size Ed25519 signature as it appears on the wire.
type Signature [SignatureLength]byte

// Bytes returns the key as a byte slice.
func (p PublicKey) Bytes() []byte { return p[:] }

// IsZero reports whether the key is all zeroes. The zero key identifies the
// coinbase sender and never verifies a signature.
func (p PublicKey) IsZero() bool { return p == PublicKey{} }

// Address derives the account address of the key: SHA256(pubkey).
func (p PublicKey) Address() common.Address {
	return common.Address(sha256.Sum256(p[:]))
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte { return s[:] }

// PrivateKey wraps an Ed25519 private key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GenerateKey creates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromSeed deterministically derives a private key from a 32 byte
// seed. Useful for fixtures and the genesis tooling.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errInvalidSeed
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns the public key half.
func (k *PrivateKey) Public() PublicKey {
	var pub PublicKey
	copy(pub[:], k.key.Public().(ed25519.PublicKey))
	return pub
}

// Address derives the account address of the key holder.
func (k *PrivateKey) Address() common.Address {
	return k.Public().Address()
}

// Sign signs msg and returns the signature.
func (k *PrivateKey) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.key, msg))
	return sig
}

// Verify reports whether sig is a valid signature of msg under pub.
func Verify(pub PublicKey, msg []byte, sig Signature) bool {
	if pub.IsZero() {
		return false
	}
	return ed25519.Verify(pub[:], msg, sig[:])
}

// Sum256 returns the SHA-256 digest of the concatenation of data.
func Sum256(data ...[]byte) common.Hash {
	d := sha256.New()
	for _, b := range data {
		d.Write(b)
	}
	var h common.Hash
	d.Sum(h[:0])
	return h
}

// LeadingZeroBits counts the number of leading zero bits of h, the measure a
// block hash is checked against its difficulty with.
func LeadingZeroBits(h common.Hash) uint32 {
	var n uint32
	for _, b := range h {
		if b == 0 {
			n += 8
			continue
		}
		n += uint32(bits.LeadingZeros8(b))
		break
	}
	return n
}
