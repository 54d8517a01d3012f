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

package params

import "time"

// Wire protocol constants.
const (
	// ProtocolVersion is the version number carried in every frame
	// envelope and in the handshake.
	ProtocolVersion uint16 = 1

	// MaxFrame bounds the payload length of a single wire frame.
	MaxFrame = 8 << 20

	// RequestTimeout is the deadline for a peer request-response
	// round trip.
	RequestTimeout = 30 * time.Second
)

// NetMagic is the 4 byte constant opening every frame, "LIRA" in ASCII.
var NetMagic = [4]byte{0x4c, 0x49, 0x52, 0x41}

// Version of the node implementation, reported in logs.
const (
	VersionMajor = 0
	VersionMinor = 4
	VersionPatch = 1
)

// Version holds the textual version string.
const Version = "0.4.1"
