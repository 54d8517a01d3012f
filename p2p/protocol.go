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

// Package p2p implements the peer-to-peer fabric: the framed wire
// protocol, peer lifecycle, gossip with deduplication, reputation
// tracking, discovery and chain synchronization.
package p2p

import (
	"errors"
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"github.com/opensyria/go-lira/codec"
	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/params"
)

// Message codes. Every frame carries one of these in its envelope.
const (
	StatusMsg     uint16 = 0x00
	PingMsg       uint16 = 0x01
	PongMsg       uint16 = 0x02
	AnnounceMsg   uint16 = 0x03
	GetBlockMsg   uint16 = 0x04
	BlockMsg      uint16 = 0x05
	GetHeadersMsg uint16 = 0x06
	HeadersMsg    uint16 = 0x07
	GetBlocksMsg  uint16 = 0x08
	BlocksMsg     uint16 = 0x09
	TxMsg         uint16 = 0x0a
	GetPeersMsg   uint16 = 0x0b
	PeersMsg      uint16 = 0x0c
)

// Protocol errors. The three envelope violations (ErrUnknownMagic,
// ErrBadVersion, ErrFrameTooLarge) tear the connection down without a reply.
var (
	ErrUnknownMagic    = errors.New("unknown protocol magic")
	ErrBadVersion      = errors.New("unsupported protocol version")
	ErrFrameTooLarge   = errors.New("frame exceeds size limit")
	errUnknownMsgCode  = errors.New("unknown message code")
	errRequestInFlight = errors.New("request of this kind already in flight")
)

// Msg is one decoded frame: a code and its raw payload.
type Msg struct {
	Code    uint16
	Payload []byte
}

// Decode deserializes the payload into v through the canonical codec.
func (m Msg) Decode(v codec.Serializable) error {
	return codec.DecodeBytes(m.Payload, v)
}

// envelopeSize is the fixed frame prelude: magic, version, type, length.
const envelopeSize = 4 + 2 + 2 + 4

// WriteMsg frames and writes one message:
// MAGIC(4) VERSION(u16) TYPE(u16) LEN(u32) PAYLOAD.
func WriteMsg(w io.Writer, msg Msg) error {
	buf := make([]byte, 0, envelopeSize+len(msg.Payload))
	buf = append(buf, params.NetMagic[:]...)
	buf = append(buf, byte(params.ProtocolVersion>>8), byte(params.ProtocolVersion))
	buf = append(buf, byte(msg.Code>>8), byte(msg.Code))
	n := uint32(len(msg.Payload))
	buf = append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	buf = append(buf, msg.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMsg reads and validates one frame. Unknown magic, an unsupported
// version or an oversized length poison the stream and surface as errors
// the caller must treat as fatal for the connection.
func ReadMsg(r io.Reader) (Msg, error) {
	var head [envelopeSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Msg{}, err
	}
	if [4]byte(head[:4]) != params.NetMagic {
		return Msg{}, ErrUnknownMagic
	}
	version := uint16(head[4])<<8 | uint16(head[5])
	if version != params.ProtocolVersion {
		return Msg{}, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	code := uint16(head[6])<<8 | uint16(head[7])
	length := uint32(head[8])<<24 | uint32(head[9])<<16 | uint32(head[10])<<8 | uint32(head[11])
	if length > params.MaxFrame {
		return Msg{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Msg{}, err
	}
	return Msg{Code: code, Payload: payload}, nil
}

// encodeMsg builds a frame from a serializable payload.
func encodeMsg(code uint16, v codec.Serializable) Msg {
	if v == nil {
		return Msg{Code: code}
	}
	return Msg{Code: code, Payload: codec.MustEncode(v)}
}

// statusData is the handshake exchanged once per connection: chain
// identity plus the sender's current tip.
type statusData struct {
	ChainID   uint64
	Genesis   common.Hash
	Head      common.Hash
	Height    uint64
	TotalWork *uint256.Int
}

func (s *statusData) Serialize(w io.Writer) error {
	if err := codec.WriteUint64(w, s.ChainID); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, s.Genesis[:]); err != nil {
		return err
	}
	if err := codec.WriteBytes(w, s.Head[:]); err != nil {
		return err
	}
	if err := codec.WriteUint64(w, s.Height); err != nil {
		return err
	}
	work := s.TotalWork.Bytes32()
	return codec.WriteBytes(w, work[:])
}

func (s *statusData) Deserialize(r io.Reader) error {
	var err error
	if s.ChainID, err = codec.ReadUint64(r); err != nil {
		return err
	}
	if err = codec.ReadBytes(r, s.Genesis[:]); err != nil {
		return err
	}
	if err = codec.ReadBytes(r, s.Head[:]); err != nil {
		return err
	}
	if s.Height, err = codec.ReadUint64(r); err != nil {
		return err
	}
	var work [32]byte
	if err = codec.ReadBytes(r, work[:]); err != nil {
		return err
	}
	s.TotalWork = new(uint256.Int).SetBytes32(work[:])
	return nil
}

// hashData wraps a single hash payload (GetBlock).
type hashData struct {
	Hash common.Hash
}

func (h *hashData) Serialize(w io.Writer) error {
	return codec.WriteBytes(w, h.Hash[:])
}

func (h *hashData) Deserialize(r io.Reader) error {
	return codec.ReadBytes(r, h.Hash[:])
}

// blockData answers a GetBlock: a found flag and, when set, the block.
type blockData struct {
	Block *types.Block // nil when not found
}

func (b *blockData) Serialize(w io.Writer) error {
	if b.Block == nil {
		return codec.WriteBytes(w, []byte{0})
	}
	if err := codec.WriteBytes(w, []byte{1}); err != nil {
		return err
	}
	return b.Block.Serialize(w)
}

func (b *blockData) Deserialize(r io.Reader) error {
	var flag [1]byte
	if err := codec.ReadBytes(r, flag[:]); err != nil {
		return err
	}
	if flag[0] == 0 {
		b.Block = nil
		return nil
	}
	b.Block = new(types.Block)
	return b.Block.Deserialize(r)
}

// getHeadersData requests headers following a locator.
type getHeadersData struct {
	Locator []common.Hash
	Max     uint32
}

// maxLocatorHashes bounds locator decoding.
const maxLocatorHashes = 128

func (g *getHeadersData) Serialize(w io.Writer) error {
	if err := codec.WriteCount(w, len(g.Locator)); err != nil {
		return err
	}
	for i := range g.Locator {
		if err := codec.WriteBytes(w, g.Locator[i][:]); err != nil {
			return err
		}
	}
	return codec.WriteUint32(w, g.Max)
}

func (g *getHeadersData) Deserialize(r io.Reader) error {
	n, err := codec.ReadCount(r, maxLocatorHashes)
	if err != nil {
		return err
	}
	g.Locator = make([]common.Hash, n)
	for i := range g.Locator {
		if err := codec.ReadBytes(r, g.Locator[i][:]); err != nil {
			return err
		}
	}
	g.Max, err = codec.ReadUint32(r)
	return err
}

// headersData carries a batch of headers, ascending.
type headersData struct {
	Headers []*types.Header
}

// maxHeadersPerMsg bounds a headers response.
const maxHeadersPerMsg = 2048

func (h *headersData) Serialize(w io.Writer) error {
	if err := codec.WriteCount(w, len(h.Headers)); err != nil {
		return err
	}
	for _, header := range h.Headers {
		if err := header.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func (h *headersData) Deserialize(r io.Reader) error {
	n, err := codec.ReadCount(r, maxHeadersPerMsg)
	if err != nil {
		return err
	}
	h.Headers = make([]*types.Header, n)
	for i := range h.Headers {
		h.Headers[i] = new(types.Header)
		if err := h.Headers[i].Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

// getBlocksData requests a canonical height range.
type getBlocksData struct {
	From  uint64
	Count uint32
}

func (g *getBlocksData) Serialize(w io.Writer) error {
	if err := codec.WriteUint64(w, g.From); err != nil {
		return err
	}
	return codec.WriteUint32(w, g.Count)
}

func (g *getBlocksData) Deserialize(r io.Reader) error {
	var err error
	if g.From, err = codec.ReadUint64(r); err != nil {
		return err
	}
	g.Count, err = codec.ReadUint32(r)
	return err
}

// blocksData carries a batch of full blocks, ascending.
type blocksData struct {
	Blocks []*types.Block
}

// maxBlocksPerMsg bounds a range response; full blocks are also capped
// by the frame size.
const maxBlocksPerMsg = 128

func (b *blocksData) Serialize(w io.Writer) error {
	if err := codec.WriteCount(w, len(b.Blocks)); err != nil {
		return err
	}
	for _, block := range b.Blocks {
		if err := block.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func (b *blocksData) Deserialize(r io.Reader) error {
	n, err := codec.ReadCount(r, maxBlocksPerMsg)
	if err != nil {
		return err
	}
	b.Blocks = make([]*types.Block, n)
	for i := range b.Blocks {
		b.Blocks[i] = new(types.Block)
		if err := b.Blocks[i].Deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

// peersData carries dialable peer addresses for peer exchange.
type peersData struct {
	Addrs []string
}

const (
	maxPeersPerMsg  = 64
	maxPeerAddrSize = 256
)

func (p *peersData) Serialize(w io.Writer) error {
	if err := codec.WriteCount(w, len(p.Addrs)); err != nil {
		return err
	}
	for _, addr := range p.Addrs {
		if err := codec.WriteCount(w, len(addr)); err != nil {
			return err
		}
		if err := codec.WriteBytes(w, []byte(addr)); err != nil {
			return err
		}
	}
	return nil
}

func (p *peersData) Deserialize(r io.Reader) error {
	n, err := codec.ReadCount(r, maxPeersPerMsg)
	if err != nil {
		return err
	}
	p.Addrs = make([]string, n)
	for i := range p.Addrs {
		size, err := codec.ReadCount(r, maxPeerAddrSize)
		if err != nil {
			return err
		}
		buf := make([]byte, size)
		if err := codec.ReadBytes(r, buf); err != nil {
			return err
		}
		p.Addrs[i] = string(buf)
	}
	return nil
}
