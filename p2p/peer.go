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

package p2p

import (
	"errors"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/log"
	"github.com/opensyria/go-lira/params"
)

const (
	// maxKnownItems bounds the per-peer sets of hashes the remote is
	// assumed to know, for both blocks and transactions.
	maxKnownItems = 8192

	// highQueueSize and lowQueueSize bound the per-peer send queues.
	// Announcements and protocol replies ride the high queue;
	// transaction gossip the low one. A full low queue silently drops,
	// a full high queue tears the connection down.
	highQueueSize = 64
	lowQueueSize  = 256

	// writeTimeout is the deadline for pushing one frame into the
	// socket.
	writeTimeout = 20 * time.Second
)

var (
	// ErrPeerTimeout is returned when a request-response exceeds its
	// deadline.
	ErrPeerTimeout = errors.New("peer request timed out")

	// errPeerClosed is returned when sending on a torn down peer.
	errPeerClosed = errors.New("peer connection closed")

	// errQueueFull is returned when the high priority queue overflows.
	errQueueFull = errors.New("peer send queue overflowed")
)

// Peer is one live connection. A reader goroutine dispatches inbound
// frames, a writer goroutine drains the two priority queues.
type Peer struct {
	id      string // remote tcp address
	dialAddr string // advertised dial address (ip:port), empty for inbound
	conn    net.Conn
	log     log.Logger
	created time.Time

	highQ chan Msg
	lowQ  chan Msg

	closeOnce sync.Once
	closing   chan struct{}

	// Remote tip from the handshake and later announcements.
	headMu     sync.RWMutex
	headHash   common.Hash
	headHeight uint64
	headWork   *uint256.Int

	knownBlocks mapset.Set[common.Hash]
	knownTxs    mapset.Set[common.Hash]

	// In-flight request-responses keyed by the expected response code.
	reqMu   sync.Mutex
	pending map[uint16]chan Msg

	rttMu sync.Mutex
	rtt   time.Duration
	lastPing time.Time
}

func newPeer(conn net.Conn) *Peer {
	id := conn.RemoteAddr().String()
	return &Peer{
		id:          id,
		conn:        conn,
		log:         log.New("peer", id),
		created:     time.Now(),
		highQ:       make(chan Msg, highQueueSize),
		lowQ:        make(chan Msg, lowQueueSize),
		closing:     make(chan struct{}),
		knownBlocks: mapset.NewSet[common.Hash](),
		knownTxs:    mapset.NewSet[common.Hash](),
		pending:     make(map[uint16]chan Msg),
	}
}

// ID returns the peer identifier (its remote address).
func (p *Peer) ID() string { return p.id }

// RemoteIP returns the bare IP of the peer, the key reputation is
// tracked under.
func (p *Peer) RemoteIP() string {
	host, _, err := net.SplitHostPort(p.id)
	if err != nil {
		return p.id
	}
	return host
}

// Head returns the peer's last advertised tip.
func (p *Peer) Head() (common.Hash, uint64, *uint256.Int) {
	p.headMu.RLock()
	defer p.headMu.RUnlock()
	return p.headHash, p.headHeight, p.headWork
}

// SetHead updates the peer's advertised tip. Announcements carry no
// total work; a nil work keeps the last known value as a floor.
func (p *Peer) SetHead(hash common.Hash, height uint64, work *uint256.Int) {
	p.headMu.Lock()
	defer p.headMu.Unlock()
	p.headHash, p.headHeight = hash, height
	if work != nil {
		p.headWork = work
	}
}

// MarkBlock marks a block hash as known to the peer.
func (p *Peer) MarkBlock(hash common.Hash) {
	for p.knownBlocks.Cardinality() >= maxKnownItems {
		p.knownBlocks.Pop()
	}
	p.knownBlocks.Add(hash)
}

// MarkTx marks a transaction hash as known to the peer.
func (p *Peer) MarkTx(hash common.Hash) {
	for p.knownTxs.Cardinality() >= maxKnownItems {
		p.knownTxs.Pop()
	}
	p.knownTxs.Add(hash)
}

// KnowsBlock reports whether the peer is assumed to have the block.
func (p *Peer) KnowsBlock(hash common.Hash) bool { return p.knownBlocks.Contains(hash) }

// KnowsTx reports whether the peer is assumed to have the transaction.
func (p *Peer) KnowsTx(hash common.Hash) bool { return p.knownTxs.Contains(hash) }

// RTT returns the last measured ping round trip.
func (p *Peer) RTT() time.Duration {
	p.rttMu.Lock()
	defer p.rttMu.Unlock()
	return p.rtt
}

// close tears the connection down once.
func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.closing)
		p.conn.Close()
	})
}

// sendHigh enqueues a high priority frame. Overflow disconnects the peer
// and returns errQueueFull: a peer that cannot keep up with block
// announcements is not worth keeping.
func (p *Peer) sendHigh(msg Msg) error {
	select {
	case p.highQ <- msg:
		return nil
	case <-p.closing:
		return errPeerClosed
	default:
		p.close()
		return errQueueFull
	}
}

// sendLow enqueues a low priority frame, silently dropping on a full
// queue. Transaction gossip is the first load to shed.
func (p *Peer) sendLow(msg Msg) {
	select {
	case p.lowQ <- msg:
	case <-p.closing:
	default:
		p.log.Trace("Dropped low priority message", "code", msg.Code)
	}
}

// writeLoop drains the send queues, high priority first.
func (p *Peer) writeLoop() {
	for {
		// Prefer the high queue without blocking the low one out
		// entirely.
		select {
		case msg := <-p.highQ:
			if !p.writeMsg(msg) {
				return
			}
			continue
		case <-p.closing:
			return
		default:
		}
		select {
		case msg := <-p.highQ:
			if !p.writeMsg(msg) {
				return
			}
		case msg := <-p.lowQ:
			if !p.writeMsg(msg) {
				return
			}
		case <-p.closing:
			return
		}
	}
}

func (p *Peer) writeMsg(msg Msg) bool {
	p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteMsg(p.conn, msg); err != nil {
		p.log.Debug("Frame write failed", "err", err)
		p.close()
		return false
	}
	return true
}

// dispatch hands an inbound frame to a waiting request, if any.
func (p *Peer) dispatch(msg Msg) bool {
	p.reqMu.Lock()
	ch, ok := p.pending[msg.Code]
	if ok {
		delete(p.pending, msg.Code)
	}
	p.reqMu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

// request performs one request-response round trip with the protocol
// deadline. At most one request per response code may be in flight.
func (p *Peer) request(req Msg, respCode uint16) (Msg, error) {
	ch := make(chan Msg, 1)
	p.reqMu.Lock()
	if _, busy := p.pending[respCode]; busy {
		p.reqMu.Unlock()
		return Msg{}, errRequestInFlight
	}
	p.pending[respCode] = ch
	p.reqMu.Unlock()

	cleanup := func() {
		p.reqMu.Lock()
		delete(p.pending, respCode)
		p.reqMu.Unlock()
	}
	if err := p.sendHigh(req); err != nil {
		cleanup()
		return Msg{}, err
	}
	timer := time.NewTimer(params.RequestTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-p.closing:
		cleanup()
		return Msg{}, errPeerClosed
	case <-timer.C:
		cleanup()
		return Msg{}, ErrPeerTimeout
	}
}

// AnnounceBlock gossips a block header to the peer.
func (p *Peer) AnnounceBlock(header *types.Header) error {
	return p.sendHigh(encodeMsg(AnnounceMsg, header))
}

// SendTx gossips a transaction to the peer on the sheddable queue.
func (p *Peer) SendTx(tx *types.Transaction) {
	p.sendLow(encodeMsg(TxMsg, tx))
}

// RequestBlock fetches a block by hash.
func (p *Peer) RequestBlock(hash common.Hash) (*types.Block, error) {
	resp, err := p.request(encodeMsg(GetBlockMsg, &hashData{Hash: hash}), BlockMsg)
	if err != nil {
		return nil, err
	}
	var data blockData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return data.Block, nil
}

// RequestHeaders fetches headers following the locator.
func (p *Peer) RequestHeaders(locator []common.Hash, max int) ([]*types.Header, error) {
	resp, err := p.request(encodeMsg(GetHeadersMsg, &getHeadersData{Locator: locator, Max: uint32(max)}), HeadersMsg)
	if err != nil {
		return nil, err
	}
	var data headersData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return data.Headers, nil
}

// RequestBlocks fetches a canonical block range.
func (p *Peer) RequestBlocks(from uint64, count int) ([]*types.Block, error) {
	resp, err := p.request(encodeMsg(GetBlocksMsg, &getBlocksData{From: from, Count: uint32(count)}), BlocksMsg)
	if err != nil {
		return nil, err
	}
	var data blocksData
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}
	return data.Blocks, nil
}

// Ping measures liveness and round trip time.
func (p *Peer) Ping() error {
	start := time.Now()
	if _, err := p.request(Msg{Code: PingMsg}, PongMsg); err != nil {
		return err
	}
	p.rttMu.Lock()
	p.rtt = time.Since(start)
	p.lastPing = start
	p.rttMu.Unlock()
	return nil
}
