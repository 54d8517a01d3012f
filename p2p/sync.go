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
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/opensyria/go-lira/core"
)

var (
	syncBlocksMeter = metrics.GetOrRegisterMeter("p2p/sync/blocks", nil)
	syncRunsMeter   = metrics.GetOrRegisterMeter("p2p/sync/runs", nil)
)

const (
	// syncCheckInterval is how often the syncer looks for a better peer
	// in the absence of notifications.
	syncCheckInterval = 10 * time.Second

	// syncBatchSize is the block range requested per round trip. Each
	// accepted batch is a durable checkpoint: a dropped session resumes
	// from the local tip.
	syncBatchSize = 128

	// syncHeaderProbe is how many headers the ancestor probe requests.
	syncHeaderProbe = maxHeadersPerMsg
)

// chainSyncer keeps the local chain caught up with the heaviest known
// peer. One sync session runs at a time.
type chainSyncer struct {
	srv    *Server
	notifyCh chan struct{}
}

func newChainSyncer(srv *Server) *chainSyncer {
	return &chainSyncer{
		srv:      srv,
		notifyCh: make(chan struct{}, 1),
	}
}

// notify pokes the syncer after a handshake or tip change.
func (cs *chainSyncer) notify() {
	select {
	case cs.notifyCh <- struct{}{}:
	default:
	}
}

// loop picks the best peer whenever poked or periodically, and runs one
// sync session against it.
func (cs *chainSyncer) loop() {
	defer cs.srv.wg.Done()

	ticker := time.NewTicker(syncCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cs.notifyCh:
		case <-ticker.C:
		case <-cs.srv.quit:
			return
		}
		if peer := cs.bestPeer(); peer != nil {
			cs.syncWithPeer(peer)
		}
	}
}

// bestPeer returns the live peer advertising strictly more total work
// than the local chain, preferring the heaviest.
func (cs *chainSyncer) bestPeer() *Peer {
	local := cs.srv.backend.Metadata().TotalWork
	var best *Peer
	for _, p := range cs.srv.Peers() {
		_, _, work := p.Head()
		if work == nil || work.Cmp(local) <= 0 {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		_, _, bestWork := best.Head()
		if work.Cmp(bestWork) > 0 {
			best = p
		}
	}
	return best
}

// syncWithPeer drains one peer: locate the common ancestor through the
// exponential locator, then pull blocks forward in batches through the
// regular ingestion path. Progress is measured against our own tip, so
// an interrupted session loses at most one batch.
func (cs *chainSyncer) syncWithPeer(p *Peer) {
	syncRunsMeter.Mark(1)
	_, targetHeight, targetWork := p.Head()
	p.log.Info("Chain sync started", "target", targetHeight)

	headers, err := p.RequestHeaders(cs.srv.backend.Locator(), syncHeaderProbe)
	if err != nil {
		cs.srv.penalize(p, penaltyTimeout, "header probe failed")
		return
	}
	if len(headers) == 0 {
		// The peer has nothing past our chain; its advertised work was
		// stale or a lie.
		p.log.Debug("Sync peer had no headers for us")
		return
	}
	from := headers[0].Height
	imported := 0
	for {
		select {
		case <-cs.srv.quit:
			return
		case <-p.closing:
			return
		default:
		}
		blocks, err := p.RequestBlocks(from, syncBatchSize)
		if err != nil {
			cs.srv.penalize(p, penaltyTimeout, "block batch failed")
			break
		}
		if len(blocks) == 0 {
			break
		}
		for _, block := range blocks {
			err := cs.srv.backend.InsertBlock(block)
			switch {
			case err == nil:
				imported++
			case errors.Is(err, core.ErrKnownBlock):
			case errors.Is(err, core.ErrMissingParent):
				// Range responses should chain onto what we have; a gap
				// means the peer reorganized mid-session. Restart later.
				p.log.Debug("Sync batch left a gap", "height", block.Height())
				cs.notify()
				return
			case errors.Is(err, core.ErrDeepReorg):
				p.log.Warn("Sync refused, branch reorganizes too deep")
				return
			default:
				cs.srv.penalize(p, penaltyInvalid, "invalid sync block")
				return
			}
		}
		syncBlocksMeter.Mark(int64(len(blocks)))
		from += uint64(len(blocks))
		meta := cs.srv.backend.Metadata()
		if targetWork != nil && meta.TotalWork.Cmp(targetWork) >= 0 {
			break
		}
		if len(blocks) < syncBatchSize && from > targetHeight {
			break
		}
	}
	p.log.Info("Chain sync finished", "imported", imported,
		"height", cs.srv.backend.Metadata().BestHeight)
}
