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

	lru "github.com/hashicorp/golang-lru"
	"github.com/rcrowley/go-metrics"

	"github.com/opensyria/go-lira/common"
	"github.com/opensyria/go-lira/core"
	"github.com/opensyria/go-lira/core/types"
	"github.com/opensyria/go-lira/log"
)

var (
	peerGauge       = metrics.GetOrRegisterGauge("p2p/peers", nil)
	ingressTxMeter  = metrics.GetOrRegisterMeter("p2p/ingress/txs", nil)
	ingressBlkMeter = metrics.GetOrRegisterMeter("p2p/ingress/blocks", nil)
	banMeter        = metrics.GetOrRegisterMeter("p2p/bans", nil)
)

const (
	// seenCacheSize is how many recently handled gossip hashes are
	// remembered for deduplication.
	seenCacheSize = 16384

	// dialTimeout bounds an outbound connection attempt.
	dialTimeout = 10 * time.Second

	// handshakeTimeout bounds the status exchange.
	handshakeTimeout = 10 * time.Second

	// pingInterval is the liveness cadence per peer.
	pingInterval = 45 * time.Second

	// banThreshold is the reputation score at which a peer is
	// disconnected and put on cooldown.
	banThreshold = -100

	// banCooldown is how long a banned address stays unreachable.
	banCooldown = 10 * time.Minute
)

// Reputation penalties per rejection class. Mild clock skew is treated
// more gently than outright invalid data.
const (
	penaltyMalformed = -25
	penaltyInvalid   = -50
	penaltyTimestamp = -5
	penaltyTimeout   = -10
)

// Backend is the node surface the fabric drives: chain reads, the
// ingestion path and loose transaction intake.
type Backend interface {
	ChainID() uint64
	GenesisHash() common.Hash
	CurrentBlock() *types.Block
	Metadata() *types.ChainMetadata
	HasBlock(hash common.Hash) bool
	GetBlock(hash common.Hash) *types.Block
	BlocksFrom(height uint64, max int) []*types.Block
	HeadersFromLocator(locator []common.Hash, max int) []*types.Header
	Locator() []common.Hash
	InsertBlock(block *types.Block) error
	MissingParent(hash common.Hash) (common.Hash, bool)
	AddRemoteTx(tx *types.Transaction) error
}

// Config holds the fabric settings.
type Config struct {
	// ListenAddr is the TCP listen address; empty disables listening.
	ListenAddr string `toml:"listen-addr"`

	// AdvertiseAddr is the dialable address gossiped to other peers.
	AdvertiseAddr string `toml:"advertise-addr"`

	// Bootnodes are dialed at startup.
	Bootnodes []string `toml:"bootnodes"`

	MaxPeers int `toml:"max-peers"`

	// NoDiscovery disables the UDP LAN beacon.
	NoDiscovery bool `toml:"no-discovery"`

	// DiscoveryPort is the UDP beacon port, defaulting to the listen
	// port.
	DiscoveryPort int `toml:"discovery-port"`
}

// DefaultConfig holds reasonable fabric defaults.
var DefaultConfig = Config{
	ListenAddr: ":30899",
	MaxPeers:   25,
}

// Server runs the whole fabric: listener, dialer, discovery, per-peer
// read/write loops, gossip and the chain syncer.
type Server struct {
	config  Config
	backend Backend
	log     log.Logger

	listener net.Listener
	disc     *discovery
	syncer   *chainSyncer

	peerMu sync.RWMutex
	peers  map[string]*Peer

	repMu  sync.Mutex
	scores map[string]int       // reputation by remote IP
	banned map[string]time.Time // cooldown expiry by remote IP

	seen *lru.Cache // gossip hashes already handled

	dialCh chan string
	quit   chan struct{}
	wg     sync.WaitGroup

	runningMu sync.Mutex
	running   bool
}

// NewServer creates an idle fabric; Start brings it up.
func NewServer(config Config, backend Backend) *Server {
	if config.MaxPeers == 0 {
		config.MaxPeers = DefaultConfig.MaxPeers
	}
	seen, _ := lru.New(seenCacheSize)
	return &Server{
		config:  config,
		backend: backend,
		log:     log.New("module", "p2p"),
		peers:   make(map[string]*Peer),
		scores:  make(map[string]int),
		banned:  make(map[string]time.Time),
		seen:    seen,
		dialCh:  make(chan string, 256),
		quit:    make(chan struct{}),
	}
}

// Start brings up the listener, discovery, dialer and syncer.
func (srv *Server) Start() error {
	srv.runningMu.Lock()
	defer srv.runningMu.Unlock()
	if srv.running {
		return nil
	}
	if srv.config.ListenAddr != "" {
		listener, err := net.Listen("tcp", srv.config.ListenAddr)
		if err != nil {
			return err
		}
		srv.listener = listener
		srv.wg.Add(1)
		go srv.listenLoop()
		srv.log.Info("P2P listener up", "addr", listener.Addr())
	}
	if !srv.config.NoDiscovery {
		disc, err := newDiscovery(srv)
		if err != nil {
			srv.log.Warn("LAN discovery unavailable", "err", err)
		} else {
			srv.disc = disc
			srv.disc.start()
		}
	}
	srv.syncer = newChainSyncer(srv)
	srv.wg.Add(2)
	go srv.dialLoop()
	go srv.syncer.loop()

	for _, boot := range srv.config.Bootnodes {
		srv.addCandidate(boot)
	}
	srv.running = true
	return nil
}

// Stop tears the fabric down and waits for all peer loops.
func (srv *Server) Stop() {
	srv.runningMu.Lock()
	defer srv.runningMu.Unlock()
	if !srv.running {
		return
	}
	srv.running = false
	close(srv.quit)
	if srv.listener != nil {
		srv.listener.Close()
	}
	if srv.disc != nil {
		srv.disc.stop()
	}
	srv.peerMu.Lock()
	for _, p := range srv.peers {
		p.close()
	}
	srv.peerMu.Unlock()
	srv.wg.Wait()
	srv.log.Info("P2P fabric stopped")
}

// PeerCount returns the number of live connections.
func (srv *Server) PeerCount() int {
	srv.peerMu.RLock()
	defer srv.peerMu.RUnlock()
	return len(srv.peers)
}

// Peers returns a snapshot of the live peers.
func (srv *Server) Peers() []*Peer {
	srv.peerMu.RLock()
	defer srv.peerMu.RUnlock()
	peers := make([]*Peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		peers = append(peers, p)
	}
	return peers
}

// addCandidate queues a dial target.
func (srv *Server) addCandidate(addr string) {
	if addr == "" || addr == srv.config.AdvertiseAddr {
		return
	}
	select {
	case srv.dialCh <- addr:
	default:
	}
}

// listenLoop accepts inbound connections.
func (srv *Server) listenLoop() {
	defer srv.wg.Done()
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-srv.quit:
				return
			default:
				srv.log.Debug("Accept failed", "err", err)
				continue
			}
		}
		go srv.setupConn(conn, true)
	}
}

// dialLoop drains the candidate queue while there is peer capacity.
func (srv *Server) dialLoop() {
	defer srv.wg.Done()
	for {
		select {
		case addr := <-srv.dialCh:
			if srv.PeerCount() >= srv.config.MaxPeers || srv.isConnected(addr) || srv.isBanned(addrIP(addr)) {
				continue
			}
			go srv.dial(addr)
		case <-srv.quit:
			return
		}
	}
}

func (srv *Server) dial(addr string) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		srv.log.Trace("Dial failed", "addr", addr, "err", err)
		return
	}
	srv.setupConn(conn, false)
}

func (srv *Server) isConnected(addr string) bool {
	srv.peerMu.RLock()
	defer srv.peerMu.RUnlock()
	for _, p := range srv.peers {
		if p.id == addr || p.dialAddr == addr {
			return true
		}
	}
	return false
}

// setupConn performs the handshake and, on success, runs the peer until
// its connection dies.
func (srv *Server) setupConn(conn net.Conn, inbound bool) {
	peer := newPeer(conn)
	if !inbound {
		// The address we dialed is dialable by others too.
		peer.dialAddr = conn.RemoteAddr().String()
	}
	if srv.isBanned(peer.RemoteIP()) {
		peer.log.Debug("Rejected banned peer")
		conn.Close()
		return
	}
	if srv.PeerCount() >= srv.config.MaxPeers {
		peer.log.Debug("Rejected peer, at capacity")
		conn.Close()
		return
	}
	if err := srv.handshake(peer); err != nil {
		peer.log.Debug("Handshake failed", "err", err, "inbound", inbound)
		conn.Close()
		return
	}
	srv.peerMu.Lock()
	if _, ok := srv.peers[peer.id]; ok {
		srv.peerMu.Unlock()
		conn.Close()
		return
	}
	srv.peers[peer.id] = peer
	peerGauge.Update(int64(len(srv.peers)))
	srv.peerMu.Unlock()

	peer.log.Info("Peer connected", "inbound", inbound, "total", srv.PeerCount())
	go peer.writeLoop()
	go srv.pingLoop(peer)

	// Seed peer exchange and let the syncer consider the new tip.
	peer.sendLow(Msg{Code: GetPeersMsg})
	srv.syncer.notify()

	srv.readLoop(peer)

	srv.peerMu.Lock()
	delete(srv.peers, peer.id)
	peerGauge.Update(int64(len(srv.peers)))
	srv.peerMu.Unlock()
	peer.close()
	peer.log.Info("Peer disconnected", "total", srv.PeerCount())
}

// handshake exchanges status frames and verifies chain identity.
func (srv *Server) handshake(p *Peer) error {
	meta := srv.backend.Metadata()
	ours := &statusData{
		ChainID:   srv.backend.ChainID(),
		Genesis:   srv.backend.GenesisHash(),
		Head:      meta.BestHash,
		Height:    meta.BestHeight,
		TotalWork: meta.TotalWork,
	}
	p.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer p.conn.SetDeadline(time.Time{})

	errc := make(chan error, 1)
	go func() {
		errc <- WriteMsg(p.conn, encodeMsg(StatusMsg, ours))
	}()
	msg, err := ReadMsg(p.conn)
	if err != nil {
		return err
	}
	if err := <-errc; err != nil {
		return err
	}
	if msg.Code != StatusMsg {
		return errors.New("first frame is not status")
	}
	var theirs statusData
	if err := msg.Decode(&theirs); err != nil {
		return err
	}
	if theirs.ChainID != ours.ChainID {
		return errors.New("chain id mismatch")
	}
	if theirs.Genesis != ours.Genesis {
		return errors.New("genesis mismatch")
	}
	p.SetHead(theirs.Head, theirs.Height, theirs.TotalWork)
	return nil
}

// pingLoop keeps the liveness probe running for one peer.
func (srv *Server) pingLoop(p *Peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.Ping(); err != nil {
				srv.penalize(p, penaltyTimeout, "ping timeout")
				p.close()
				return
			}
		case <-p.closing:
			return
		case <-srv.quit:
			return
		}
	}
}

// readLoop pumps inbound frames through the dispatcher and handlers
// until the connection dies.
func (srv *Server) readLoop(p *Peer) {
	for {
		msg, err := ReadMsg(p.conn)
		if err != nil {
			if errors.Is(err, ErrUnknownMagic) || errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrBadVersion) {
				// Envelope violations drop the connection outright.
				srv.penalize(p, penaltyMalformed, "envelope violation")
			}
			p.close()
			return
		}
		if p.dispatch(msg) {
			continue
		}
		if err := srv.handleMsg(p, msg); err != nil {
			p.log.Debug("Message handling failed", "code", msg.Code, "err", err)
		}
		select {
		case <-p.closing:
			return
		case <-srv.quit:
			p.close()
			return
		default:
		}
	}
}

// handleMsg services one unsolicited inbound frame.
func (srv *Server) handleMsg(p *Peer, msg Msg) error {
	switch msg.Code {
	case PingMsg:
		return p.sendHigh(Msg{Code: PongMsg})

	case AnnounceMsg:
		var header types.Header
		if err := msg.Decode(&header); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed announce")
			return err
		}
		return srv.handleAnnounce(p, &header)

	case TxMsg:
		tx := new(types.Transaction)
		if err := msg.Decode(tx); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed transaction")
			return err
		}
		return srv.handleTx(p, tx)

	case GetBlockMsg:
		var req hashData
		if err := msg.Decode(&req); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed request")
			return err
		}
		block := srv.backend.GetBlock(req.Hash)
		return p.sendHigh(encodeMsg(BlockMsg, &blockData{Block: block}))

	case GetHeadersMsg:
		var req getHeadersData
		if err := msg.Decode(&req); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed request")
			return err
		}
		max := int(req.Max)
		if max > maxHeadersPerMsg {
			max = maxHeadersPerMsg
		}
		headers := srv.backend.HeadersFromLocator(req.Locator, max)
		return p.sendHigh(encodeMsg(HeadersMsg, &headersData{Headers: headers}))

	case GetBlocksMsg:
		var req getBlocksData
		if err := msg.Decode(&req); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed request")
			return err
		}
		count := int(req.Count)
		if count > maxBlocksPerMsg {
			count = maxBlocksPerMsg
		}
		blocks := srv.backend.BlocksFrom(req.From, count)
		return p.sendHigh(encodeMsg(BlocksMsg, &blocksData{Blocks: blocks}))

	case GetPeersMsg:
		var addrs []string
		for _, other := range srv.Peers() {
			if other == p || other.dialAddr == "" {
				continue
			}
			addrs = append(addrs, other.dialAddr)
			if len(addrs) >= maxPeersPerMsg-1 {
				break
			}
		}
		if srv.config.AdvertiseAddr != "" {
			addrs = append(addrs, srv.config.AdvertiseAddr)
		}
		p.sendLow(encodeMsg(PeersMsg, &peersData{Addrs: addrs}))
		return nil

	case PeersMsg:
		var data peersData
		if err := msg.Decode(&data); err != nil {
			srv.penalize(p, penaltyMalformed, "malformed peer list")
			return err
		}
		for _, addr := range data.Addrs {
			srv.addCandidate(addr)
		}
		return nil

	case PongMsg, StatusMsg, BlockMsg, HeadersMsg, BlocksMsg:
		// Responses outside a request context are protocol noise.
		srv.penalize(p, penaltyMalformed, "unsolicited response")
		return nil

	default:
		srv.penalize(p, penaltyMalformed, "unknown message code")
		return errUnknownMsgCode
	}
}

// handleAnnounce reacts to a gossiped header: fetch the block if it is
// new, push it through ingestion, and forward the announcement once.
func (srv *Server) handleAnnounce(p *Peer, header *types.Header) error {
	hash := header.Hash()
	p.MarkBlock(hash)
	p.SetHead(hash, header.Height, nil)

	if srv.backend.HasBlock(hash) || srv.alreadySeen(hash) {
		return nil
	}
	// The retrieval must not run on the read loop: the response frame is
	// delivered through it.
	go func() {
		block, err := p.RequestBlock(hash)
		if err != nil {
			srv.penalize(p, penaltyTimeout, "block retrieval failed")
			return
		}
		if block == nil {
			srv.penalize(p, penaltyMalformed, "announced block not served")
			return
		}
		if block.Hash() != hash {
			srv.penalize(p, penaltyInvalid, "block does not match announcement")
			return
		}
		ingressBlkMeter.Mark(1)
		srv.importBlock(p, block)
	}()
	return nil
}

// importBlock pushes a peer block through the ingestion path, maps the
// outcome onto reputation, chases missing parents and forwards accepted
// blocks.
func (srv *Server) importBlock(p *Peer, block *types.Block) error {
	err := srv.backend.InsertBlock(block)
	switch {
	case err == nil:
		srv.BroadcastBlock(block)
		return nil
	case errors.Is(err, core.ErrKnownBlock):
		return nil
	case errors.Is(err, core.ErrMissingParent):
		// Park happened inside the chain; chase the lowest missing
		// ancestor from the same peer.
		if missing, ok := srv.backend.MissingParent(block.Hash()); ok {
			go srv.fetchMissing(p, missing)
		}
		return nil
	case errors.Is(err, core.ErrFutureTimestamp), errors.Is(err, core.ErrStaleTimestamp):
		srv.penalize(p, penaltyTimestamp, "timestamp violation")
		return err
	case errors.Is(err, core.ErrDeepReorg):
		// Not the peer's fault; the branch is simply refused.
		return err
	default:
		srv.penalize(p, penaltyInvalid, "invalid block")
		return err
	}
}

// fetchMissing requests a missing ancestor and feeds it back through
// import, unparking the orphan chain above it.
func (srv *Server) fetchMissing(p *Peer, hash common.Hash) {
	if srv.backend.HasBlock(hash) {
		return
	}
	block, err := p.RequestBlock(hash)
	if err != nil || block == nil {
		srv.penalize(p, penaltyTimeout, "missing parent not served")
		return
	}
	srv.importBlock(p, block)
}

// handleTx feeds a gossiped transaction into the pool and forwards it
// once.
func (srv *Server) handleTx(p *Peer, tx *types.Transaction) error {
	hash := tx.Hash()
	p.MarkTx(hash)
	if srv.alreadySeen(hash) {
		return nil
	}
	ingressTxMeter.Mark(1)
	if err := srv.backend.AddRemoteTx(tx); err != nil {
		if errors.Is(err, core.ErrInvalidSignature) || errors.Is(err, core.ErrMalformedEncoding) {
			srv.penalize(p, penaltyInvalid, "invalid transaction")
		}
		return err
	}
	srv.BroadcastTx(tx)
	return nil
}

// alreadySeen checks and marks the gossip dedup cache in one step: the
// first caller owns forwarding.
func (srv *Server) alreadySeen(hash common.Hash) bool {
	seen, _ := srv.seen.ContainsOrAdd(hash, struct{}{})
	return seen
}

// BroadcastBlock announces a block header to every peer not known to
// have it. Each message is forwarded at most once.
func (srv *Server) BroadcastBlock(block *types.Block) {
	srv.seen.ContainsOrAdd(block.Hash(), struct{}{})
	header := block.Header()
	for _, p := range srv.Peers() {
		if p.KnowsBlock(block.Hash()) {
			continue
		}
		p.MarkBlock(block.Hash())
		if err := p.AnnounceBlock(header); err != nil {
			// A peer that cannot take announcements is disconnected:
			// block propagation outranks any single connection.
			p.log.Debug("Dropping peer, announce queue overflow", "err", err)
			p.close()
		}
	}
}

// BroadcastTx gossips a transaction to every peer not known to have it.
func (srv *Server) BroadcastTx(tx *types.Transaction) {
	srv.seen.ContainsOrAdd(tx.Hash(), struct{}{})
	for _, p := range srv.Peers() {
		if p.KnowsTx(tx.Hash()) {
			continue
		}
		p.MarkTx(tx.Hash())
		p.SendTx(tx)
	}
}

// penalize decrements a peer's reputation, disconnecting and cooling the
// address down when it crosses the ban threshold.
func (srv *Server) penalize(p *Peer, delta int, reason string) {
	ip := p.RemoteIP()
	srv.repMu.Lock()
	srv.scores[ip] += delta
	score := srv.scores[ip]
	banned := score <= banThreshold
	if banned {
		srv.banned[ip] = time.Now().Add(banCooldown)
		delete(srv.scores, ip)
	}
	srv.repMu.Unlock()

	p.log.Debug("Peer penalized", "delta", delta, "score", score, "reason", reason)
	if banned {
		banMeter.Mark(1)
		p.log.Warn("Peer banned", "reason", reason, "cooldown", banCooldown)
		p.close()
	}
}

// isBanned reports whether an address is on cooldown.
func (srv *Server) isBanned(ip string) bool {
	srv.repMu.Lock()
	defer srv.repMu.Unlock()
	until, ok := srv.banned[ip]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(srv.banned, ip)
		return false
	}
	return true
}

func addrIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
