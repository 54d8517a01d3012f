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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// beaconInterval is the cadence of LAN presence broadcasts.
	beaconInterval = 15 * time.Second

	// beaconPrefix opens every discovery datagram.
	beaconPrefix = "lira-disc/1"
)

// discovery announces the node on the local network over UDP broadcast
// and collects announcements of others, feeding them into the dial
// queue. Wide-area topology comes from bootnodes and peer exchange; the
// beacon covers the zero-config LAN case.
type discovery struct {
	srv    *Server
	conn   *net.UDPConn
	nodeID string // random token to recognize our own datagrams
	port   int
	quit   chan struct{}
	wg     sync.WaitGroup
}

func newDiscovery(srv *Server) (*discovery, error) {
	port := srv.config.DiscoveryPort
	if port == 0 {
		if _, portStr, err := net.SplitHostPort(srv.config.ListenAddr); err == nil {
			fmt.Sscanf(portStr, "%d", &port)
		}
	}
	if port == 0 {
		return nil, fmt.Errorf("no discovery port configured")
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	var token [8]byte
	rand.Read(token[:])
	return &discovery{
		srv:    srv,
		conn:   conn,
		nodeID: hex.EncodeToString(token[:]),
		port:   port,
		quit:   make(chan struct{}),
	}, nil
}

func (d *discovery) start() {
	d.wg.Add(2)
	go d.beaconLoop()
	go d.readLoop()
	d.srv.log.Info("LAN discovery up", "port", d.port)
}

func (d *discovery) stop() {
	close(d.quit)
	d.conn.Close()
	d.wg.Wait()
}

// beaconLoop periodically broadcasts our presence.
func (d *discovery) beaconLoop() {
	defer d.wg.Done()

	tcpPort := d.port
	if _, portStr, err := net.SplitHostPort(d.srv.config.ListenAddr); err == nil {
		fmt.Sscanf(portStr, "%d", &tcpPort)
	}
	payload := []byte(fmt.Sprintf("%s %s %d", beaconPrefix, d.nodeID, tcpPort))
	target := &net.UDPAddr{IP: net.IPv4bcast, Port: d.port}

	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()
	for {
		if _, err := d.conn.WriteToUDP(payload, target); err != nil {
			d.srv.log.Trace("Discovery beacon failed", "err", err)
		}
		select {
		case <-ticker.C:
		case <-d.quit:
			return
		}
	}
}

// readLoop collects beacons of other nodes.
func (d *discovery) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, 256)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.quit:
				return
			default:
				continue
			}
		}
		fields := strings.Fields(string(buf[:n]))
		if len(fields) != 3 || fields[0] != beaconPrefix || fields[1] == d.nodeID {
			continue
		}
		var tcpPort int
		if _, err := fmt.Sscanf(fields[2], "%d", &tcpPort); err != nil || tcpPort <= 0 || tcpPort > 65535 {
			continue
		}
		addr := net.JoinHostPort(from.IP.String(), fmt.Sprintf("%d", tcpPort))
		d.srv.log.Trace("Discovered LAN peer", "addr", addr)
		d.srv.addCandidate(addr)
	}
}
