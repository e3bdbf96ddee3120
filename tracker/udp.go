// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package tracker

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"
)

// udpProtocolMagic identifies the BEP-15 connect request.
const udpProtocolMagic uint64 = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
)

const (
	_udpMaxRetries   = 20
	_udpBaseTimeout  = 100 * time.Millisecond
	_udpTimeoutStep  = 100 * time.Millisecond
	_udpConnectLen   = 16
	_udpAnnounceLen  = 98
	_udpMinRespLen   = 20
	_udpPeerRecordSz = 6
)

// UDPClient announces to a BitTorrent UDP tracker per BEP-15.
type UDPClient struct {
	addr string
}

// NewUDPClient creates a UDPClient for the given announce URL.
func NewUDPClient(announceURL *url.URL) *UDPClient {
	return &UDPClient{addr: announceURL.Host}
}

// Announce performs the two-round BEP-15 connect/announce exchange,
// retrying up to 20 times with a per-attempt timeout that starts at
// 100ms and increases by 100ms on every retry.
func (c *UDPClient) Announce(req AnnounceRequest) (AnnounceResponse, error) {
	conn, err := net.Dial("udp", c.addr)
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: dial: %s", ErrTrackerTimeout, err)
	}
	defer conn.Close()

	var lastErr error
	for attempt := 0; attempt < _udpMaxRetries; attempt++ {
		timeout := _udpBaseTimeout + time.Duration(attempt)*_udpTimeoutStep
		conn.SetDeadline(time.Now().Add(timeout))

		connID, err := c.connect(conn)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := c.announce(conn, connID, req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return AnnounceResponse{}, fmt.Errorf("%w: exhausted %d retries: %s", ErrTrackerTimeout, _udpMaxRetries, lastErr)
}

func (c *UDPClient) connect(conn net.Conn) (uint64, error) {
	txID := rand.Uint32()

	req := make([]byte, _udpConnectLen)
	binary.BigEndian.PutUint64(req[0:8], udpProtocolMagic)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	if _, err := conn.Write(req); err != nil {
		return 0, err
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, err
	}
	if n < 16 {
		return 0, fmt.Errorf("%w: connect response too short: %d bytes", ErrTrackerProtocol, n)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action != actionConnect || gotTxID != txID {
		return 0, fmt.Errorf("%w: connect response mismatch", ErrTrackerProtocol)
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func (c *UDPClient) announce(conn net.Conn, connID uint64, req AnnounceRequest) (AnnounceResponse, error) {
	txID := rand.Uint32()

	buf := make([]byte, _udpAnnounceLen)
	binary.BigEndian.PutUint64(buf[0:8], connID)
	binary.BigEndian.PutUint32(buf[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(buf[12:16], txID)
	copy(buf[16:36], req.InfoHash[:])
	copy(buf[36:56], req.PeerID[:])
	binary.BigEndian.PutUint64(buf[56:64], uint64(req.Downloaded))
	binary.BigEndian.PutUint64(buf[64:72], uint64(req.Left))
	binary.BigEndian.PutUint64(buf[72:80], uint64(req.Uploaded))
	binary.BigEndian.PutUint32(buf[80:84], 0) // event: none
	binary.BigEndian.PutUint32(buf[84:88], 0) // ip: unspecified
	binary.BigEndian.PutUint32(buf[88:92], 0) // key
	binary.BigEndian.PutUint32(buf[92:96], 0xFFFFFFFF) // num_want: -1
	binary.BigEndian.PutUint16(buf[96:98], uint16(req.Port))

	if _, err := conn.Write(buf); err != nil {
		return AnnounceResponse{}, err
	}

	resp := make([]byte, 2048)
	n, err := conn.Read(resp)
	if err != nil {
		return AnnounceResponse{}, err
	}
	if n < _udpMinRespLen {
		return AnnounceResponse{}, fmt.Errorf("%w: announce response too short: %d bytes", ErrTrackerProtocol, n)
	}
	resp = resp[:n]

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action != actionAnnounce || gotTxID != txID {
		return AnnounceResponse{}, fmt.Errorf("%w: announce response mismatch", ErrTrackerProtocol)
	}

	interval := binary.BigEndian.Uint32(resp[8:12])
	// resp[12:16] leechers, resp[16:20] seeders — surfaced via Interval only;
	// the coordinator has no present use for swarm size.

	peersRaw := resp[20:]
	if len(peersRaw)%_udpPeerRecordSz != 0 {
		return AnnounceResponse{}, fmt.Errorf("%w: peers length %d not a multiple of %d",
			ErrTrackerProtocol, len(peersRaw), _udpPeerRecordSz)
	}
	peers, err := parseCompactPeers(peersRaw)
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: %s", ErrTrackerProtocol, err)
	}

	return AnnounceResponse{
		Interval: clampInterval(time.Duration(interval) * time.Second),
		Peers:    peers,
	}, nil
}
