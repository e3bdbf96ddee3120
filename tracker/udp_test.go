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
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/core"
)

// fakeUDPTracker serves exactly one connect/announce round trip, then exits.
func fakeUDPTracker(t *testing.T, peers []byte) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 2048)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		txID := binary.BigEndian.Uint32(buf[12:16])
		connResp := make([]byte, 16)
		binary.BigEndian.PutUint32(connResp[0:4], actionConnect)
		binary.BigEndian.PutUint32(connResp[4:8], txID)
		binary.BigEndian.PutUint64(connResp[8:16], 0xdeadbeef)
		conn.WriteToUDP(connResp, addr)

		n, addr, err = conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_ = n
		announceTxID := binary.BigEndian.Uint32(buf[12:16])
		resp := make([]byte, 20+len(peers))
		binary.BigEndian.PutUint32(resp[0:4], actionAnnounce)
		binary.BigEndian.PutUint32(resp[4:8], announceTxID)
		binary.BigEndian.PutUint32(resp[8:12], 1800)  // interval
		binary.BigEndian.PutUint32(resp[12:16], 2)    // leechers
		binary.BigEndian.PutUint32(resp[16:20], 3)    // seeders
		copy(resp[20:], peers)
		conn.WriteToUDP(resp, addr)
	}()

	return conn
}

func TestUDPClientAnnounce(t *testing.T) {
	require := require.New(t)

	peers := append(compactPeer(10, 0, 0, 1, 6881), compactPeer(10, 0, 0, 2, 6882)...)
	server := fakeUDPTracker(t, peers)
	defer server.Close()

	u, err := url.Parse("udp://" + server.LocalAddr().String())
	require.NoError(err)

	c := NewUDPClient(u)
	peerID, err := core.RandomPeerID()
	require.NoError(err)

	resp, err := c.Announce(AnnounceRequest{PeerID: peerID, Port: 6880})
	require.NoError(err)
	require.Equal(minInterval*30, resp.Interval)
	require.Equal([]Endpoint{
		{IP: "10.0.0.1", Port: 6881},
		{IP: "10.0.0.2", Port: 6882},
	}, resp.Peers)
}

func TestUDPClientAnnounceRetriesOnTimeout(t *testing.T) {
	require := require.New(t)

	// No server listening at all: dial succeeds (UDP is connectionless)
	// but every read will time out, forcing the retry loop to run and
	// eventually give up.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(err)
	addr := conn.LocalAddr().String()
	conn.Close() // nothing is listening on addr anymore

	u, err := url.Parse("udp://" + addr)
	require.NoError(err)

	c := NewUDPClient(u)
	peerID, err := core.RandomPeerID()
	require.NoError(err)

	_, err = c.Announce(AnnounceRequest{PeerID: peerID, Port: 6880})
	require.Error(err)
	require.ErrorIs(err, ErrTrackerTimeout)
}
