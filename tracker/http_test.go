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
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/bencode"
	"github.com/dmoresh/torrentd/core"
)

func compactPeer(a, b, c, d byte, port int) []byte {
	return []byte{a, b, c, d, byte(port >> 8), byte(port)}
}

func TestHTTPClientAnnounce(t *testing.T) {
	require := require.New(t)

	peers := append(compactPeer(10, 0, 0, 1, 6881), compactPeer(10, 0, 0, 2, 6882)...)
	body := bencode.Encode(bencode.NewDict().
		Set("interval", bencode.Int(1800)).
		Set("peers", bencode.Bytes(peers)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("1", r.URL.Query().Get("compact"))
		w.Write(body)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(err)

	c := NewHTTPClient(u)
	infoHash := core.NewInfoHashFromBytes([]byte("some info dict bytes"))
	peerID, err := core.RandomPeerID()
	require.NoError(err)

	resp, err := c.Announce(AnnounceRequest{
		InfoHash: infoHash,
		PeerID:   peerID,
		Port:     6880,
	})
	require.NoError(err)
	require.Equal(minInterval*30, resp.Interval)
	require.Equal([]Endpoint{
		{IP: "10.0.0.1", Port: 6881},
		{IP: "10.0.0.2", Port: 6882},
	}, resp.Peers)
}

func TestHTTPClientAnnounceClampsInterval(t *testing.T) {
	require := require.New(t)

	body := bencode.Encode(bencode.NewDict().
		Set("interval", bencode.Int(5)).
		Set("peers", bencode.Bytes(nil)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(err)

	c := NewHTTPClient(u)
	peerID, _ := core.RandomPeerID()
	resp, err := c.Announce(AnnounceRequest{PeerID: peerID})
	require.NoError(err)
	require.Equal(minInterval, resp.Interval)
}

func TestHTTPClientAnnounceMalformedResponse(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not bencode"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(err)

	c := NewHTTPClient(u)
	peerID, _ := core.RandomPeerID()
	_, err = c.Announce(AnnounceRequest{PeerID: peerID})
	require.Error(err)
	require.ErrorIs(err, ErrTrackerProtocol)
}
