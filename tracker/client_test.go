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
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/bencode"
	"github.com/dmoresh/torrentd/core"
)

type zeroStats struct{}

func (zeroStats) Uploaded() int64   { return 0 }
func (zeroStats) Downloaded() int64 { return 0 }
func (zeroStats) Left() int64       { return 0 }

type collectingEvents struct {
	mu    sync.Mutex
	peers []Endpoint
}

func (e *collectingEvents) PeerAdd(ep Endpoint, discovered bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.peers = append(e.peers, ep)
}

func (e *collectingEvents) snapshot() []Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Endpoint, len(e.peers))
	copy(out, e.peers)
	return out
}

func trackerServer(t *testing.T, peers []byte) *httptest.Server {
	body := bencode.Encode(bencode.NewDict().
		Set("interval", bencode.Int(60)).
		Set("peers", bencode.Bytes(peers)))
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
}

func TestClientMergesUniqueEndpointsAcrossTrackers(t *testing.T) {
	require := require.New(t)

	shared := compactPeer(10, 0, 0, 1, 6881)
	unique1 := compactPeer(10, 0, 0, 2, 6882)
	unique2 := compactPeer(10, 0, 0, 3, 6883)

	srv1 := trackerServer(t, append(append([]byte{}, shared...), unique1...))
	defer srv1.Close()
	srv2 := trackerServer(t, append(append([]byte{}, shared...), unique2...))
	defer srv2.Close()

	peerID, err := core.RandomPeerID()
	require.NoError(err)

	c := New(core.InfoHash{}, peerID, 6880, zeroStats{}, []string{srv1.URL, srv2.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	events := &collectingEvents{}
	c.Run(ctx, events)

	peers := events.snapshot()
	require.Len(peers, 3)
	require.Contains(peers, Endpoint{IP: "10.0.0.1", Port: 6881})
	require.Contains(peers, Endpoint{IP: "10.0.0.2", Port: 6882})
	require.Contains(peers, Endpoint{IP: "10.0.0.3", Port: 6883})
}

func TestClientToleratesOneTrackerFailing(t *testing.T) {
	require := require.New(t)

	good := compactPeer(10, 0, 0, 9, 6889)
	srv := trackerServer(t, good)
	defer srv.Close()

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	peerID, err := core.RandomPeerID()
	require.NoError(err)

	c := New(core.InfoHash{}, peerID, 6880, zeroStats{}, []string{srv.URL, badSrv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	events := &collectingEvents{}
	c.Run(ctx, events)

	peers := events.snapshot()
	require.Contains(peers, Endpoint{IP: "10.0.0.9", Port: 6889})
}
