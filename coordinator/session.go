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
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/peer"
	"github.com/dmoresh/torrentd/tracker"
)

// sessionHandle is the subset of *peer.Session the coordinator drives.
// Abstracted so tests can substitute a fake peer without opening real
// sockets.
type sessionHandle interface {
	PeerID() core.PeerID
	HasPiece(i int) bool
	EnsureUnchoked() error
	Download(ctx context.Context, piece int, specs []peer.ChunkSpec, out func(begin int, block []byte)) error
	Close()
}

// connectFunc dials a peer and brings up the BEP-3 session. The
// production implementation is dialSession below; tests inject a fake.
type connectFunc func(ctx context.Context, endpoint tracker.Endpoint) (sessionHandle, error)

// dialSession is the real connectFunc: it dials, completes the
// handshake, and starts a Session that advertises ownHas as our
// bitfield and answers inbound requests via serve.
func dialSession(
	localPeerID core.PeerID,
	infoHash core.InfoHash,
	numPieces int,
	connConfig peer.Config,
	connectTimeout time.Duration,
	ownHas func(i int) bool,
	serve peer.ServeFunc,
	clk clock.Clock,
	stats tally.Scope,
	logger *zap.SugaredLogger,
) connectFunc {
	return func(ctx context.Context, endpoint tracker.Endpoint) (sessionHandle, error) {
		addr := fmt.Sprintf("%s:%d", endpoint.IP, endpoint.Port)

		deadline := connectTimeout
		if dl, ok := ctx.Deadline(); ok {
			if remaining := time.Until(dl); remaining < deadline {
				deadline = remaining
			}
		}

		conn, err := peer.Dial(addr, connConfig, stats, clk, localPeerID, infoHash, deadline, connCloseNoop{}, logger)
		if err != nil {
			return nil, err
		}
		sess := peer.NewSession(conn, numPieces, ownHas, serve, clk, stats, logger)
		sess.Start()
		return sess, nil
	}
}

// connCloseNoop satisfies peer.Events without taking any action: the
// coordinator learns about a closed connection from Download/EnsureUnchoked
// returning an error, not from a side-channel callback.
type connCloseNoop struct{}

func (connCloseNoop) ConnClosed(*peer.Conn) {}
