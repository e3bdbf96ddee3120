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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/utils/log"
)

// Stats supplies the mutable upload/download/left counters an announce
// needs, read fresh on every announce so long-running torrents report
// accurate progress.
type Stats interface {
	Uploaded() int64
	Downloaded() int64
	Left() int64
}

// Events receives peer discoveries surfaced by the tracker client.
type Events interface {
	PeerAdd(endpoint Endpoint, discovered bool)
}

// Client runs one announce task per tracker URL in metainfo's tracker
// list, merging unique discovered endpoints and tolerating any individual
// tracker failing by simply retrying it on its own schedule while the
// others continue.
type Client struct {
	infoHash core.InfoHash
	peerID   core.PeerID
	port     int
	stats    Stats
	urls     []string

	mu   sync.Mutex
	seen map[Endpoint]bool
}

// New creates a Client that announces to each of urls (typically the
// torrent's primary announce URL plus any announce-list alternates).
func New(infoHash core.InfoHash, peerID core.PeerID, port int, stats Stats, urls []string) *Client {
	return &Client{
		infoHash: infoHash,
		peerID:   peerID,
		port:     port,
		stats:    stats,
		urls:     urls,
		seen:     make(map[Endpoint]bool),
	}
}

// Run launches one perpetual announce task per tracker URL and blocks
// until ctx is done. Each task swallows its own errors (logging them) so
// that one misbehaving tracker never interrupts the others; this mirrors
// the coordinator's own "never let one peer's failure take down the
// download" posture.
func (c *Client) Run(ctx context.Context, events Events) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range c.urls {
		u := u
		g.Go(func() error {
			c.runOne(ctx, u, events)
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) runOne(ctx context.Context, announceURL string, events Events) {
	announcer, err := NewAnnouncer(announceURL)
	if err != nil {
		log.Errorf("tracker: skipping %s: %s", announceURL, err)
		return
	}

	interval := time.Duration(0) // first announce fires immediately
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		resp, err := announcer.Announce(AnnounceRequest{
			InfoHash:   c.infoHash,
			PeerID:     c.peerID,
			Port:       c.port,
			Uploaded:   c.stats.Uploaded(),
			Downloaded: c.stats.Downloaded(),
			Left:       c.stats.Left(),
		})
		if err != nil {
			log.Errorf("tracker: announce to %s failed: %s", announceURL, err)
			continue
		}
		interval = resp.Interval

		for _, peer := range resp.Peers {
			if c.markSeen(peer) {
				events.PeerAdd(peer, true)
			}
		}
	}
}

// markSeen returns true the first time endpoint is observed.
func (c *Client) markSeen(endpoint Endpoint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[endpoint] {
		return false
	}
	c.seen[endpoint] = true
	return true
}
