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

// Package tracker implements the HTTP and UDP (BEP-15) tracker announce
// protocols and fans a torrent's tracker list out across both transports,
// merging the peer endpoints they return.
package tracker

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmoresh/torrentd/core"
)

// Endpoint identifies a peer by address, as surfaced by a tracker.
type Endpoint struct {
	IP   string
	Port int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// AnnounceRequest carries the fields common to the HTTP and UDP announce
// protocols.
type AnnounceRequest struct {
	InfoHash   core.InfoHash
	PeerID     core.PeerID
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
}

// AnnounceResponse is the result of a single tracker's announce.
type AnnounceResponse struct {
	Interval time.Duration
	Peers    []Endpoint
}

// ErrTrackerTimeout is returned when a tracker does not respond within its
// transport's timeout.
var ErrTrackerTimeout = errors.New("tracker: timed out")

// ErrTrackerProtocol is returned when a tracker's response cannot be
// decoded per its transport's wire format.
var ErrTrackerProtocol = errors.New("tracker: malformed response")

// Announcer is implemented by both the HTTP and UDP tracker clients.
type Announcer interface {
	Announce(req AnnounceRequest) (AnnounceResponse, error)
}

// minInterval and maxInterval bound the interval a tracker may request
// between announces. Per spec, trackers are not consistently well-behaved
// about this value, so it is clamped rather than trusted outright.
const (
	minInterval = 60 * time.Second
	maxInterval = 30 * time.Minute
)

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}

// NewAnnouncer builds the Announcer appropriate for rawurl's scheme.
func NewAnnouncer(rawurl string) (Announcer, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("tracker: invalid announce url %q: %s", rawurl, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPClient(u), nil
	case "udp", "udp4", "udp6":
		return NewUDPClient(u), nil
	default:
		return nil, fmt.Errorf("tracker: unsupported scheme %q", u.Scheme)
	}
}
