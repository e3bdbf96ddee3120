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
	"fmt"
	"io/ioutil"
	"net"
	"net/url"
	"time"

	"github.com/dmoresh/torrentd/bencode"
	"github.com/dmoresh/torrentd/utils/httputil"
)

const _httpTimeout = 5 * time.Second

// HTTPClient announces to a BitTorrent HTTP tracker.
type HTTPClient struct {
	announceURL *url.URL
}

// NewHTTPClient creates an HTTPClient for the given announce URL.
func NewHTTPClient(announceURL *url.URL) *HTTPClient {
	return &HTTPClient{announceURL}
}

// Announce issues a GET announce request and decodes its compact peer list.
func (c *HTTPClient) Announce(req AnnounceRequest) (AnnounceResponse, error) {
	q := url.Values{}
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", fmt.Sprint(req.Port))
	q.Set("uploaded", fmt.Sprint(req.Uploaded))
	q.Set("downloaded", fmt.Sprint(req.Downloaded))
	q.Set("left", fmt.Sprint(req.Left))
	q.Set("compact", "1")

	u := *c.announceURL
	u.RawQuery = q.Encode()

	resp, err := httputil.Get(u.String(), httputil.SendTimeout(_httpTimeout))
	if err != nil {
		if httputil.IsNetworkError(err) {
			return AnnounceResponse{}, ErrTrackerTimeout
		}
		return AnnounceResponse{}, fmt.Errorf("%w: %s", ErrTrackerProtocol, err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: read body: %s", ErrTrackerProtocol, err)
	}

	v, err := bencode.DecodeAll(body)
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: decode: %s", ErrTrackerProtocol, err)
	}

	interval, err := v.Dict("interval").ExpectInt()
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: missing interval: %s", ErrTrackerProtocol, err)
	}

	peersRaw, err := v.Dict("peers").ExpectBytes()
	if err != nil {
		return AnnounceResponse{}, fmt.Errorf("%w: missing peers: %s", ErrTrackerProtocol, err)
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

// parseCompactPeers decodes BEP-23's 6-byte (4-byte IPv4 + 2-byte
// big-endian port) compact peer record format.
func parseCompactPeers(b []byte) ([]Endpoint, error) {
	const recordSize = 6
	if len(b)%recordSize != 0 {
		return nil, fmt.Errorf("compact peers length %d not a multiple of %d", len(b), recordSize)
	}
	n := len(b) / recordSize
	peers := make([]Endpoint, 0, n)
	for i := 0; i < n; i++ {
		rec := b[i*recordSize : (i+1)*recordSize]
		ip := net.IPv4(rec[0], rec[1], rec[2], rec[3]).String()
		port := int(rec[4])<<8 | int(rec[5])
		peers = append(peers, Endpoint{IP: ip, Port: port})
	}
	return peers, nil
}
