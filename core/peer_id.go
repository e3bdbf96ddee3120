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
package core

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
)

// PeerID is the 20-byte value a client presents in every handshake and
// tracker announce, per BEP-3.
type PeerID [20]byte

// clientIDPrefix is the Azureus-style client identification convention
// from BEP-20: "-" + two-letter client code + four-digit version + "-",
// followed by random bytes. Unlike Kraken's origin-mesh peer ids (pure
// random or address hashes, meaningful only to other Kraken nodes), a
// peer id handed to a public swarm is conventionally self-identifying
// so other clients and trackers can recognize it in logs and stats.
const clientIDPrefix = "-TD0001-"

// ErrInvalidPeerIDLength is returned when a hex-encoded peer id string
// does not decode to exactly 20 bytes.
var ErrInvalidPeerIDLength = errors.New("peer id has invalid length")

// NewPeerID parses a PeerID from its hexadecimal encoding.
func NewPeerID(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, err
	}
	if len(b) != len(PeerID{}) {
		return PeerID{}, ErrInvalidPeerIDLength
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

// String encodes the PeerID in hexadecimal notation.
func (p PeerID) String() string { return hex.EncodeToString(p[:]) }

// LessThan orders p before o by raw byte value, used to give
// PeersByPeerID a stable sort.
func (p PeerID) LessThan(o PeerID) bool { return bytes.Compare(p[:], o[:]) == -1 }

// RandomPeerID generates a peer id carrying clientIDPrefix followed by
// random bytes, the convention BEP-20 recommends so the id is both
// collision-resistant across a session and recognizable as torrentd's.
func RandomPeerID() (PeerID, error) {
	var p PeerID
	copy(p[:], clientIDPrefix)
	if _, err := rand.Read(p[len(clientIDPrefix):]); err != nil {
		return PeerID{}, err
	}
	return p, nil
}

// HashedPeerID derives a PeerID deterministically from s (typically an
// "ip:port" address), so the same endpoint always announces the same
// id across restarts.
func HashedPeerID(s string) (PeerID, error) {
	if s == "" {
		return PeerID{}, errors.New("cannot generate peer id from empty string")
	}
	h := sha1.New()
	io.WriteString(h, s)
	var p PeerID
	copy(p[:], h.Sum(nil))
	return p, nil
}

// PeerIDFactory selects how a local PeerID is generated at startup.
type PeerIDFactory string

// RandomPeerIDFactory generates a fresh random peer id every run,
// suitable for a typical single-user torrentd invocation.
const RandomPeerIDFactory PeerIDFactory = "random"

// AddrHashPeerIDFactory derives the peer id from the local "ip:port"
// address, so a client identifies itself consistently across restarts
// without persisting anything — useful for a seed box that always
// advertises the same endpoint.
const AddrHashPeerIDFactory PeerIDFactory = "addr_hash"

// GeneratePeerID builds the PeerID ip/port should announce under,
// per f's policy.
func (f PeerIDFactory) GeneratePeerID(ip string, port int) (PeerID, error) {
	switch f {
	case RandomPeerIDFactory:
		return RandomPeerID()
	case AddrHashPeerIDFactory:
		return HashedPeerID(fmt.Sprintf("%s:%d", ip, port))
	default:
		return PeerID{}, fmt.Errorf("invalid peer id factory: %q", string(f))
	}
}
