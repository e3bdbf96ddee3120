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
package peer

import (
	"sync"

	"github.com/willf/bitset"
)

// Bitfield tracks which pieces a remote peer is known to have. Before any
// bitfield/have message has arrived, HasPiece is optimistic: it reports
// true for every index, so a freshly connected peer is tried rather than
// starved on first contact. Once a `bitfield` message arrives, tracking
// becomes exact.
type Bitfield struct {
	mu       sync.RWMutex
	bits     *bitset.BitSet
	received bool
}

// NewBitfield creates an empty, optimistic Bitfield.
func NewBitfield() *Bitfield {
	return &Bitfield{bits: bitset.New(0)}
}

// ReplaceFromWire replaces the bitfield from a BEP-3 `bitfield` message
// payload: a byte string, high bit of byte 0 representing piece 0.
func (b *Bitfield) ReplaceFromWire(payload []byte, numPieces int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bs := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		byteIdx := i / 8
		if byteIdx >= len(payload) {
			break
		}
		offset := uint(i % 8)
		if payload[byteIdx]>>(7-offset)&1 != 0 {
			bs.Set(uint(i))
		}
	}
	b.bits = bs
	b.received = true
}

// SetPiece marks piece i present, per an inbound `have` message. Growing
// the underlying set if necessary.
func (b *Bitfield) SetPiece(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.Set(uint(i))
	b.received = true
}

// HasPiece reports whether the peer is known to have piece i. Returns
// true unconditionally until the first bitfield/have arrives.
func (b *Bitfield) HasPiece(i int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.received {
		return true
	}
	return b.bits.Test(uint(i))
}

// ToWireBytes encodes a local Bitfield of numPieces bits into the BEP-3
// `bitfield` message payload format (high bit of byte 0 is piece 0).
func ToWireBytes(have func(i int) bool, numPieces int) []byte {
	payload := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		if !have(i) {
			continue
		}
		payload[i/8] |= 1 << uint(7-i%8)
	}
	return payload
}
