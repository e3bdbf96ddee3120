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
package saver

import (
	"sync"

	"github.com/willf/bitset"
)

// Bitmap tracks which chunks of a single piece have been persisted to
// disk. It is sized exactly to the piece's total chunk count, so unlike
// a raw byte-oriented bitfield it never needs a separate "valid bits in
// the final cell" mask: willf/bitset is itself bit-exact, not
// byte-cell-exact, so Count() == total is the completion test with no
// trailing-bits special case.
type Bitmap struct {
	mu    sync.Mutex
	bits  *bitset.BitSet
	total uint
}

// NewBitmap creates an empty Bitmap for a piece with the given total
// chunk count.
func NewBitmap(total int) *Bitmap {
	return &Bitmap{bits: bitset.New(uint(total)), total: uint(total)}
}

// Has reports whether chunk c has been persisted.
func (b *Bitmap) Has(c int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits.Test(uint(c))
}

// Add marks chunk c persisted. Idempotent: adding an already-set chunk
// is a no-op.
func (b *Bitmap) Add(c int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.Set(uint(c))
}

// SeedFirstN marks the first n chunks present without touching the
// rest, used to restore a Bitmap from a session-store record's
// chunks_done count without re-reading or re-hashing.
func (b *Bitmap) SeedFirstN(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := 0; c < n && uint(c) < b.total; c++ {
		b.bits.Set(uint(c))
	}
}

// Ready reports whether every chunk 0..total has been persisted.
func (b *Bitmap) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits.Count() == b.total
}

// Clear resets the bitmap to empty, used when a piece fails hash
// verification and must be re-downloaded.
func (b *Bitmap) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.ClearAll()
}

// Count returns the number of chunks currently marked present.
func (b *Bitmap) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.bits.Count())
}
