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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapReadyRequiresEveryChunk(t *testing.T) {
	b := NewBitmap(5)
	assert.False(t, b.Ready())

	for c := 0; c < 4; c++ {
		b.Add(c)
		assert.False(t, b.Ready(), "should not be ready until all 5 chunks are added")
	}
	b.Add(4)
	assert.True(t, b.Ready())
}

func TestBitmapAddIsIdempotent(t *testing.T) {
	b := NewBitmap(3)
	b.Add(1)
	assert.Equal(t, 1, b.Count())
	b.Add(1)
	assert.Equal(t, 1, b.Count(), "re-adding the same chunk must not double count")
}

func TestBitmapClearResetsToEmpty(t *testing.T) {
	b := NewBitmap(2)
	b.Add(0)
	b.Add(1)
	require.True(t, b.Ready())

	b.Clear()
	assert.False(t, b.Ready())
	assert.Equal(t, 0, b.Count())
	assert.False(t, b.Has(0))
	assert.False(t, b.Has(1))
}

func TestBitmapSeedFirstN(t *testing.T) {
	b := NewBitmap(8)
	b.SeedFirstN(3)
	assert.True(t, b.Has(0))
	assert.True(t, b.Has(1))
	assert.True(t, b.Has(2))
	assert.False(t, b.Has(3))
	assert.Equal(t, 3, b.Count())

	// Seeding beyond total must not panic or overcount.
	b2 := NewBitmap(4)
	b2.SeedFirstN(10)
	assert.Equal(t, 4, b2.Count())
	assert.True(t, b2.Ready())
}

func TestBitmapConcurrentAddIsSafe(t *testing.T) {
	b := NewBitmap(100)
	var wg sync.WaitGroup
	for c := 0; c < 100; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			b.Add(c)
		}(c)
	}
	wg.Wait()
	assert.True(t, b.Ready())
	assert.Equal(t, 100, b.Count())
}
