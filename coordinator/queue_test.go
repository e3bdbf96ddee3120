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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/saver"
)

func TestPieceQueueFIFOOrder(t *testing.T) {
	q := newPieceQueue([]saver.PieceTask{
		{PieceIndex: 0},
		{PieceIndex: 1},
		{PieceIndex: 2},
	})

	t0, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, 0, t0.PieceIndex)

	t1, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, 1, t1.PieceIndex)
}

func TestPieceQueuePushFrontGivesPriorityOverFIFO(t *testing.T) {
	q := newPieceQueue([]saver.PieceTask{{PieceIndex: 1}, {PieceIndex: 2}})
	q.pushFront(saver.PieceTask{PieceIndex: 99})

	t0, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, 99, t0.PieceIndex, "re-queued invalid-hash piece must be retried before older work")
}

func TestPieceQueueEmptyPopFails(t *testing.T) {
	q := newPieceQueue(nil)
	assert.True(t, q.empty())
	_, ok := q.popFront()
	assert.False(t, ok)
}

func TestChunksQueueBoundedAtMax(t *testing.T) {
	q := newChunksQueue(2)
	assert.True(t, q.pushBack(saver.ChunksTask{PieceIndex: 0}))
	assert.True(t, q.pushBack(saver.ChunksTask{PieceIndex: 1}))
	assert.True(t, q.full())
	assert.False(t, q.pushBack(saver.ChunksTask{PieceIndex: 2}), "pushBack beyond max must fail, not silently grow")
	assert.Equal(t, 2, q.len())
}

func TestChunksQueueFrontPeeksWithoutRemoving(t *testing.T) {
	q := newChunksQueue(10)
	q.pushBack(saver.ChunksTask{PieceIndex: 0})
	q.pushBack(saver.ChunksTask{PieceIndex: 1})

	task, ok := q.front()
	require.True(t, ok)
	assert.Equal(t, 0, task.PieceIndex, "front must only ever report the head task")
	assert.Equal(t, 2, q.len(), "front must not remove the head task")

	task, ok = q.front()
	require.True(t, ok)
	assert.Equal(t, 0, task.PieceIndex, "repeated front calls must not advance past a task the caller declines to pop")
}

func TestChunksQueuePopFrontRemovesOnlyHead(t *testing.T) {
	q := newChunksQueue(10)
	q.pushBack(saver.ChunksTask{PieceIndex: 0})
	q.pushBack(saver.ChunksTask{PieceIndex: 1})

	task, ok := q.popFront()
	require.True(t, ok)
	assert.Equal(t, 0, task.PieceIndex)

	remaining := q.remaining()
	require.Len(t, remaining, 1)
	assert.Equal(t, 1, remaining[0].PieceIndex)
}

func TestChunksQueueFrontAndPopFrontEmptyFail(t *testing.T) {
	q := newChunksQueue(10)
	_, ok := q.front()
	assert.False(t, ok)
	_, ok = q.popFront()
	assert.False(t, ok)
}

func TestChunksQueuePushFrontPriority(t *testing.T) {
	q := newChunksQueue(10)
	q.pushBack(saver.ChunksTask{PieceIndex: 1})
	q.pushFront(saver.ChunksTask{PieceIndex: 0})

	remaining := q.remaining()
	require.Len(t, remaining, 2)
	assert.Equal(t, 0, remaining[0].PieceIndex, "a failed/recycled task must be retried before queued work")
}

func TestChunkQueueConservationInvariant(t *testing.T) {
	// Every chunk of a piece must be accounted for exactly once across
	// pieceQueue's undecomposed remainder and chunksQueue's decomposed batches.
	const totalChunks = 16
	pieces := newPieceQueue([]saver.PieceTask{
		{PieceIndex: 0, TotalChunks: totalChunks, ChunksDone: 0},
	})
	chunks := newChunksQueue(100)

	pt, ok := pieces.popFront()
	require.True(t, ok)
	chunks.pushBack(saver.ChunksTask{PieceIndex: pt.PieceIndex, Lo: pt.ChunksDone, Hi: pt.TotalChunks})

	var accounted int
	for _, ct := range chunks.remaining() {
		accounted += ct.Hi - ct.Lo
	}
	assert.Equal(t, totalChunks, accounted)
}
