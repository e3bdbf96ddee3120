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

import "github.com/dmoresh/torrentd/saver"

// pieceQueue is the FIFO of pieces not yet broken into a ChunksTask.
type pieceQueue struct {
	tasks []saver.PieceTask
}

func newPieceQueue(tasks []saver.PieceTask) *pieceQueue {
	return &pieceQueue{tasks: append([]saver.PieceTask(nil), tasks...)}
}

func (q *pieceQueue) empty() bool { return len(q.tasks) == 0 }

func (q *pieceQueue) popFront() (saver.PieceTask, bool) {
	if len(q.tasks) == 0 {
		return saver.PieceTask{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *pieceQueue) pushFront(t saver.PieceTask) {
	q.tasks = append([]saver.PieceTask{t}, q.tasks...)
}

// remaining returns every piece still queued, in FIFO order, used for
// resume snapshots.
func (q *pieceQueue) remaining() []saver.PieceTask {
	return append([]saver.PieceTask(nil), q.tasks...)
}

// chunksQueue is the bounded FIFO of ChunksTasks ready for assignment to
// a peer, capped at MaxChunksTasks.
type chunksQueue struct {
	tasks []saver.ChunksTask
	max   int
}

func newChunksQueue(max int) *chunksQueue {
	return &chunksQueue{max: max}
}

func (q *chunksQueue) len() int { return len(q.tasks) }

func (q *chunksQueue) full() bool { return len(q.tasks) >= q.max }

func (q *chunksQueue) pushBack(t saver.ChunksTask) bool {
	if q.full() {
		return false
	}
	q.tasks = append(q.tasks, t)
	return true
}

// pushFront re-queues t at the head, used for failure recovery so a
// recycled task is retried before any newer work.
func (q *chunksQueue) pushFront(t saver.ChunksTask) {
	q.tasks = append([]saver.ChunksTask{t}, q.tasks...)
}

// front returns the head task without removing it. Assignment fairness
// is strict FIFO with skip-don't-reorder semantics: the scheduler tests
// only the head task against each free peer in turn and never searches
// past it for a later match, so a peer lacking the head piece is simply
// skipped for this round rather than served a later task out of order.
// Grounded on original_source/engine/mod.rs's dispatch loop, which pops
// exactly one head task, scans free peers, and pushes it back to the
// front if none match.
func (q *chunksQueue) front() (saver.ChunksTask, bool) {
	if len(q.tasks) == 0 {
		return saver.ChunksTask{}, false
	}
	return q.tasks[0], true
}

// popFront removes and returns the head task, used once a free peer
// has been found to service it.
func (q *chunksQueue) popFront() (saver.ChunksTask, bool) {
	if len(q.tasks) == 0 {
		return saver.ChunksTask{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

// remaining returns every chunk task still queued, in FIFO order, used
// for resume snapshots.
func (q *chunksQueue) remaining() []saver.ChunksTask {
	return append([]saver.ChunksTask(nil), q.tasks...)
}
