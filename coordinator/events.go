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
	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/saver"
	"github.com/dmoresh/torrentd/tracker"
)

// Status is a torrent's lifecycle state, as persisted by a session-store
// resume record.
type Status int

// Lifecycle states.
const (
	StatusDownloading Status = iota
	StatusPaused
	StatusStopped
	StatusFinished
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDownloading:
		return "downloading"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Events receives every outward-facing notification a Coordinator
// produces, for a CLI or other UI layer to render.
type Events interface {
	PieceDone(piece int)
	TorrentFinished()
	TorrentErr(err error)
	PeerDiscovered(endpoint tracker.Endpoint)
	PeerDisconnect(endpoint tracker.Endpoint)
}

// Snapshot is the resumable state of a Coordinator at a point in time,
// handed to a session-store record by the caller (typically cmd/torrentd)
// after Pause or Stop returns.
type Snapshot struct {
	InfoHash   core.InfoHash
	SavePath   string
	PieceTasks []saver.PieceTask
	ChunkTasks []saver.ChunksTask
	PiecesDone int
	Status     Status
}

// Internal event-loop messages, carried on Coordinator.eventCh. None of
// these are exported: callers interact with a Coordinator only through
// its public methods and the Events interface above.

type peerAddEvent struct {
	endpoint   tracker.Endpoint
	discovered bool
}

type peerConnectedEvent struct {
	endpoint tracker.Endpoint
	session  sessionHandle
}

type peerFailedEvent struct {
	endpoint tracker.Endpoint
}

type chunksDoneEvent struct {
	slot int
}

type chunksFailEvent struct {
	slot int
	task saver.ChunksTask
	err  error
}

type invalidHashEvent struct {
	piece int
}

type pieceDoneEvent struct {
	piece int
}

type finishedEvent struct{}

type storageErrEvent struct {
	err error
}

// Control messages sent on Coordinator.controlCh by Pause/Stop/ForceOff.
type controlMsg struct {
	status Status
	ack    chan struct{}
}
