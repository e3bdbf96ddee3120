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
	"context"
	"fmt"
	"sync"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/metainfo"
	"github.com/dmoresh/torrentd/peer"
	"github.com/dmoresh/torrentd/saver"
	"github.com/dmoresh/torrentd/tracker"
	"github.com/dmoresh/torrentd/utils/log"
)

type slotState int

const (
	slotGone slotState = iota
	slotConnecting
	slotFree
	slotBusy
)

type peerSlot struct {
	endpoint tracker.Endpoint
	session  sessionHandle
	state    slotState
	cancel   context.CancelFunc
}

// Coordinator schedules PieceTask/ChunksTask work across the peers
// discovered for one torrent: it decomposes queued pieces into chunk
// batches, assigns them fairly (strict FIFO, skip-don't-reorder) to
// whichever free peer's bitfield covers the batch's piece, and recovers
// from both peer and storage failures without losing queued work.
type Coordinator struct {
	info     *metainfo.Info
	savePath string
	localID  core.PeerID
	port     int
	config   Config
	clk      clock.Clock
	stats    tally.Scope
	logger   *zap.SugaredLogger

	sv      *saver.Saver
	connect connectFunc

	mu     sync.Mutex
	status Status

	pieces *pieceQueue
	chunks *chunksQueue
	slots  []*peerSlot

	eventCh   chan interface{}
	controlCh chan controlMsg

	uploaded atomic.Int64
}

// maxIndex16 bounds NumPieces and the per-piece chunk count to what a
// 16-bit index can hold.
const maxIndex16 = 65535

// ErrTooManyPieces is returned by New when info declares more pieces,
// or a piece with more chunks, than fit in a 16-bit index.
var ErrTooManyPieces = fmt.Errorf("coordinator: torrent exceeds the %d piece/chunk index bound", maxIndex16)

// New builds a Coordinator for info, preallocating its save layout via
// saver.New. The piece queue starts empty: a from-scratch start fills it
// with Seed(ResumeScan()), and a resume from a session-store record
// fills both queues with RestoreFromRecord.
func New(
	info *metainfo.Info,
	savePath string,
	localID core.PeerID,
	port int,
	config Config,
	clk clock.Clock,
	stats tally.Scope,
	logger *zap.SugaredLogger,
) (*Coordinator, error) {
	config = config.applyDefaults()
	stats = stats.Tagged(map[string]string{"module": "coordinator"})

	if info.NumPieces() > maxIndex16 || info.MaxPieceLength()/saver.ChunkSize > maxIndex16 {
		return nil, ErrTooManyPieces
	}

	sv, err := saver.New(info, savePath, saver.Config{}, stats)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		info:      info,
		savePath:  savePath,
		localID:   localID,
		port:      port,
		config:    config,
		clk:       clk,
		stats:     stats,
		logger:    logger,
		sv:        sv,
		status:    StatusDownloading,
		pieces:    newPieceQueue(nil),
		chunks:    newChunksQueue(config.MaxChunksTasks),
		eventCh:   make(chan interface{}, config.EventChannelSize),
		controlCh: make(chan controlMsg, 1),
	}
	c.connect = dialSession(localID, info.InfoHash(), info.NumPieces(),
		peer.Config{}, config.ConnectTimeout, c.sv.HasPiece, c.serve, clk, stats, logger)

	return c, nil
}

// Seed populates the piece queue, typically either every piece the
// local saver's from-scratch ResumeScan did not already mark done, or
// the exact remaining-piece-tasks list restored from a session-store
// record.
func (c *Coordinator) Seed(tasks []saver.PieceTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pieces = newPieceQueue(tasks)
}

// ResumeScan performs a from-scratch resume scan via the saver and
// returns the remaining piece tasks for pieces not already verified on
// disk. Callers starting a torrent for the first time (no session-store
// record) pass the result to Seed.
func (c *Coordinator) ResumeScan() []saver.PieceTask {
	done := c.sv.ResumeScan()
	var tasks []saver.PieceTask
	for p := 0; p < c.info.NumPieces(); p++ {
		if done[p] {
			continue
		}
		tasks = append(tasks, saver.PieceTask{
			PieceIndex:  p,
			TotalChunks: saver.TotalChunks(c.info, p),
		})
	}
	return tasks
}

// RestoreFromRecord resumes from a session-store record: it seeds the
// saver's per-piece bitmaps from pieceTasks' ChunksDone counts (without
// re-reading or re-hashing), then restores both queues to their exact
// persisted contents.
func (c *Coordinator) RestoreFromRecord(pieceTasks []saver.PieceTask, chunkTasks []saver.ChunksTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range pieceTasks {
		c.sv.RestorePieceTask(t.PieceIndex, t.ChunksDone)
	}
	c.pieces = newPieceQueue(pieceTasks)
	c.chunks = newChunksQueue(c.config.MaxChunksTasks)
	for _, t := range chunkTasks {
		c.chunks.pushBack(t)
	}
}

// Stats returns the Downloaded/Left/Uploaded view the tracker client
// needs for its announce requests.
func (c *Coordinator) Stats() tracker.Stats { return coordinatorStats{c} }

// PeerAdd implements tracker.Events: a newly discovered (or re-added
// after a recoverable failure) endpoint is queued for an async connect
// attempt.
func (c *Coordinator) PeerAdd(endpoint tracker.Endpoint, discovered bool) {
	select {
	case c.eventCh <- peerAddEvent{endpoint: endpoint, discovered: discovered}:
	default:
		log.Warnf("coordinator: event channel full, dropping peer add for %s", endpoint)
	}
}

func (c *Coordinator) serve(piece, begin, length int) ([]byte, bool) {
	if !c.sv.HasPiece(piece) {
		return nil, false
	}
	block, err := c.sv.Read(piece, begin, length)
	if err != nil {
		return nil, false
	}
	c.uploaded.Add(int64(len(block)))
	return block, true
}

// Run drives the saver and the scheduling loop until ctx is cancelled,
// the torrent finishes (after the TorrentFinished event), or a control
// message (Pause/Stop/ForceOff) requests an exit. It
// returns the fatal storage error, if any, that caused an early exit.
func (c *Coordinator) Run(ctx context.Context, events Events) error {
	saverCtx, cancelSaver := context.WithCancel(ctx)
	defer cancelSaver()

	saverDone := make(chan error, 1)
	go func() { saverDone <- c.sv.Run(saverCtx, &saverAdapter{c: c}) }()

	for {
		c.dispatch(events)

		select {
		case <-ctx.Done():
			cancelSaver()
			<-saverDone
			return ctx.Err()

		case err := <-saverDone:
			return err

		case ev := <-c.eventCh:
			c.handleEvent(ev, events)
			if _, finished := ev.(finishedEvent); finished {
				cancelSaver()
				<-saverDone
				return nil
			}

		case ctl := <-c.controlCh:
			c.abortInFlight()
			c.mu.Lock()
			c.status = ctl.status
			c.mu.Unlock()
			cancelSaver()
			<-saverDone
			close(ctl.ack)
			return nil
		}
	}
}

// dispatch decomposes queued pieces into chunk batches and assigns as
// many as currently possible to free peers.
func (c *Coordinator) dispatch(events Events) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.chunks.full() {
		pt, ok := c.pieces.popFront()
		if !ok {
			break
		}
		c.chunks.pushBack(saver.ChunksTask{
			PieceIndex:        pt.PieceIndex,
			Lo:                pt.ChunksDone,
			Hi:                pt.TotalChunks,
			IncludesLastChunk: true,
		})
	}

	// Strict FIFO, skip-don't-reorder: fix the head task and scan free
	// peers for one that owns it. A peer lacking the head piece is
	// skipped this round, not given a later task; if no free peer owns
	// the head piece at all, the loop stops and waits rather than
	// searching further into the queue.
	for {
		task, ok := c.chunks.front()
		if !ok {
			return
		}
		i, ok := c.firstFreePeerFor(task)
		if !ok {
			return
		}
		c.chunks.popFront()
		c.startDownload(i, task)
	}
}

// firstFreePeerFor returns the slot index of the first Free peer whose
// bitfield indicates ownership of task's piece. Caller holds c.mu.
func (c *Coordinator) firstFreePeerFor(task saver.ChunksTask) (int, bool) {
	for i, s := range c.slots {
		if s.state == slotFree && s.session.HasPiece(task.PieceIndex) {
			return i, true
		}
	}
	return 0, false
}

// startDownload marks slot i busy and launches the download goroutine
// for task, reporting its outcome back onto the event loop. Caller
// holds c.mu.
func (c *Coordinator) startDownload(i int, task saver.ChunksTask) {
	slot := c.slots[i]
	ctx, cancel := context.WithCancel(context.Background())
	slot.state = slotBusy
	slot.cancel = cancel

	specs := make([]peer.ChunkSpec, 0, task.Hi-task.Lo)
	for ci := task.Lo; ci < task.Hi; ci++ {
		specs = append(specs, peer.ChunkSpec{
			Begin:  ci * saver.ChunkSize,
			Length: int(saver.ChunkLength(c.info, task.PieceIndex, ci)),
		})
	}
	session := slot.session
	sv := c.sv
	piece := task.PieceIndex

	go func() {
		if err := session.EnsureUnchoked(); err != nil {
			c.eventCh <- chunksFailEvent{slot: i, task: task, err: err}
			return
		}
		err := session.Download(ctx, piece, specs, func(begin int, block []byte) {
			sv.Submit(saver.DataPiece{Piece: piece, Begin: begin, Buf: block})
		})
		if err != nil {
			c.eventCh <- chunksFailEvent{slot: i, task: task, err: err}
			return
		}
		c.eventCh <- chunksDoneEvent{slot: i}
	}()
}

// handleEvent applies one internal event-loop message to the
// coordinator's state.
func (c *Coordinator) handleEvent(ev interface{}, events Events) {
	switch e := ev.(type) {
	case peerAddEvent:
		events.PeerDiscovered(e.endpoint)
		go c.tryConnect(e.endpoint)

	case peerConnectedEvent:
		c.mu.Lock()
		c.placeSlot(e.endpoint, e.session)
		c.mu.Unlock()

	case peerFailedEvent:
		events.PeerDisconnect(e.endpoint)

	case chunksDoneEvent:
		c.mu.Lock()
		if e.slot < len(c.slots) {
			c.slots[e.slot].state = slotFree
		}
		c.mu.Unlock()

	case chunksFailEvent:
		c.onChunksFail(e, events)

	case invalidHashEvent:
		c.mu.Lock()
		c.pieces.pushFront(saver.PieceTask{
			PieceIndex:  e.piece,
			TotalChunks: saver.TotalChunks(c.info, e.piece),
			ChunksDone:  0,
		})
		c.mu.Unlock()

	case pieceDoneEvent:
		events.PieceDone(e.piece)

	case finishedEvent:
		c.mu.Lock()
		c.status = StatusFinished
		c.mu.Unlock()
		events.TorrentFinished()

	case storageErrEvent:
		c.mu.Lock()
		c.status = StatusError
		c.mu.Unlock()
		events.TorrentErr(e.err)
	}
}

// tryConnect dials endpoint off the event loop goroutine and reports
// back whichever of peerConnectedEvent/peerFailedEvent applies.
func (c *Coordinator) tryConnect(endpoint tracker.Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()

	sess, err := c.connect(ctx, endpoint)
	if err != nil {
		c.eventCh <- peerFailedEvent{endpoint: endpoint}
		return
	}
	c.eventCh <- peerConnectedEvent{endpoint: endpoint, session: sess}
}

// placeSlot installs session into the first gone slot, or appends a new
// one. Caller holds c.mu.
func (c *Coordinator) placeSlot(endpoint tracker.Endpoint, session sessionHandle) {
	for _, s := range c.slots {
		if s.state == slotGone {
			s.endpoint = endpoint
			s.session = session
			s.state = slotFree
			s.cancel = nil
			return
		}
	}
	c.slots = append(c.slots, &peerSlot{endpoint: endpoint, session: session, state: slotFree})
}

// onChunksFail recycles a failed ChunksTask to the queue head and
// drops or re-adds the peer depending on whether the failure looks
// transient.
func (c *Coordinator) onChunksFail(e chunksFailEvent, events Events) {
	c.mu.Lock()
	c.chunks.pushFront(e.task)
	var endpoint tracker.Endpoint
	if e.slot < len(c.slots) {
		slot := c.slots[e.slot]
		endpoint = slot.endpoint
		if slot.session != nil {
			slot.session.Close()
		}
		slot.state = slotGone
		slot.session = nil
	}
	c.mu.Unlock()

	events.PeerDisconnect(endpoint)

	if e.err != nil && peer.IsReconnectable(e.err) {
		c.PeerAdd(endpoint, false)
	}
}

// abortInFlight cancels every busy slot's download and waits, up to
// Config.AbortGrace, for each to report its outcome so in-flight
// ChunksTasks are recovered into the queue before a Pause/Stop
// snapshot is taken.
func (c *Coordinator) abortInFlight() {
	c.mu.Lock()
	pending := 0
	for _, s := range c.slots {
		if s.state == slotBusy {
			if s.cancel != nil {
				s.cancel()
			}
			pending++
		}
	}
	c.mu.Unlock()

	if pending == 0 {
		return
	}

	deadline := c.clk.After(c.config.AbortGrace)
	for pending > 0 {
		select {
		case ev := <-c.eventCh:
			switch e := ev.(type) {
			case chunksDoneEvent:
				c.mu.Lock()
				if e.slot < len(c.slots) {
					c.slots[e.slot].state = slotFree
				}
				c.mu.Unlock()
				pending--
			case chunksFailEvent:
				c.onChunksFail(e, noopEvents{})
				pending--
			}
		case <-deadline:
			return
		}
	}
}

// noopEvents discards every notification; used only while draining
// in-flight work during an abort, whose outcomes are folded into the
// Snapshot rather than surfaced to the UI.
type noopEvents struct{}

func (noopEvents) PieceDone(int)                       {}
func (noopEvents) TorrentFinished()                    {}
func (noopEvents) TorrentErr(error)                    {}
func (noopEvents) PeerDiscovered(tracker.Endpoint)      {}
func (noopEvents) PeerDisconnect(tracker.Endpoint)      {}

// Pause sends the control request and blocks until Run has unwound
// in-flight work and exited.
func (c *Coordinator) Pause() { c.sendControl(StatusPaused) }

// Stop sends the control request and blocks until Run has unwound
// in-flight work and exited.
func (c *Coordinator) Stop() { c.sendControl(StatusStopped) }

// ForceOff immediately tears down every peer slot without waiting for
// in-flight downloads to drain cleanly; resume state is still
// snapshotted afterward, but may re-download whatever chunks were
// in-flight at the moment of the call.
func (c *Coordinator) ForceOff() {
	c.mu.Lock()
	for _, s := range c.slots {
		if s.cancel != nil {
			s.cancel()
		}
		if s.session != nil {
			s.session.Close()
		}
	}
	c.config.AbortGrace = 0
	c.mu.Unlock()
	c.sendControl(StatusStopped)
}

func (c *Coordinator) sendControl(status Status) {
	ack := make(chan struct{})
	c.controlCh <- controlMsg{status: status, ack: ack}
	<-ack
}

// Snapshot captures the coordinator's current resumable state: the
// caller (cmd/torrentd) persists it via sessionstore after Pause, Stop,
// or ForceOff returns.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		InfoHash:   c.info.InfoHash(),
		SavePath:   c.savePath,
		PieceTasks: c.pieces.remaining(),
		ChunkTasks: c.chunks.remaining(),
		PiecesDone: c.sv.PiecesDone(),
		Status:     c.status,
	}
}

// saverAdapter forwards the Saver's outcomes into the coordinator's own
// event loop so recycling (invalid hash) and completion accounting stay
// single-threaded inside Run.
type saverAdapter struct{ c *Coordinator }

func (a *saverAdapter) PieceDone(piece int)  { a.c.eventCh <- pieceDoneEvent{piece: piece} }
func (a *saverAdapter) InvalidHash(piece int) { a.c.eventCh <- invalidHashEvent{piece: piece} }
func (a *saverAdapter) Finished()            { a.c.eventCh <- finishedEvent{} }
func (a *saverAdapter) Storage(err error)    { a.c.eventCh <- storageErrEvent{err: err} }

// coordinatorStats adapts a Coordinator to tracker.Stats.
type coordinatorStats struct{ c *Coordinator }

func (s coordinatorStats) Uploaded() int64 { return s.c.uploaded.Load() }

func (s coordinatorStats) Downloaded() int64 {
	return int64(s.c.sv.PiecesDone()) * s.c.info.MaxPieceLength()
}

func (s coordinatorStats) Left() int64 {
	remaining := s.c.info.NumPieces() - s.c.sv.PiecesDone()
	if remaining < 0 {
		remaining = 0
	}
	return int64(remaining) * s.c.info.MaxPieceLength()
}
