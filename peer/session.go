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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/dmoresh/torrentd/core"
)

// State is the connection state of a Session: not-connected (before
// Dial completes) -> choked -> unchoked, with any inbound choke
// returning it to choked.
type State int

const (
	StateChoked State = iota
	StateUnchoked
)

// ErrUnchokeFailed is returned when three consecutive escalating
// unchoke waits all time out.
var ErrUnchokeFailed = errors.New("peer: unchoke failed after 3 attempts")

// unchokeTimeouts is the escalating 1s/4s/7s wait schedule, at most 3
// attempts.
var unchokeTimeouts = []time.Duration{1 * time.Second, 4 * time.Second, 7 * time.Second}

// ServeFunc answers an inbound `request(piece, begin, length)` against
// whatever the local saver currently holds. ok is false if the range is
// not yet available; the caller silently drops the request in that
// case.
type ServeFunc func(piece, begin, length int) (block []byte, ok bool)

// Block is one delivered `piece` message payload, handed to whichever
// Download call is awaiting it.
type Block struct {
	Piece int
	Begin int
	Data  []byte
}

// Session drives the BEP-3 protocol state machine over a single Conn:
// choke/unchoke tracking, remote bitfield tracking, the chunk-batch
// download RPC, and serving inbound block requests.
type Session struct {
	conn       *Conn
	numPieces  int
	remote     *Bitfield
	ownHas     func(i int) bool
	serve      ServeFunc
	clk        clock.Clock
	stats      tally.Scope
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	state State

	unchokeSig chan struct{}
	chokeSig   chan struct{}

	blocks chan Block

	readDone chan struct{}
}

// NewSession wraps an established Conn with the peer protocol state
// machine. ownHas reports which pieces we currently hold, used to build
// the outbound bitfield sent immediately after handshake.
func NewSession(
	conn *Conn,
	numPieces int,
	ownHas func(i int) bool,
	serve ServeFunc,
	clk clock.Clock,
	stats tally.Scope,
	logger *zap.SugaredLogger) *Session {

	return &Session{
		conn:       conn,
		numPieces:  numPieces,
		remote:     NewBitfield(),
		ownHas:     ownHas,
		serve:      serve,
		clk:        clk,
		stats:      stats.Tagged(map[string]string{"module": "peer"}),
		logger:     logger,
		state:      StateChoked,
		unchokeSig: make(chan struct{}, 1),
		chokeSig:   make(chan struct{}, 1),
		blocks:     make(chan Block, 16),
		readDone:   make(chan struct{}),
	}
}

// Start begins the connection's I/O loops and sends our own bitfield,
// as required immediately after the handshake.
func (s *Session) Start() {
	s.conn.Start()
	s.conn.Send(&Message{ID: MsgBitfield, Payload: ToWireBytes(s.ownHas, s.numPieces)})
	go s.readLoop()
}

// Close tears down the underlying connection.
func (s *Session) Close() { s.conn.Close() }

// PeerID returns the remote peer's identity.
func (s *Session) PeerID() core.PeerID { return s.conn.PeerID() }

// HasPiece reports whether the remote is known to hold piece i.
// Optimistic until the first bitfield/have arrives: see Bitfield.HasPiece.
func (s *Session) HasPiece(i int) bool { return s.remote.HasPiece(i) }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	switch st {
	case StateUnchoked:
		select {
		case s.unchokeSig <- struct{}{}:
		default:
		}
	case StateChoked:
		select {
		case s.chokeSig <- struct{}{}:
		default:
		}
	}
}

func (s *Session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureUnchoked sends `interested` and waits for `unchoke` using the
// escalating 1s/4s/7s timeout schedule. Returns nil immediately if
// already unchoked.
func (s *Session) EnsureUnchoked() error {
	if s.getState() == StateUnchoked {
		return nil
	}
	if err := s.conn.Send(&Message{ID: MsgInterested}); err != nil {
		return err
	}
	for _, timeout := range unchokeTimeouts {
		select {
		case <-s.unchokeSig:
			return nil
		case <-s.clk.After(timeout):
		}
		if s.getState() == StateUnchoked {
			return nil
		}
	}
	return ErrUnchokeFailed
}

// readLoop consumes every inbound message and dispatches it: state
// transitions, bitfield tracking, delivered blocks, and serving inbound
// requests. Runs until the Conn's receiver channel closes.
func (s *Session) readLoop() {
	defer close(s.readDone)
	for msg := range s.conn.Receiver() {
		switch msg.ID {
		case MsgChoke:
			s.setState(StateChoked)
		case MsgUnchoke:
			s.setState(StateUnchoked)
		case MsgHave:
			if i, err := ParseHave(msg); err == nil {
				s.remote.SetPiece(i)
			}
		case MsgBitfield:
			s.remote.ReplaceFromWire(msg.Payload, s.numPieces)
		case MsgRequest:
			s.handleRequest(msg)
		case MsgPiece:
			piece, begin, block, err := ParsePiece(msg)
			if err != nil {
				continue
			}
			cp := make([]byte, len(block))
			copy(cp, block)
			select {
			case s.blocks <- Block{Piece: piece, Begin: begin, Data: cp}:
			case <-s.readDone:
			}
		}
	}
}

// handleRequest answers an inbound `request`, silently dropping
// oversized or not-yet-available ranges.
func (s *Session) handleRequest(msg *Message) {
	piece, begin, length, err := ParseRequest(msg)
	if err != nil || length > ChunkSizeUpperBound {
		return
	}
	block, ok := s.serve(piece, begin, length)
	if !ok {
		return
	}
	s.conn.Send(NewPieceMessage(piece, begin, block))
	s.stats.Counter("bytes_uploaded").Inc(int64(len(block)))
}

// ChunkSizeUpperBound bounds what length an inbound request may ask
// for; larger requests are dropped.
const ChunkSizeUpperBound = 16384

// chunksBatchTimeout bounds how long Download waits for all requested
// blocks in one ChunksTask.
const chunksBatchTimeout = 10 * time.Second

// ChunkSpec is one (begin, length) request within a Download batch.
type ChunkSpec struct {
	Begin  int
	Length int
}

// ErrChokedMidBatch is returned by Download when the remote chokes us
// before every requested chunk has arrived. It is reconnectable: the
// coordinator re-adds the peer so it can be re-unchoked on a fresh
// connection rather than waiting out the full batch timeout.
var ErrChokedMidBatch = errors.New("peer: choked mid-batch")

// classifyIOErr reports whether err is one of the I/O kinds that
// warrant a single reconnect attempt.
func classifyIOErr(err error) bool {
	if errors.Is(err, ErrChokedMidBatch) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EPIPE, syscall.ENOTCONN, syscall.ECONNRESET, syscall.ECONNREFUSED:
			return true
		}
	}
	return false
}

// IsReconnectable reports whether err, surfaced from a Download or
// connect failure, is one of BrokenPipe/NotConnected/ConnectionReset/
// ConnectionRefused/UnexpectedEof (io.EOF and io.ErrUnexpectedEOF both
// count as the last, net.ErrClosed as NotConnected), or a mid-batch
// choke — the failure kinds that warrant a single reconnect attempt
// before failing the task outright. Any other error is not reconnectable.
func IsReconnectable(err error) bool { return classifyIOErr(err) }

// Download requests the chunks in spec (keyed by begin offset) from the
// remote, forwarding each delivered block to out as it arrives, and
// blocks until every requested chunk has been delivered or
// chunksBatchTimeout elapses for the whole batch. The session must
// already be unchoked.
func (s *Session) Download(ctx context.Context, piece int, specs []ChunkSpec, out func(begin int, block []byte)) error {
	if s.getState() != StateUnchoked {
		return fmt.Errorf("peer: session not unchoked")
	}
	select { // drop any stale choke signal from before this batch started.
	case <-s.chokeSig:
	default:
	}

	want := make(map[int]bool, len(specs))
	for _, c := range specs {
		want[c.Begin] = true
		if err := s.conn.Send(NewRequestMessage(piece, c.Begin, c.Length)); err != nil {
			return err
		}
	}

	deadline := s.clk.After(chunksBatchTimeout)
	for len(want) > 0 {
		select {
		case b := <-s.blocks:
			if b.Piece != piece || !want[b.Begin] {
				continue // stale or mismatched block, ignore.
			}
			delete(want, b.Begin)
			out(b.Begin, b.Data)
		case <-s.chokeSig:
			return ErrChokedMidBatch
		case <-deadline:
			return fmt.Errorf("peer: timed out awaiting %d chunks of piece %d", len(want), piece)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.readDone:
			return fmt.Errorf("peer: connection closed mid-batch")
		}
	}
	return nil
}
