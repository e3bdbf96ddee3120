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
	"context"
	"crypto/sha1"
	"bytes"
	"fmt"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/atomic"

	"github.com/dmoresh/torrentd/metainfo"
	"github.com/dmoresh/torrentd/utils/diskspaceutil"
	"github.com/dmoresh/torrentd/utils/log"
	"github.com/dmoresh/torrentd/utils/memsize"
)

// Config configures a Saver.
type Config struct {
	// DataChannelSize is the saver's inbound DataPiece channel capacity.
	// Back-pressure on this channel naturally slows peers that outrun
	// disk I/O.
	DataChannelSize int `yaml:"data_channel_size"`

	// DisableDiskSpaceCheck skips the preflight free-space check, used in
	// tests against tiny filesystems.
	DisableDiskSpaceCheck bool `yaml:"disable_disk_space_check"`
}

func (c Config) applyDefaults() Config {
	if c.DataChannelSize == 0 {
		c.DataChannelSize = 50
	}
	return c
}

// ErrStorage wraps any filesystem error the saver encounters; fatal for
// the torrent.
type ErrStorage struct{ Reason string }

func (e *ErrStorage) Error() string { return fmt.Sprintf("saver: storage error: %s", e.Reason) }

// ErrInsufficientDiskSpace is returned by New when the destination
// filesystem cannot fit the torrent's declared length.
var ErrInsufficientDiskSpace = fmt.Errorf("saver: insufficient disk space")

// DataPiece is one inbound block, forwarded from a peer session after a
// `piece` message arrives.
type DataPiece struct {
	Piece int
	Begin int
	Buf   []byte
}

// Events receives the saver's piece-level outcomes.
type Events interface {
	PieceDone(piece int)
	InvalidHash(piece int)
	Finished()
	Storage(err error)
}

// Saver places incoming blocks into the correct file offsets, tracks
// per-piece chunk completion, verifies piece hashes, and signals
// completion or failure. One Saver runs per torrent.
type Saver struct {
	info   *metainfo.Info
	layout *Layout
	config Config
	stats  tally.Scope

	bitmaps []*Bitmap

	piecesDone *atomic.Int32

	dataCh chan DataPiece
}

// New creates a Saver for info, resolving savePath and preallocating
// every destination file. It refuses to start (returning
// ErrInsufficientDiskSpace) if the free space of the filesystem mounted
// at "/" is less than info's declared length; the filesystem that holds
// savePath is not the one measured when it is mounted elsewhere.
func New(info *metainfo.Info, savePath string, config Config, stats tally.Scope) (*Saver, error) {
	config = config.applyDefaults()

	if !config.DisableDiskSpaceCheck {
		free, err := freeBytes()
		if err == nil && free < uint64(info.Length()) {
			return nil, fmt.Errorf("%w: need %s, filesystem has %s",
				ErrInsufficientDiskSpace, memsize.Format(uint64(info.Length())), memsize.Format(free))
		}
	}

	layout, err := NewLayout(info, savePath)
	if err != nil {
		return nil, err
	}

	bitmaps := make([]*Bitmap, info.NumPieces())
	for p := range bitmaps {
		bitmaps[p] = NewBitmap(TotalChunks(info, p))
	}

	return &Saver{
		info:       info,
		layout:     layout,
		config:     config,
		stats:      stats.Tagged(map[string]string{"module": "saver"}),
		bitmaps:    bitmaps,
		piecesDone: atomic.NewInt32(0),
		dataCh:     make(chan DataPiece, config.DataChannelSize),
	}, nil
}

func freeBytes() (uint64, error) {
	total, err := diskspaceutil.FileSystemSize()
	if err != nil {
		return 0, err
	}
	used, err := diskspaceutil.FileSystemUtil()
	if err != nil {
		return 0, err
	}
	return total - uint64(float64(total)*used/100), nil
}

// Submit enqueues dp for persistence. Blocks if the data channel is
// full, naturally slowing down a peer session that outruns the saver.
func (s *Saver) Submit(dp DataPiece) { s.dataCh <- dp }

// PiecesDone returns the number of pieces verified so far.
func (s *Saver) PiecesDone() int { return int(s.piecesDone.Load()) }

// Run drains the data channel and persists each DataPiece until ctx is
// cancelled, at which point it drains whatever is already buffered
// before returning. Returns *ErrStorage on any filesystem error, which
// is fatal for the torrent.
func (s *Saver) Run(ctx context.Context, events Events) error {
	defer s.layout.Close()
	for {
		select {
		case dp := <-s.dataCh:
			if err := s.handle(dp, events); err != nil {
				events.Storage(err)
				return err
			}
		case <-ctx.Done():
			return s.drain(events)
		}
	}
}

// drain persists whatever DataPieces are already buffered in the
// channel, without blocking for more, then returns.
func (s *Saver) drain(events Events) error {
	for {
		select {
		case dp := <-s.dataCh:
			if err := s.handle(dp, events); err != nil {
				events.Storage(err)
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Saver) handle(dp DataPiece, events Events) error {
	if dp.Piece < 0 || dp.Piece >= len(s.bitmaps) {
		return &ErrStorage{fmt.Sprintf("piece index %d out of range", dp.Piece)}
	}

	chunk := dp.Begin / ChunkSize
	bm := s.bitmaps[dp.Piece]
	if bm.Has(chunk) {
		return nil // idempotent: already persisted.
	}

	a := int64(dp.Piece)*s.info.MaxPieceLength() + int64(dp.Begin)
	if err := s.layout.WriteAt(dp.Buf, a); err != nil {
		return &ErrStorage{err.Error()}
	}
	bm.Add(chunk)

	if !bm.Ready() {
		return nil
	}
	return s.verifyPiece(dp.Piece, events)
}

// verifyPiece re-reads the full piece from disk, hashes it, and emits
// PieceDone/InvalidHash accordingly. On mismatch the bitmap is cleared
// so the piece is recycled into the coordinator's queue.
func (s *Saver) verifyPiece(p int, events Events) error {
	a := int64(p) * s.info.MaxPieceLength()
	buf, err := s.layout.ReadAt(a, s.info.PieceLength(p))
	if err != nil {
		return &ErrStorage{err.Error()}
	}

	sum := sha1.Sum(buf)
	if !bytes.Equal(sum[:], s.info.PieceHash(p)[:]) {
		s.bitmaps[p].Clear()
		s.stats.Counter("invalid_hash").Inc(1)
		events.InvalidHash(p)
		log.Warnf("saver: piece %d failed hash verification, recycling", p)
		return nil
	}

	s.stats.Counter("pieces_done").Inc(1)
	done := s.piecesDone.Inc()
	events.PieceDone(p)
	if int(done) == s.info.NumPieces() {
		events.Finished()
	}
	return nil
}

// Read serves an inbound peer `request(piece, begin, length)` against
// whatever is currently on disk, returning the requested block.
// Callers are expected to first check HasPiece so that requests
// against not-yet-persisted ranges are rejected cheaply.
func (s *Saver) Read(piece, begin, length int) ([]byte, error) {
	if piece < 0 || piece >= len(s.bitmaps) {
		return nil, fmt.Errorf("saver: piece index %d out of range", piece)
	}
	a := int64(piece)*s.info.MaxPieceLength() + int64(begin)
	return s.layout.ReadAt(a, int64(length))
}

// HasPiece reports whether every chunk of piece p has been persisted
// and verified (i.e. the piece survived hash verification and is still
// marked done — a piece that later failed re-verification would never
// happen here since pieces are only verified once, at completion).
func (s *Saver) HasPiece(p int) bool {
	if p < 0 || p >= len(s.bitmaps) {
		return false
	}
	return s.bitmaps[p].Ready()
}

// RestorePieceTask seeds piece p's bitmap by marking its first
// chunksDone chunks present without re-reading or re-hashing them: a
// resumed record is trusted, only the whole-piece hash at completion is
// re-checked.
func (s *Saver) RestorePieceTask(p, chunksDone int) {
	s.bitmaps[p].SeedFirstN(chunksDone)
	if chunksDone == TotalChunks(s.info, p) {
		s.piecesDone.Inc()
	}
}

// DataChannelLen reports how many DataPieces are currently buffered,
// useful for UI progress/backpressure reporting.
func (s *Saver) DataChannelLen() int { return len(s.dataCh) }

// resumeHashTimeout bounds how long ResumeScan waits for outstanding
// hash workers after the last piece has been dispatched.
const resumeHashTimeout = 10 * time.Second
