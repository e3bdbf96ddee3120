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

// Package sessionstore persists pause/resume state across restarts: a
// single file at a fixed per-user location holding one record per known
// torrent, addressed by info-hash, access serialized through a single
// mutex.
package sessionstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"

	"github.com/dmoresh/torrentd/core"
	"github.com/dmoresh/torrentd/coordinator"
	"github.com/dmoresh/torrentd/saver"
	"github.com/dmoresh/torrentd/utils/log"
)

// backupDir and backupFile name the fixed per-user location:
// $HOME/.torrentd/backup.bin, the same path on every platform.
const (
	backupDir  = ".torrentd"
	backupFile = "backup.bin"
)

// Record is one torrent's resumable state, as captured by
// coordinator.Coordinator.Snapshot and restored on the next start/resume.
type Record struct {
	InfoHash    core.InfoHash       `json:"info_hash"`
	RawMetainfo []byte              `json:"raw_metainfo"`
	SavePath    string              `json:"save_path"`
	PieceTasks  []saver.PieceTask   `json:"piece_tasks"`
	ChunkTasks  []saver.ChunksTask  `json:"chunk_tasks"`
	PiecesDone  int                 `json:"pieces_done"`
	Status      coordinator.Status  `json:"status"`
}

// FromSnapshot builds the Record for snap, persisted under rawMetainfo's
// info-hash so a later GetByInfoHash can restore the torrent descriptor
// without re-reading the original .torrent file from disk.
func FromSnapshot(snap coordinator.Snapshot, rawMetainfo []byte) Record {
	return Record{
		InfoHash:    snap.InfoHash,
		RawMetainfo: append([]byte(nil), rawMetainfo...),
		SavePath:    snap.SavePath,
		PieceTasks:  snap.PieceTasks,
		ChunkTasks:  snap.ChunkTasks,
		PiecesDone:  snap.PiecesDone,
		Status:      snap.Status,
	}
}

// DefaultPath resolves the fixed per-user backup file location:
// $HOME/.torrentd/backup.bin, using go-homedir to resolve $HOME
// portably.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("sessionstore: resolve home dir: %w", err)
	}
	return filepath.Join(home, backupDir, backupFile), nil
}

// Store is a single-file, mutex-guarded collection of Records, one per
// known torrent. A damaged file is treated as empty (logged, not
// errored) and overwritten the next time Upsert runs.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store backed by the file at path, creating its parent
// directory on first write.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns every persisted Record. A missing file returns an empty
// slice, not an error.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Upsert inserts rec, or replaces the existing record sharing its
// info-hash, and persists the result.
func (s *Store) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range records {
		if r.InfoHash == rec.InfoHash {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return s.saveLocked(records)
}

// GetByInfoHash returns the record for h, if any.
func (s *Store) GetByInfoHash(h core.InfoHash) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range records {
		if r.InfoHash == h {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

// DeleteByInfoHash removes the record for h, if present, and persists
// the result. A no-op (not an error) if h is not known.
func (s *Store) DeleteByInfoHash(h core.InfoHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	out := records[:0]
	for _, r := range records {
		if r.InfoHash != h {
			out = append(out, r)
		}
	}
	return s.saveLocked(out)
}

func (s *Store) loadLocked() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	records, err := decodeRecords(data)
	if err != nil {
		log.Warnf("sessionstore: %s is damaged, treating as empty: %s", s.path, err)
		return nil, nil
	}
	return records, nil
}

func (s *Store) saveLocked(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("sessionstore: mkdir %s: %w", filepath.Dir(s.path), err)
	}
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("sessionstore: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("sessionstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("sessionstore: rename %s to %s: %w", tmp, s.path, err)
	}
	return nil
}

// encodeRecords serializes records as a length-prefixed vector: each
// entry is a big-endian uint32 byte length followed by that many bytes
// of JSON.
func encodeRecords(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(b)))
		buf.Write(lenPrefix[:])
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func decodeRecords(data []byte) ([]Record, error) {
	var records []Record
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("truncated length prefix")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return nil, fmt.Errorf("truncated record body")
		}
		var r Record
		if err := json.Unmarshal(data[:n], &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		records = append(records, r)
		data = data[n:]
	}
	return records, nil
}
