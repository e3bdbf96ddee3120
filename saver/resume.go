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
	"bytes"
	"crypto/sha1"
	"runtime"
	"sync"
	"time"

	"github.com/dmoresh/torrentd/utils/log"
)

// ResumeScan re-verifies every piece already present on disk against
// its expected hash and returns the set of pieces that may be
// considered already done, seeding s's bitmaps for each. This is the
// from-scratch resume path; a session-store resume uses the cheaper
// RestorePieceTask path instead.
//
// Hashing runs on a bounded worker pool so CPU-bound SHA-1 work
// overlaps disk I/O across pieces; ResumeScan waits for every launched
// hasher to finish, with a resumeHashTimeout grace period measured from
// the last dispatch.
func (s *Saver) ResumeScan() map[int]bool {
	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan int, s.info.NumPieces())
	for p := 0; p < s.info.NumPieces(); p++ {
		jobs <- p
	}
	close(jobs)

	var mu sync.Mutex
	done := make(map[int]bool)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if s.verifyOnDisk(p) {
					mu.Lock()
					done[p] = true
					mu.Unlock()
					s.bitmaps[p].SeedFirstN(TotalChunks(s.info, p))
					s.piecesDone.Inc()
				}
			}
		}()
	}

	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()

	select {
	case <-waitCh:
	case <-time.After(resumeHashTimeout):
		log.Warnf("saver: resume scan hash workers did not finish within grace timeout")
	}

	return done
}

// verifyOnDisk reads the bytes that would belong to piece p and checks
// them against the expected hash. A missing file aborts the attempt for
// this piece (not an error): the piece is simply left undone.
func (s *Saver) verifyOnDisk(p int) bool {
	a := int64(p) * s.info.MaxPieceLength()
	buf, err := s.layout.ReadAt(a, s.info.PieceLength(p))
	if err != nil {
		return false
	}
	sum := sha1.Sum(buf)
	return bytes.Equal(sum[:], s.info.PieceHash(p)[:])
}
