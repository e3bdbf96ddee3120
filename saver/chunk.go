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

import "github.com/dmoresh/torrentd/metainfo"

// ChunkSize is the fixed unit of request on the wire. A piece is always
// an integer number of chunks except for a possibly-short final chunk.
const ChunkSize = 16384

// TotalChunks returns the number of chunks piece p of info decomposes
// into, including a possibly-short final chunk.
func TotalChunks(info *metainfo.Info, p int) int {
	pl := info.PieceLength(p)
	return int((pl + ChunkSize - 1) / ChunkSize)
}

// ChunkLength returns the length in bytes of chunk index c within piece
// p: ChunkSize for every chunk but the last one of the piece, whose
// length is whatever remains of the piece.
func ChunkLength(info *metainfo.Info, p, c int) int64 {
	pl := info.PieceLength(p)
	begin := int64(c) * ChunkSize
	if remaining := pl - begin; remaining < ChunkSize {
		return remaining
	}
	return ChunkSize
}

// PieceTask is the remaining work inside one piece: how many of its
// total chunks have already been persisted.
type PieceTask struct {
	PieceIndex  int
	TotalChunks int
	ChunksDone  int
}

// ChunksTask is a contiguous slice of chunks to request as one batch
// from one peer: the half-open range [Lo, Hi) within PieceIndex.
type ChunksTask struct {
	PieceIndex        int
	Lo, Hi            int
	IncludesLastChunk bool
}
