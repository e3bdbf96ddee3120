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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/metainfo"
)

// buildInfo constructs a metainfo.Info for a single-file torrent of the
// given content length and piece length, for exercising last-piece
// short-tail chunk sizing.
func buildInfo(t *testing.T, totalLength, pieceLength int64) *metainfo.Info {
	t.Helper()
	content := make([]byte, totalLength)
	raw := metainfo.Build("file.bin", content, pieceLength, "http://tracker.example/announce")
	info, err := metainfo.Parse(raw)
	require.NoError(t, err)
	return info
}

func TestTotalChunksLastPieceShortTail(t *testing.T) {
	// 1,000,000 bytes, piece_length=262,144 -> 4 pieces, last piece is
	// 213,568 bytes -> 13 full 16384-byte chunks + one 576-byte tail chunk.
	info := buildInfo(t, 1000000, 262144)
	require.Equal(t, 4, info.NumPieces())

	lastPiece := info.NumPieces() - 1
	assert.Equal(t, int64(213568), info.PieceLength(lastPiece))
	assert.Equal(t, 14, TotalChunks(info, lastPiece))

	for p := 0; p < lastPiece; p++ {
		assert.Equal(t, 16, TotalChunks(info, p), "non-last piece should be exactly 16 full chunks")
	}
}

func TestChunkLengthShortTailChunk(t *testing.T) {
	info := buildInfo(t, 1000000, 262144)
	lastPiece := info.NumPieces() - 1

	for c := 0; c < 13; c++ {
		assert.Equal(t, int64(ChunkSize), ChunkLength(info, lastPiece, c))
	}
	assert.Equal(t, int64(576), ChunkLength(info, lastPiece, 13))
}

func TestChunkLengthExactMultiple(t *testing.T) {
	// 1,048,576 bytes, piece_length=262,144 -> 4 pieces, 16 chunks each,
	// every chunk exactly ChunkSize.
	info := buildInfo(t, 1048576, 262144)
	require.Equal(t, 4, info.NumPieces())
	for p := 0; p < 4; p++ {
		assert.Equal(t, 16, TotalChunks(info, p))
		for c := 0; c < 16; c++ {
			assert.Equal(t, int64(ChunkSize), ChunkLength(info, p, c))
		}
	}
}
