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
	"crypto/sha1"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/bencode"
	"github.com/dmoresh/torrentd/metainfo"
)

// buildMultiFileRaw hand-builds a multi-file metainfo's raw bencoded bytes
// (metainfo.Build only supports the single-file fixture shape).
func buildMultiFileRaw(t *testing.T, files []metainfo.FileEntry, pieceLength int64) []byte {
	t.Helper()
	var total int64
	for _, f := range files {
		total += f.Length
	}

	var pieces []byte
	for off := int64(0); off < total; off += pieceLength {
		end := off + pieceLength
		if end > total {
			end = total
		}
		h := sha1.Sum(make([]byte, end-off))
		pieces = append(pieces, h[:]...)
	}

	filesList := make([]bencode.Value, len(files))
	for i, f := range files {
		segments := strings.Split(filepath.ToSlash(f.Path), "/")
		pathItems := make([]bencode.Value, len(segments))
		for j, s := range segments {
			pathItems[j] = bencode.String(s)
		}
		filesList[i] = bencode.NewDict().
			Set("length", bencode.Int(f.Length)).
			Set("path", bencode.List(pathItems...))
	}

	info := bencode.NewDict().
		Set("name", bencode.String("multi")).
		Set("piece length", bencode.Int(pieceLength)).
		Set("pieces", bencode.Bytes(pieces)).
		Set("files", bencode.List(filesList...))
	root := bencode.NewDict().
		Set("announce", bencode.String("http://tracker.example/announce")).
		Set("info", info)
	return bencode.Encode(root)
}

func multiFileInfo(t *testing.T) (*metainfo.Info, []metainfo.FileEntry) {
	t.Helper()
	files := []metainfo.FileEntry{
		{Path: filepath.Join("a", "one.bin"), Length: 10},
		{Path: "two.bin", Length: 25},
		{Path: filepath.Join("b", "c", "three.bin"), Length: 7},
	}
	raw := buildMultiFileRaw(t, files, 16)
	info, err := metainfo.Parse(raw)
	require.NoError(t, err)
	return info, files
}

func TestLayoutSingleFileDirectPath(t *testing.T) {
	dir := t.TempDir()
	info := buildInfo(t, 100, 50)
	dest := filepath.Join(dir, "out.bin")

	l, err := NewLayout(info, dest)
	require.NoError(t, err)
	defer l.Close()

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fi.Size())
}

func TestLayoutSingleFileIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	info := buildInfo(t, 64, 64)

	l, err := NewLayout(info, dir)
	require.NoError(t, err)
	defer l.Close()

	fi, err := os.Stat(filepath.Join(dir, "file.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(64), fi.Size())
}

func TestLayoutPrefixSumOffsetInvariant(t *testing.T) {
	dir := t.TempDir()
	info, files := multiFileInfo(t)

	l, err := NewLayout(info, dir)
	require.NoError(t, err)
	defer l.Close()

	var total int64
	for _, f := range files {
		total += f.Length
	}
	require.Equal(t, total, l.totalLength())

	for a := int64(0); a < total; a++ {
		fi, inFileOffset := l.locateFile(a)
		assert.Equal(t, l.cum[fi]+inFileOffset, a)
		assert.True(t, fi >= 0 && fi < len(l.files))
	}
}

func TestLayoutWriteReadRoundTripAcrossFileBoundary(t *testing.T) {
	dir := t.TempDir()
	info, _ := multiFileInfo(t)

	l, err := NewLayout(info, dir)
	require.NoError(t, err)
	defer l.Close()

	// Files: one.bin[0,10), two.bin[10,35), three.bin[35,42).
	// Write a block that spans the one.bin/two.bin boundary.
	block := make([]byte, 8)
	rand.New(rand.NewSource(1)).Read(block)
	const start = 6 // 4 bytes in one.bin, 4 bytes in two.bin
	require.NoError(t, l.WriteAt(block, start))

	got, err := l.ReadAt(start, int64(len(block)))
	require.NoError(t, err)
	assert.Equal(t, block, got)
}

func TestLayoutWriteReadRoundTripSpanningThreeFiles(t *testing.T) {
	dir := t.TempDir()
	info, _ := multiFileInfo(t)

	l, err := NewLayout(info, dir)
	require.NoError(t, err)
	defer l.Close()

	// Span all of two.bin[10,35) plus a byte on each side.
	block := make([]byte, 27)
	for i := range block {
		block[i] = byte(i)
	}
	require.NoError(t, l.WriteAt(block, 9))

	got, err := l.ReadAt(9, int64(len(block)))
	require.NoError(t, err)
	assert.Equal(t, block, got)
}
