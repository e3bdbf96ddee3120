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

// Package saver places incoming blocks into the correct file offsets,
// tracks per-piece completion in a ChunkBitmap, verifies piece hashes,
// and maps linear torrent byte offsets onto a single file or a
// multi-file tree.
package saver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dmoresh/torrentd/metainfo"
)

// fileEntry is one file in the layout, with its absolute path on disk
// and its handle, opened lazily on first use.
type fileEntry struct {
	path   string
	length int64

	file *os.File
}

// Layout resolves save-path semantics into a concrete set of on-disk
// files and a prefix-sum index over their lengths, so any linear
// torrent byte offset can be mapped to a (file, in-file offset) pair by
// binary search.
type Layout struct {
	files []*fileEntry
	cum   []int64 // cum[0]=0, cum[len(files)]=total length
}

// NewLayout resolves savePath against info: single-file torrents write
// directly to savePath if it names a file, or savePath/name if it names
// a directory; multi-file torrents write each entry under
// savePath/path..., creating intermediate directories.
func NewLayout(info *metainfo.Info, savePath string) (*Layout, error) {
	var files []*fileEntry

	if !info.IsMultiFile() {
		dest := savePath
		if fi, err := os.Stat(savePath); err == nil && fi.IsDir() {
			dest = filepath.Join(savePath, info.Name())
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("saver: mkdir %s: %s", filepath.Dir(dest), err)
		}
		files = append(files, &fileEntry{path: dest, length: info.Length()})
	} else {
		for _, f := range info.Files() {
			dest := filepath.Join(savePath, f.Path)
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return nil, fmt.Errorf("saver: mkdir %s: %s", filepath.Dir(dest), err)
			}
			files = append(files, &fileEntry{path: dest, length: f.Length})
		}
	}

	cum := make([]int64, len(files)+1)
	for i, f := range files {
		cum[i+1] = cum[i] + f.length
	}

	l := &Layout{files: files, cum: cum}
	if err := l.preallocate(); err != nil {
		return nil, err
	}
	return l, nil
}

// preallocate opens (creating if necessary) every file and sizes it to
// its declared length, so WriteAt never needs to grow a file mid-write.
func (l *Layout) preallocate() error {
	for _, f := range l.files {
		fh, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("saver: open %s: %s", f.path, err)
		}
		if err := fh.Truncate(f.length); err != nil {
			fh.Close()
			return fmt.Errorf("saver: truncate %s to %d: %s", f.path, f.length, err)
		}
		f.file = fh
	}
	return nil
}

// Close closes every open file handle.
func (l *Layout) Close() error {
	var firstErr error
	for _, f := range l.files {
		if f.file == nil {
			continue
		}
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// totalLength is the sum of every file's declared length.
func (l *Layout) totalLength() int64 { return l.cum[len(l.cum)-1] }

// locateFile performs a binary search over the prefix-sum array to find
// the file index f such that cum[f] <= a < cum[f+1], and returns the
// in-file offset a - cum[f]. Grounded on original_source/engine/saver.rs's
// save_data_to_files, which runs this same search once per fragment
// boundary (start offset, then end offset) when a block spans files.
func (l *Layout) locateFile(a int64) (fileIndex int, inFileOffset int64) {
	// sort.Search finds the smallest i such that cum[i+1] > a, i.e. the
	// first file whose end boundary exceeds a.
	i := sort.Search(len(l.files), func(i int) bool {
		return l.cum[i+1] > a
	})
	if i == len(l.files) {
		i = len(l.files) - 1
	}
	return i, a - l.cum[i]
}

// WriteAt writes buf starting at linear offset a, fragmenting the write
// across file boundaries as needed.
func (l *Layout) WriteAt(buf []byte, a int64) error {
	for len(buf) > 0 {
		fi, off := l.locateFile(a)
		f := l.files[fi]
		n := int64(len(buf))
		if room := f.length - off; n > room {
			n = room
		}
		if _, err := f.file.WriteAt(buf[:n], off); err != nil {
			return fmt.Errorf("saver: write %s at %d: %s", f.path, off, err)
		}
		buf = buf[n:]
		a += n
	}
	return nil
}

// ReadAt reads length bytes starting at linear offset a into a freshly
// allocated buffer, fragmenting the read across file boundaries as
// needed. Used both to serve inbound peer `request`s and to re-read a
// completed piece for hash verification.
func (l *Layout) ReadAt(a, length int64) ([]byte, error) {
	out := make([]byte, length)
	remaining := out
	cursor := a
	for len(remaining) > 0 {
		fi, off := l.locateFile(cursor)
		f := l.files[fi]
		n := int64(len(remaining))
		if room := f.length - off; n > room {
			n = room
		}
		if n <= 0 {
			return nil, fmt.Errorf("saver: read past end of layout at offset %d", cursor)
		}
		if _, err := f.file.ReadAt(remaining[:n], off); err != nil {
			return nil, fmt.Errorf("saver: read %s at %d: %s", f.path, off, err)
		}
		remaining = remaining[n:]
		cursor += n
	}
	return out, nil
}
