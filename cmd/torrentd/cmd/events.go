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

package cmd

import (
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/dmoresh/torrentd/coordinator"
	"github.com/dmoresh/torrentd/tracker"
	"github.com/dmoresh/torrentd/utils/log"
)

// cliEvents implements coordinator.Events, rendering progress to the
// terminal as the UI channel for a running download; graphical
// rendering is out of scope, this is the CLI's stand-in channel.
type cliEvents struct {
	numPieces int
	done      int
}

func newCLIEvents(numPieces int) *cliEvents {
	return &cliEvents{numPieces: numPieces}
}

func (e *cliEvents) PieceDone(piece int) {
	e.done++
	fmt.Printf("piece %d/%d done (%.1f%%)\n", e.done, e.numPieces,
		100*float64(e.done)/float64(e.numPieces))
}

func (e *cliEvents) TorrentFinished() {
	fmt.Println("download complete")
}

func (e *cliEvents) TorrentErr(err error) {
	log.Errorf("torrentd: torrent failed: %s", err)
}

func (e *cliEvents) PeerDiscovered(endpoint tracker.Endpoint) {
	log.Debugf("torrentd: peer discovered: %s", endpoint)
}

func (e *cliEvents) PeerDisconnect(endpoint tracker.Endpoint) {
	log.Debugf("torrentd: peer disconnected: %s", endpoint)
}

var _ coordinator.Events = (*cliEvents)(nil)

// formatSize renders n bytes as human-readable log and progress output.
func formatSize(n int64) string {
	return datasize.ByteSize(n).HumanReadable()
}
