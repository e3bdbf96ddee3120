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

// Package coordinator schedules work across the peers of a single
// torrent: it owns the piece/chunk task queues, a fixed-size vector of
// peer slots, and the main event loop that assigns, recycles, and
// recovers tasks as peers connect, choke, and disconnect.
package coordinator

import "time"

// Config configures a Coordinator.
type Config struct {
	// MaxChunksTasks bounds how many ChunksTasks may sit in the chunk
	// queue at once.
	MaxChunksTasks int `yaml:"max_chunks_tasks"`

	// ConnectTimeout bounds the TCP dial of a single peer connect attempt.
	// The BEP-3 handshake that follows is bounded separately by
	// peer.Config.HandshakeTimeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// EventChannelSize is the capacity of the internal coordinator-event
	// channel.
	EventChannelSize int `yaml:"event_channel_size"`

	// AbortGrace bounds how long Pause/Stop/ForceOff wait for in-flight
	// downloads to unwind before snapshotting resume state.
	AbortGrace time.Duration `yaml:"abort_grace"`
}

func (c Config) applyDefaults() Config {
	if c.MaxChunksTasks == 0 {
		c.MaxChunksTasks = 100
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.EventChannelSize == 0 {
		c.EventChannelSize = 270
	}
	if c.AbortGrace == 0 {
		c.AbortGrace = 2 * time.Second
	}
	return c
}
