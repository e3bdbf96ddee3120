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
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dmoresh/torrentd/core"
)

// Config configures a Conn.
type Config struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	SenderBufferSize   int           `yaml:"sender_buffer_size"`
	ReceiverBufferSize int           `yaml:"receiver_buffer_size"`
}

func (c Config) applyDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 4 * time.Second
	}
	if c.SenderBufferSize == 0 {
		c.SenderBufferSize = 100
	}
	if c.ReceiverBufferSize == 0 {
		c.ReceiverBufferSize = 100
	}
	return c
}

// ErrHandshakeTimeout is returned when the handshake does not complete
// within Config.HandshakeTimeout.
var ErrHandshakeTimeout = errors.New("peer: handshake timed out")

// ErrInfoHashMismatch is returned when a peer's handshake echoes a
// different info-hash than expected.
var ErrInfoHashMismatch = errors.New("peer: info hash mismatch")

// Events receives notification when a Conn closes.
type Events interface {
	ConnClosed(*Conn)
}

// Conn manages the framed message exchange with a single remote peer for
// a single torrent, over one TCP connection.
type Conn struct {
	peerID   core.PeerID
	infoHash core.InfoHash

	events Events
	nc     net.Conn
	config Config
	clk    clock.Clock
	stats  tally.Scope
	logger *zap.SugaredLogger

	openedByRemote bool

	startOnce sync.Once

	sender   chan *Message
	receiver chan *Message

	closed *atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Dial opens a TCP connection to addr, completes the BEP-3 handshake
// within config.HandshakeTimeout, and returns a Conn ready to Start.
func Dial(
	addr string,
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	localPeerID core.PeerID,
	infoHash core.InfoHash,
	connectTimeout time.Duration,
	events Events,
	logger *zap.SugaredLogger) (*Conn, error) {

	config = config.applyDefaults()

	nc, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}

	remotePeerID, err := handshake(nc, config.HandshakeTimeout, localPeerID, infoHash)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return newConn(config, stats, clk, events, nc, localPeerID, remotePeerID, infoHash, false, logger), nil
}

// Accept completes the responder side of a BEP-3 handshake over an
// already-accepted TCP connection nc.
func Accept(
	nc net.Conn,
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	localPeerID core.PeerID,
	events Events,
	logger *zap.SugaredLogger) (*Conn, error) {

	config = config.applyDefaults()

	remotePeerID, infoHash, err := acceptHandshake(nc, config.HandshakeTimeout, localPeerID)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return newConn(config, stats, clk, events, nc, localPeerID, remotePeerID, infoHash, true, logger), nil
}

func handshake(nc net.Conn, timeout time.Duration, localPeerID core.PeerID, infoHash core.InfoHash) (core.PeerID, error) {
	nc.SetDeadline(time.Now().Add(timeout))
	defer nc.SetDeadline(time.Time{})

	h := &Handshake{InfoHash: infoHash, PeerID: localPeerID}
	if _, err := nc.Write(h.Serialize()); err != nil {
		return core.PeerID{}, classifyHandshakeErr(err)
	}

	resp, err := ReadHandshake(nc)
	if err != nil {
		return core.PeerID{}, classifyHandshakeErr(err)
	}
	if resp.InfoHash != infoHash {
		return core.PeerID{}, ErrInfoHashMismatch
	}
	return core.PeerID(resp.PeerID), nil
}

func acceptHandshake(nc net.Conn, timeout time.Duration, localPeerID core.PeerID) (core.PeerID, core.InfoHash, error) {
	nc.SetDeadline(time.Now().Add(timeout))
	defer nc.SetDeadline(time.Time{})

	req, err := ReadHandshake(nc)
	if err != nil {
		return core.PeerID{}, core.InfoHash{}, classifyHandshakeErr(err)
	}

	resp := &Handshake{InfoHash: req.InfoHash, PeerID: localPeerID}
	if _, err := nc.Write(resp.Serialize()); err != nil {
		return core.PeerID{}, core.InfoHash{}, classifyHandshakeErr(err)
	}

	return core.PeerID(req.PeerID), core.InfoHash(req.InfoHash), nil
}

func classifyHandshakeErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrHandshakeTimeout
	}
	return err
}

func newConn(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	events Events,
	nc net.Conn,
	localPeerID core.PeerID,
	remotePeerID core.PeerID,
	infoHash core.InfoHash,
	openedByRemote bool,
	logger *zap.SugaredLogger) *Conn {

	return &Conn{
		peerID:         remotePeerID,
		infoHash:       infoHash,
		events:         events,
		nc:             nc,
		config:         config,
		clk:            clk,
		stats:          stats,
		logger:         logger,
		openedByRemote: openedByRemote,
		sender:         make(chan *Message, config.SenderBufferSize),
		receiver:       make(chan *Message, config.ReceiverBufferSize),
		closed:         atomic.NewBool(false),
		done:           make(chan struct{}),
	}
}

// Start begins the read and write loops. Idempotent.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.readLoop()
		go c.writeLoop()
	})
}

// PeerID returns the remote peer's id.
func (c *Conn) PeerID() core.PeerID { return c.peerID }

// InfoHash returns the torrent this Conn serves.
func (c *Conn) InfoHash() core.InfoHash { return c.infoHash }

func (c *Conn) String() string {
	return fmt.Sprintf("Conn(peer=%s, hash=%s, opened_by_remote=%t)", c.peerID, c.infoHash, c.openedByRemote)
}

// Send enqueues msg for delivery. Returns an error if the Conn is closed
// or the send buffer is full.
func (c *Conn) Send(msg *Message) error {
	select {
	case <-c.done:
		return errors.New("peer: conn closed")
	case c.sender <- msg:
		return nil
	default:
		c.stats.Counter("dropped_messages").Inc(1)
		return errors.New("peer: send buffer full")
	}
}

// Receiver returns the channel of inbound messages.
func (c *Conn) Receiver() <-chan *Message { return c.receiver }

// Close tears down the connection and notifies Events.ConnClosed.
func (c *Conn) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	go func() {
		close(c.done)
		c.nc.Close()
		c.wg.Wait()
		if c.events != nil {
			c.events.ConnClosed(c)
		}
	}()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) readLoop() {
	defer func() {
		close(c.receiver)
		c.wg.Done()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		default:
			msg, err := ReadMessage(c.nc)
			if err != nil {
				c.logger.Infof("peer: read error from %s, closing: %s", c.peerID, err)
				return
			}
			if msg == nil {
				continue // keep-alive
			}
			select {
			case c.receiver <- msg:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Conn) writeLoop() {
	defer func() {
		c.wg.Done()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sender:
			if err := WriteMessage(c.nc, msg); err != nil {
				c.logger.Infof("peer: write error to %s, closing: %s", c.peerID, err)
				return
			}
		}
	}
}
