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

// Package peer implements the BEP-3 peer wire protocol: handshake,
// message framing, and the per-connection state machine that drives a
// download or serves one back.
package peer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies a peer wire protocol message, per BEP-3.
type MessageID uint8

// Message ids.
const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is a single framed peer wire protocol message. A nil *Message
// represents a keep-alive (zero-length message).
type Message struct {
	ID      MessageID
	Payload []byte
}

// Serialize encodes m per BEP-3 framing: <u32 length><u8 id><payload>. A
// nil Message serializes to a zero-length keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads and frames the next message off r. It returns
// (nil, nil) on a keep-alive.
func ReadMessage(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &Message{ID: MessageID(body[0]), Payload: body[1:]}, nil
}

// WriteMessage serializes and writes msg to w.
func WriteMessage(w io.Writer, msg *Message) error {
	_, err := w.Write(msg.Serialize())
	return err
}

// NewHaveMessage builds a `have(piece)` message.
func NewHaveMessage(piece int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(piece))
	return &Message{ID: MsgHave, Payload: payload}
}

// NewRequestMessage builds a `request(piece, begin, length)` message.
func NewRequestMessage(piece, begin, length int) *Message {
	return &Message{ID: MsgRequest, Payload: requestPayload(piece, begin, length)}
}

// NewCancelMessage builds a `cancel` message, identical in body to request.
func NewCancelMessage(piece, begin, length int) *Message {
	return &Message{ID: MsgCancel, Payload: requestPayload(piece, begin, length)}
}

func requestPayload(piece, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(piece))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return payload
}

// ParseRequest decodes a request/cancel message's (piece, begin, length).
func ParseRequest(msg *Message) (piece, begin, length int, err error) {
	if len(msg.Payload) != 12 {
		return 0, 0, 0, fmt.Errorf("peer: request payload length %d, want 12", len(msg.Payload))
	}
	piece = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	length = int(binary.BigEndian.Uint32(msg.Payload[8:12]))
	return piece, begin, length, nil
}

// NewPieceMessage builds a `piece(piece, begin, block)` message.
func NewPieceMessage(piece, begin int, block []byte) *Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(piece))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return &Message{ID: MsgPiece, Payload: payload}
}

// ParsePiece decodes a piece message's (piece, begin, block). block
// aliases msg.Payload; callers that retain it past the next read should
// copy.
func ParsePiece(msg *Message) (piece, begin int, block []byte, err error) {
	if len(msg.Payload) < 8 {
		return 0, 0, nil, fmt.Errorf("peer: piece payload length %d, want >= 8", len(msg.Payload))
	}
	piece = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	block = msg.Payload[8:]
	return piece, begin, block, nil
}

// ParseHave decodes a have message's piece index.
func ParseHave(msg *Message) (int, error) {
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("peer: have payload length %d, want 4", len(msg.Payload))
	}
	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

const _pstr = "BitTorrent protocol"

// Handshake is the 68-byte opening exchange that authenticates the
// torrent and identifies the peer.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Serialize encodes the handshake: <u8 19>"BitTorrent protocol"<8 zero
// bytes><info_hash:20><peer_id:20>.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 49+len(_pstr))
	buf[0] = byte(len(_pstr))
	cursor := 1
	cursor += copy(buf[cursor:], _pstr)
	cursor += 8 // reserved bytes, left zero
	cursor += copy(buf[cursor:], h.InfoHash[:])
	copy(buf[cursor:], h.PeerID[:])
	return buf
}

// ReadHandshake reads and validates a 68-byte handshake off r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	lengthBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}
	pstrlen := int(lengthBuf[0])
	// rest is the protocol string plus 8 reserved + 20 info_hash + 20 peer_id.
	rest := make([]byte, pstrlen+48)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	h := &Handshake{}
	cursor := pstrlen + 8
	copy(h.InfoHash[:], rest[cursor:cursor+20])
	cursor += 20
	copy(h.PeerID[:], rest[cursor:cursor+20])
	return h, nil
}
