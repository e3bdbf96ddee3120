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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAliveRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, (*Message)(nil)))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

	msg, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Nil(t, msg, "zero-length message must read back as a keep-alive")
}

func TestRequestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	sent := NewRequestMessage(3, 16384, 16384)
	require.NoError(t, WriteMessage(&buf, sent))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, MsgRequest, got.ID)

	piece, begin, length, err := ParseRequest(got)
	require.NoError(t, err)
	assert.Equal(t, 3, piece)
	assert.Equal(t, 16384, begin)
	assert.Equal(t, 16384, length)
}

func TestCancelMessageSameBodyAsRequest(t *testing.T) {
	req := NewRequestMessage(1, 2, 3)
	can := NewCancelMessage(1, 2, 3)
	assert.Equal(t, req.Payload, can.Payload)
	assert.NotEqual(t, req.ID, can.ID)
}

func TestPieceMessageRoundTrip(t *testing.T) {
	block := []byte("hello world, this is a chunk of data")
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewPieceMessage(5, 8192, block)))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	piece, begin, gotBlock, err := ParsePiece(got)
	require.NoError(t, err)
	assert.Equal(t, 5, piece)
	assert.Equal(t, 8192, begin)
	assert.Equal(t, block, gotBlock)
}

func TestHaveMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewHaveMessage(42)))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	p, err := ParseHave(got)
	require.NoError(t, err)
	assert.Equal(t, 42, p)
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := &Handshake{}
	copy(h.InfoHash[:], bytes.Repeat([]byte{0xAB}, 20))
	copy(h.PeerID[:], bytes.Repeat([]byte{0xCD}, 20))

	buf := bytes.NewBuffer(h.Serialize())
	assert.Equal(t, 68, buf.Len())

	got, err := ReadHandshake(buf)
	require.NoError(t, err)
	assert.Equal(t, h.InfoHash, got.InfoHash)
	assert.Equal(t, h.PeerID, got.PeerID)
}

func TestParseRequestRejectsWrongLength(t *testing.T) {
	_, _, _, err := ParseRequest(&Message{ID: MsgRequest, Payload: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestParsePieceRejectsShortPayload(t *testing.T) {
	_, _, _, err := ParsePiece(&Message{ID: MsgPiece, Payload: []byte{1, 2, 3}})
	assert.Error(t, err)
}
