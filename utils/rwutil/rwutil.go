package rwutil

import "bytes"

// PlainReader reads directly from an in-memory byte slice.
func PlainReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// PlainWriter is a fixed-length byte slice that Write copies into
// directly, for callers that have preallocated the exact destination
// size.
type PlainWriter []byte

func (w PlainWriter) Write(p []byte) (int, error) {
	n := copy(w, p)
	return n, nil
}
