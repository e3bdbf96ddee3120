package metainfo

import (
	"crypto/sha1"

	"github.com/dmoresh/torrentd/bencode"
)

// Build constructs a single-file metainfo's raw bytes from content,
// chunked into pieces of pieceLength, for use in tests and local fixtures.
func Build(name string, content []byte, pieceLength int64, announce string) []byte {
	var pieces []byte
	for off := int64(0); off < int64(len(content)); off += pieceLength {
		end := off + pieceLength
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		h := sha1.Sum(content[off:end])
		pieces = append(pieces, h[:]...)
	}
	info := bencode.NewDict().
		Set("name", bencode.String(name)).
		Set("piece length", bencode.Int(pieceLength)).
		Set("pieces", bencode.Bytes(pieces)).
		Set("length", bencode.Int(int64(len(content))))
	root := bencode.NewDict().
		Set("announce", bencode.String(announce)).
		Set("info", info)
	return bencode.Encode(root)
}
