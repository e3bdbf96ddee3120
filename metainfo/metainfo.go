// Package metainfo resolves a bencoded .torrent file into an immutable,
// hashed torrent descriptor: info-hash, piece hashes, piece length, and
// file layout.
package metainfo

import (
	"fmt"
	"path/filepath"

	"github.com/dmoresh/torrentd/bencode"
	"github.com/dmoresh/torrentd/core"
)

// InvalidMetainfoError is returned when a metainfo file is missing a
// required key or a key has the wrong shape.
type InvalidMetainfoError struct {
	Reason string
}

func (e *InvalidMetainfoError) Error() string {
	return fmt.Sprintf("invalid metainfo: %s", e.Reason)
}

// FileEntry describes one file in a multi-file torrent.
type FileEntry struct {
	// Path is the relative path, already joined with the platform
	// separator, e.g. "dir/subdir/file.bin".
	Path   string
	Length int64
}

// Info is the immutable torrent descriptor. It is read-only after
// construction and safe to share by reference across every collaborator
// (tracker client, peer sessions, saver, coordinator) without
// synchronization.
type Info struct {
	announce     string
	announceList []string
	infoHash     core.InfoHash
	name         string
	pieceLength  int64
	pieceHashes  [][20]byte
	length       int64
	files        []FileEntry // nil for single-file torrents
	raw          []byte      // original bencoded metainfo bytes, for session-store persistence
}

// Raw returns the exact bencoded bytes Info was parsed from, so a
// session-store record can persist a torrent's descriptor without
// re-deriving it field by field.
func (i *Info) Raw() []byte { return i.raw }

// Announce returns the primary tracker URL.
func (i *Info) Announce() string { return i.announce }

// AnnounceList returns the alternate tracker URLs, in order, excluding
// the primary. May be empty.
func (i *Info) AnnounceList() []string { return i.announceList }

// InfoHash returns the 20-byte SHA-1 identity of this torrent.
func (i *Info) InfoHash() core.InfoHash { return i.infoHash }

// Name returns the suggested file or directory name.
func (i *Info) Name() string { return i.name }

// Length returns the total content length across all files.
func (i *Info) Length() int64 { return i.length }

// NumPieces returns the number of pieces.
func (i *Info) NumPieces() int { return len(i.pieceHashes) }

// PieceHash returns the expected SHA-1 of piece index p.
func (i *Info) PieceHash(p int) [20]byte { return i.pieceHashes[p] }

// MaxPieceLength is the nominal piece length; all pieces but the last
// are exactly this long.
func (i *Info) MaxPieceLength() int64 { return i.pieceLength }

// PieceLength returns the length of piece index p: pieceLength for every
// piece but the last, and length-(n-1)*pieceLength for the last.
func (i *Info) PieceLength(p int) int64 {
	if p < 0 || p >= i.NumPieces() {
		panic(fmt.Sprintf("metainfo: piece index %d out of range [0,%d)", p, i.NumPieces()))
	}
	if p == i.NumPieces()-1 {
		return i.length - int64(i.NumPieces()-1)*i.pieceLength
	}
	return i.pieceLength
}

// IsMultiFile reports whether this torrent has more than one file.
func (i *Info) IsMultiFile() bool { return i.files != nil }

// Files returns the ordered file layout. For a single-file torrent this
// returns one entry named i.Name().
func (i *Info) Files() []FileEntry {
	if i.files != nil {
		return i.files
	}
	return []FileEntry{{Path: i.name, Length: i.length}}
}

// Parse decodes a metainfo file's raw bytes into an Info.
func Parse(raw []byte) (*Info, error) {
	v, err := bencode.DecodeAll(raw)
	if err != nil {
		return nil, &InvalidMetainfoError{fmt.Sprintf("bencode decode: %s", err)}
	}
	info, err := fromValue(v)
	if err != nil {
		return nil, err
	}
	info.raw = append([]byte(nil), raw...)
	return info, nil
}

func fromValue(v bencode.Value) (*Info, error) {
	announce, ok := v.Dict("announce").AsString()
	if !ok {
		return nil, &InvalidMetainfoError{"missing or non-string 'announce'"}
	}

	var announceList []string
	if al := v.Dict("announce-list"); al.Kind() == bencode.KindList {
		for _, tier := range al.Elements() {
			if tier.Kind() != bencode.KindList || tier.Len() == 0 {
				continue
			}
			// Only the first entry of each inner list is used.
			if s, ok := tier.Index(0).AsString(); ok && s != announce {
				announceList = append(announceList, s)
			}
		}
	}

	infoDict, err := v.Dict("info").ExpectDict()
	if err != nil {
		return nil, &InvalidMetainfoError{"missing or non-dict 'info'"}
	}

	name, ok := infoDict.Dict("name").AsString()
	if !ok {
		return nil, &InvalidMetainfoError{"missing or non-string 'info.name'"}
	}

	pieceLength, err := infoDict.Dict("piece length").ExpectInt()
	if err != nil {
		return nil, &InvalidMetainfoError{"missing or non-int 'info.piece length'"}
	}
	if pieceLength <= 0 {
		return nil, &InvalidMetainfoError{"'info.piece length' must be positive"}
	}

	piecesRaw, err := infoDict.Dict("pieces").ExpectBytes()
	if err != nil {
		return nil, &InvalidMetainfoError{"missing or non-bytes 'info.pieces'"}
	}
	if len(piecesRaw)%20 != 0 {
		return nil, &InvalidMetainfoError{"'info.pieces' length is not a multiple of 20"}
	}
	pieceHashes := make([][20]byte, len(piecesRaw)/20)
	for i := range pieceHashes {
		copy(pieceHashes[i][:], piecesRaw[i*20:(i+1)*20])
	}
	if len(pieceHashes) == 0 {
		return nil, &InvalidMetainfoError{"torrent has zero pieces"}
	}

	var length int64
	var files []FileEntry

	if lengthVal := infoDict.Dict("length"); !lengthVal.IsNull() {
		length, err = lengthVal.ExpectInt()
		if err != nil {
			return nil, &InvalidMetainfoError{"non-int 'info.length'"}
		}
	} else if filesVal := infoDict.Dict("files"); filesVal.Kind() == bencode.KindList {
		for idx, fv := range filesVal.Elements() {
			fileLen, err := fv.Dict("length").ExpectInt()
			if err != nil {
				return nil, &InvalidMetainfoError{fmt.Sprintf("file %d: missing or non-int 'length'", idx)}
			}
			pathList, err := fv.Dict("path").ExpectList()
			if err != nil || pathList.Len() == 0 {
				return nil, &InvalidMetainfoError{fmt.Sprintf("file %d: missing or empty 'path'", idx)}
			}
			segments := make([]string, pathList.Len())
			for j, seg := range pathList.Elements() {
				s, ok := seg.AsString()
				if !ok {
					return nil, &InvalidMetainfoError{fmt.Sprintf("file %d: non-string path segment", idx)}
				}
				segments[j] = s
			}
			files = append(files, FileEntry{
				Path:   filepath.Join(segments...),
				Length: fileLen,
			})
			length += fileLen
		}
		if len(files) == 0 {
			return nil, &InvalidMetainfoError{"'info.files' is empty"}
		}
	} else {
		return nil, &InvalidMetainfoError{"'info' has neither 'length' nor 'files'"}
	}

	lastPieceLength := length - int64(len(pieceHashes)-1)*pieceLength
	if lastPieceLength <= 0 || lastPieceLength > pieceLength {
		return nil, &InvalidMetainfoError{"length is inconsistent with piece length and piece count"}
	}

	infoHash := core.NewInfoHashFromBytes(bencode.Encode(infoDict))

	return &Info{
		announce:     announce,
		announceList: announceList,
		infoHash:     infoHash,
		name:         name,
		pieceLength:  pieceLength,
		pieceHashes:  pieceHashes,
		length:       length,
		files:        files,
	}, nil
}
