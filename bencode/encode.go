package bencode

import (
	"fmt"
	"strconv"
)

// Encode writes the canonical bencode representation of v: dictionary
// keys are sorted by ascending raw byte value, which is load-bearing
// because info-hash is SHA-1 over this exact output.
func Encode(v Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = strconv.AppendInt(buf, v.i, 10)
		buf = append(buf, 'e')
		return buf
	case KindBytes:
		buf = strconv.AppendInt(buf, int64(len(v.bytes)), 10)
		buf = append(buf, ':')
		buf = append(buf, v.bytes...)
		return buf
	case KindList:
		buf = append(buf, 'l')
		for _, item := range v.list {
			buf = appendValue(buf, item)
		}
		buf = append(buf, 'e')
		return buf
	case KindDict:
		buf = append(buf, 'd')
		for _, e := range sortDictKeys(v.dict) {
			buf = appendValue(buf, Bytes([]byte(e.key)))
			buf = appendValue(buf, e.value)
		}
		buf = append(buf, 'e')
		return buf
	case KindNull:
		// Null never appears in a well-formed tree being encoded; encoding
		// it as an empty byte string keeps Encode total rather than
		// panicking on a caller bug that slipped a sentinel into a tree.
		return append(buf, '0', ':')
	default:
		panic(fmt.Sprintf("bencode: unknown kind %d", v.kind))
	}
}
