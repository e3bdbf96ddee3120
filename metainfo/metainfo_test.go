package metainfo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmoresh/torrentd/bencode"
)

func TestParseSingleFile(t *testing.T) {
	require := require.New(t)

	content := make([]byte, 1_000_000)
	for i := range content {
		content[i] = byte(i)
	}
	raw := Build("file.bin", content, 262144, "http://tracker.test/announce")

	info, err := Parse(raw)
	require.NoError(err)
	require.Equal(int64(1_000_000), info.Length())
	require.Equal(4, info.NumPieces())
	require.Equal(int64(262144), info.PieceLength(0))
	require.Equal(int64(1_000_000)-3*262144, info.PieceLength(3))
	require.False(info.IsMultiFile())
	require.Equal("http://tracker.test/announce", info.Announce())
}

func TestInfoHashIsDeterministic(t *testing.T) {
	require := require.New(t)

	content := []byte("hello world, this is a fixture torrent payload")
	raw := Build("f", content, 16, "http://t/a")
	info1, err := Parse(raw)
	require.NoError(err)
	info2, err := Parse(raw)
	require.NoError(err)
	require.Equal(info1.InfoHash(), info2.InfoHash())
}

func TestParseMultiFile(t *testing.T) {
	require := require.New(t)

	raw := []byte("d8:announce10:http://t/a4:infod5:filesld6:lengthi10e4:pathl3:dir5:a.txteed6:lengthi20e4:pathl3:dir5:b.txteee4:name4:root12:piece lengthi16e6:pieces40:" +
		string(make([]byte, 40)) + "ee")
	info, err := Parse(raw)
	require.NoError(err)
	require.True(info.IsMultiFile())
	require.Equal(int64(30), info.Length())
	files := info.Files()
	require.Len(files, 2)
	require.Equal("dir/a.txt", files[0].Path)
	require.Equal(int64(10), files[0].Length)
	require.Equal("dir/b.txt", files[1].Path)
	require.Equal(int64(20), files[1].Length)
}

func TestParseRejectsMissingAnnounce(t *testing.T) {
	require := require.New(t)
	_, err := Parse([]byte("d4:infod4:name1:n12:piece lengthi16e6:pieces0:6:lengthi0eee"))
	require.Error(err)
}

func TestParseRejectsBadPieces(t *testing.T) {
	require := require.New(t)
	_, err := Parse([]byte("d8:announce1:a4:infod4:name1:n12:piece lengthi16e6:pieces3:abc6:lengthi0eee"))
	require.Error(err)
}

func TestAnnounceListUsesOnlyFirstOfEachTier(t *testing.T) {
	require := require.New(t)
	content := []byte("x")
	raw := Build("f", content, 16, "http://primary/a")
	v, err := Parse(raw)
	require.NoError(err)
	require.Empty(v.AnnounceList())

	root, err := bencode.DecodeAll(raw)
	require.NoError(err)
	root = root.Set("announce-list", bencode.List(
		bencode.List(bencode.String("http://t1/a"), bencode.String("http://t1/b")),
		bencode.List(bencode.String("http://t2/a")),
	))
	v, err = Parse(bencode.Encode(root))
	require.NoError(err)
	require.Equal([]string{"http://t1/a", "http://t2/a"}, v.AnnounceList())
}
