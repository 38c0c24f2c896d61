package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileInfoRoundTrip(t *testing.T) {
	fi := FileInfo{Version: FormatVersion, MetaSeek: 12345, CRC32: 0xdeadbeef}
	buf := fi.Marshal()
	require.Len(t, buf, FileInfoSize)

	got, err := UnmarshalFileInfo(buf)
	require.NoError(t, err)
	assert.Equal(t, fi, got)
}

func TestUnmarshalFileInfoRejectsShortBuffer(t *testing.T) {
	_, err := UnmarshalFileInfo([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestFileMetaRoundTrip(t *testing.T) {
	m := NewFileMeta(CodecZstd, []RefSeq{{Name: "chr1", Length: 100}})
	m.Fields["pos"] = FieldMeta{
		Blocks:     []BlockMeta{{SeekPos: 16, NumItems: 3, MinValue: []byte{0, 0, 0, 0}, MaxValue: []byte{9, 0, 0, 0}}},
		BlockSizes: []uint32{42},
	}
	b, err := m.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalFileMeta(b)
	require.NoError(t, err)
	assert.Equal(t, m.RefSeqs, got.RefSeqs)
	assert.Equal(t, m.Fields["pos"], got.Fields["pos"])
}

func TestCRC32MatchesIEEE(t *testing.T) {
	assert.Equal(t, uint32(0xcbf43926), CRC32([]byte("123456789")))
}

func TestRefSeqIndex(t *testing.T) {
	refSeqs := []RefSeq{{Name: "chr1"}, {Name: "chr2"}}
	assert.Equal(t, 1, RefSeqIndex(refSeqs, "chr2"))
	assert.Equal(t, -1, RefSeqIndex(refSeqs, "chrX"))
}
