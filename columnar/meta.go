package columnar

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/pkg/errors"
)

// FormatVersion is written into every file's FileInfo preamble.
var FormatVersion = [2]uint16{1, 0}

// FileInfoSize is the fixed size, in bytes, of the reserved preamble at
// offset 0 of every file: version[2] u16 LE, meta_seek u64 LE, crc32 u32 LE.
const FileInfoSize = 2*2 + 8 + 4

// FileInfo is the fixed-size header written at offset 0.
type FileInfo struct {
	Version  [2]uint16
	MetaSeek uint64
	CRC32    uint32
}

// Marshal encodes the header into exactly FileInfoSize bytes.
func (fi FileInfo) Marshal() []byte {
	buf := make([]byte, FileInfoSize)
	binary.LittleEndian.PutUint16(buf[0:2], fi.Version[0])
	binary.LittleEndian.PutUint16(buf[2:4], fi.Version[1])
	binary.LittleEndian.PutUint64(buf[4:12], fi.MetaSeek)
	binary.LittleEndian.PutUint32(buf[12:16], fi.CRC32)
	return buf
}

// UnmarshalFileInfo decodes a FileInfo from the file's first FileInfoSize
// bytes.
func UnmarshalFileInfo(buf []byte) (FileInfo, error) {
	var fi FileInfo
	if len(buf) < FileInfoSize {
		return fi, errors.Errorf("columnar: short file header (%d bytes, want %d)", len(buf), FileInfoSize)
	}
	fi.Version[0] = binary.LittleEndian.Uint16(buf[0:2])
	fi.Version[1] = binary.LittleEndian.Uint16(buf[2:4])
	fi.MetaSeek = binary.LittleEndian.Uint64(buf[4:12])
	fi.CRC32 = binary.LittleEndian.Uint32(buf[12:16])
	return fi, nil
}

// BlockMeta describes one closed, compressed block of a single field. For
// variable fields the block's item count matches the companion index
// block's item count one-for-one.
type BlockMeta struct {
	SeekPos  uint64 `json:"seekpos"`
	NumItems uint32 `json:"numitems"`
	MinValue []byte `json:"min_value,omitempty"`
	MaxValue []byte `json:"max_value,omitempty"`
}

// FieldMeta is the footer entry for one field: its ordered blocks, and the
// parallel list of compressed block sizes.
type FieldMeta struct {
	Blocks     []BlockMeta `json:"blocks"`
	BlockSizes []uint32    `json:"block_sizes"`
}

// RefSeq names one reference sequence and its length.
type RefSeq struct {
	Name   string `json:"name"`
	Length int32  `json:"length"`
}

// FileMeta is the JSON-encoded footer. It is built incrementally while
// writing, and is immutable once a file is opened for reading.
type FileMeta struct {
	CodecPerField map[string]Codec     `json:"codec_per_field"`
	RefSeqs       []RefSeq             `json:"ref_seqs"`
	Fields        map[string]FieldMeta `json:"fields"`
}

// NewFileMeta creates an empty footer for the given reference list.
// CodecPerField and Fields start empty, and codec is not recorded here; the
// Writer fills in each field's codec and adds a field's Fields entry when its
// first block is committed.
func NewFileMeta(codec Codec, refSeqs []RefSeq) *FileMeta {
	return &FileMeta{
		CodecPerField: make(map[string]Codec),
		RefSeqs:       refSeqs,
		Fields:        make(map[string]FieldMeta),
	}
}

// Marshal serializes the footer to JSON.
func (m *FileMeta) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "columnar: marshal file meta")
}

// UnmarshalFileMeta parses a JSON footer.
func UnmarshalFileMeta(b []byte) (*FileMeta, error) {
	var m FileMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "columnar: unmarshal file meta")
	}
	return &m, nil
}

// CRC32 computes the footer checksum (IEEE polynomial, hash/crc32's
// default).
func CRC32(metaBytes []byte) uint32 {
	return crc32.ChecksumIEEE(metaBytes)
}

// RefSeqIndex returns the index of chr within refSeqs, or -1.
func RefSeqIndex(refSeqs []RefSeq, chr string) int {
	for i, rs := range refSeqs {
		if rs.Name == chr {
			return i
		}
	}
	return -1
}
