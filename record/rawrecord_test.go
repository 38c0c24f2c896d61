package record

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRecord constructs a minimal well-formed BAM-layout record for tests.
func buildRecord(refID, pos int32, name string, cigar []uint32, seqLen int, tags []byte) Raw {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(refID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pos))
	buf[8] = byte(len(name))
	buf[9] = 60 // mapq
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(cigar)))
	binary.LittleEndian.PutUint16(buf[14:16], 0)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(seqLen))
	binary.LittleEndian.PutUint32(buf[20:24], 0xffffffff)
	binary.LittleEndian.PutUint32(buf[24:28], 0xffffffff)
	binary.LittleEndian.PutUint32(buf[28:32], 0)

	buf = append(buf, []byte(name)...)
	for _, op := range cigar {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], op)
		buf = append(buf, tmp[:]...)
	}
	buf = append(buf, make([]byte, (seqLen+1)/2)...) // packed seq
	buf = append(buf, make([]byte, seqLen)...)        // qual
	buf = append(buf, tags...)
	return Raw(buf)
}

func TestRawRecordFixedFields(t *testing.T) {
	r := buildRecord(3, 100, "read1\x00", nil, 4, nil)
	require.NoError(t, r.Validate())
	assert.Equal(t, int32(3), int32(binary.LittleEndian.Uint32(r.GetBytes(RefID))))
	assert.Equal(t, int32(100), int32(binary.LittleEndian.Uint32(r.GetBytes(Pos))))
	assert.Equal(t, byte(60), r.GetBytes(Mapq)[0])
}

func TestRawRecordVariableFields(t *testing.T) {
	name := "read1\x00"
	cigar := []uint32{(50 << 4) | cigarOpM}
	r := buildRecord(0, 0, name, cigar, 10, []byte{'N', 'M', 'i', 1, 0, 0, 0})
	require.NoError(t, r.Validate())
	assert.Equal(t, []byte(name), r.GetBytes(ReadName))
	assert.Len(t, r.GetBytes(RawCigar), 4)
	assert.Len(t, r.GetBytes(RawSeq), 5)
	assert.Len(t, r.GetBytes(RawQual), 10)
	assert.Equal(t, []byte{'N', 'M', 'i', 1, 0, 0, 0}, r.GetBytes(RawTags))
}

func TestRawRecordValidateRejectsTruncated(t *testing.T) {
	r := buildRecord(0, 0, "x\x00", []uint32{1 << 4}, 2, nil)
	truncated := Raw(r[:len(r)-2])
	assert.Error(t, truncated.Validate())
}

func TestBaseCoverage(t *testing.T) {
	// 10M 2I 5D 3S -> consumes 10 (M) + 5 (D) = 15 reference bases.
	cigar := []byte{}
	appendOp := func(length, op uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], (length<<4)|op)
		cigar = append(cigar, tmp[:]...)
	}
	appendOp(10, cigarOpM)
	appendOp(2, 1) // I
	appendOp(5, cigarOpD)
	appendOp(3, 4) // S
	assert.Equal(t, uint32(15), BaseCoverage(cigar))
}

func TestDataFieldsExcludesHeaderOnly(t *testing.T) {
	for _, f := range DataFields() {
		assert.True(t, IsDataBearing(f))
	}
	assert.False(t, IsDataBearing(lName))
	assert.False(t, IsDataBearing(nCigarOp))
	assert.False(t, IsDataBearing(seqLen))
	assert.False(t, IsDataBearing(bin))
}
