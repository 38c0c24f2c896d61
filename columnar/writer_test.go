package columnar

import (
	"testing"

	"github.com/grailbio/gbam/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticRecord(refID, pos int32, name string, cigar []uint32, seqLen int) record.Raw {
	rawCigar := make([]byte, 4*len(cigar))
	for i, op := range cigar {
		rawCigar[4*i] = byte(op)
		rawCigar[4*i+1] = byte(op >> 8)
		rawCigar[4*i+2] = byte(op >> 16)
		rawCigar[4*i+3] = byte(op >> 24)
	}
	seq := make([]byte, (seqLen+1)/2)
	qual := make([]byte, seqLen)
	for i := range qual {
		qual[i] = byte(30 + i%10)
	}
	return record.Assembled(refID, pos, 60, 0, -1, -1, 0, []byte(name), rawCigar, seq, qual, nil)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	sink := &memSink{}
	refSeqs := []RefSeq{{Name: "chr1", Length: 1000}, {Name: "chr2", Length: 500}}
	w := New(sink, CodecNone, 2, refSeqs)

	records := []record.Raw{
		syntheticRecord(0, 10, "read-a", []uint32{(5 << 4) | 0}, 5),
		syntheticRecord(0, 20, "read-b", []uint32{(10 << 4) | 0}, 10),
		syntheticRecord(1, 5, "read-c", []uint32{(3 << 4) | 0, (2 << 4) | 2}, 3),
	}
	for _, r := range records {
		w.PushRecord(r)
	}
	total, err := w.Finish()
	require.NoError(t, err)
	require.Greater(t, total, uint64(0))
	require.NoError(t, w.Err())

	reader, err := Open(sink, sink.Len())
	require.NoError(t, err)
	require.EqualValues(t, len(records), reader.NumRecords())

	for i, want := range records {
		got, err := reader.FillRecord(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, want.GetBytes(record.RefID), got.GetBytes(record.RefID))
		assert.Equal(t, want.GetBytes(record.Pos), got.GetBytes(record.Pos))
		assert.Equal(t, want.GetBytes(record.ReadName), got.GetBytes(record.ReadName))
		assert.Equal(t, want.GetBytes(record.RawCigar), got.GetBytes(record.RawCigar))
		assert.Equal(t, want.GetBytes(record.RawQual), got.GetBytes(record.RawQual))
	}
}

func TestWriterEmptyFile(t *testing.T) {
	sink := &memSink{}
	w := New(sink, CodecZstd, 1, nil)
	_, err := w.Finish()
	require.NoError(t, err)

	reader, err := Open(sink, sink.Len())
	require.NoError(t, err)
	assert.EqualValues(t, 0, reader.NumRecords())
}

func TestWriterBlockBoundarySpan(t *testing.T) {
	sink := &memSink{}
	w := New(sink, CodecSnappy, 3, nil)

	// Read names near BAM's 255-byte limit (l_read_name is a uint8), so a
	// thousand records force several ReadName blocks to close, while RefID
	// (4 bytes/record) stays within a single block -- exercising
	// independently-sized block grids per field.
	longName := make([]byte, 250)
	for i := range longName {
		longName[i] = byte('A' + i%26)
	}
	const n = 1000
	var want []record.Raw
	for i := 0; i < n; i++ {
		r := syntheticRecord(int32(i%3), int32(i*10), string(longName), []uint32{(4 << 4) | 0}, 4)
		want = append(want, r)
		w.PushRecord(r)
	}
	_, err := w.Finish()
	require.NoError(t, err)
	require.NoError(t, w.Err())

	reader, err := Open(sink, sink.Len())
	require.NoError(t, err)
	require.EqualValues(t, n, reader.NumRecords())

	refIDMeta := reader.Meta().Fields[record.RefID.String()]
	nameMeta := reader.Meta().Fields[record.ReadName.String()]
	assert.Greater(t, len(nameMeta.Blocks), len(refIDMeta.Blocks), "long variable field should split into more blocks than a small fixed field")

	for i, r := range want {
		got, err := reader.FillRecord(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, r.GetBytes(record.RefID), got.GetBytes(record.RefID))
		assert.Equal(t, r.GetBytes(record.ReadName), got.GetBytes(record.ReadName))
	}
}

func TestReaderFillFieldsTemplate(t *testing.T) {
	sink := &memSink{}
	w := New(sink, CodecNone, 1, nil)

	records := []record.Raw{
		syntheticRecord(0, 10, "read-a", []uint32{(5 << 4) | 0}, 5),
		syntheticRecord(2, 40, "read-b", []uint32{(10 << 4) | 2}, 10),
	}
	for _, r := range records {
		w.PushRecord(r)
	}
	_, err := w.Finish()
	require.NoError(t, err)

	reader, err := Open(sink, sink.Len())
	require.NoError(t, err)

	tmpl := NewTemplate(record.RefID, record.Pos, record.Mapq, record.RawCigar)
	for i, want := range records {
		got, err := reader.FillFields(uint32(i), tmpl)
		require.NoError(t, err)
		assert.Equal(t, want.GetBytes(record.RefID), got.RefID)
		assert.Equal(t, want.GetBytes(record.Pos), got.Pos)
		assert.Equal(t, want.GetBytes(record.Mapq), got.Mapq)
		assert.Equal(t, want.GetBytes(record.RawCigar), got.RawCigar)

		// Fields outside the template are never materialized.
		assert.Nil(t, got.ReadName)
		assert.Nil(t, got.RawSeq)
		assert.Nil(t, got.RawQual)
		assert.Nil(t, got.RawTags)
	}
}

func TestFindLeftmostRightmostBlock(t *testing.T) {
	fm := FieldMeta{
		Blocks: []BlockMeta{
			{MinValue: []byte{0, 0, 0, 0}, MaxValue: []byte{2, 0, 0, 0}},
			{MinValue: []byte{3, 0, 0, 0}, MaxValue: []byte{5, 0, 0, 0}},
			{MinValue: []byte{6, 0, 0, 0}, MaxValue: []byte{9, 0, 0, 0}},
		},
	}
	assert.Equal(t, 1, FindLeftmostBlock(fm, 4))
	assert.Equal(t, 2, FindRightmostBlock(fm, 4))
	assert.Equal(t, 0, FindLeftmostBlock(fm, 0))
	assert.Equal(t, 3, FindRightmostBlock(fm, 100))
}
