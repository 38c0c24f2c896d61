package record

import "encoding/binary"

// Assembled rebuilds a record.Raw from a columnar reader's per-field column
// values. Four header fields (l_read_name, bin, n_cigar_op, l_seq) are never
// stored as their own columns (see dataBearing); Assembled recovers three of
// them arithmetically from the variable fields' own lengths. bin is the
// exception: it is a BAM/BAI index bucket computed from an alignment's
// reference span, not recoverable from any stored column, and nothing this
// module reads (record.Raw accessors, the depth engine) ever consults it, so
// Assembled always writes zero. A Raw built this way is valid for every
// accessor in this package but is not a byte-faithful copy of a BAM record
// that external BAI tooling could re-bin.
func Assembled(refID, pos int32, mapq uint8, flags uint16, nextRefID, nextPos, templateLength int32, readName, rawCigar, rawSeq, rawQual, rawTags []byte) Raw {
	lSeq := int32(len(rawQual))
	buf := make([]byte, HeaderSize+len(readName)+len(rawCigar)+len(rawSeq)+len(rawQual)+len(rawTags))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(refID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pos))
	buf[8] = uint8(len(readName))
	buf[9] = mapq
	binary.LittleEndian.PutUint16(buf[10:12], 0) // bin: see doc comment
	binary.LittleEndian.PutUint16(buf[12:14], uint16(len(rawCigar)/4))
	binary.LittleEndian.PutUint16(buf[14:16], flags)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(lSeq))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(nextRefID))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(nextPos))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(templateLength))

	off := HeaderSize
	off += copy(buf[off:], readName)
	off += copy(buf[off:], rawCigar)
	off += copy(buf[off:], rawSeq)
	off += copy(buf[off:], rawQual)
	copy(buf[off:], rawTags)

	return Raw(buf)
}
