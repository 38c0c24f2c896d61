package record

import (
	"encoding/binary"
	"strconv"

	"v.io/x/lib/vlog"
)

// HeaderSize is the size, in bytes, of the fixed BAM record preamble that
// precedes read-name/CIGAR/sequence/qualities/tags.
const HeaderSize = 32

// Raw is a read-only view over one BAM-layout record. It never copies the
// underlying bytes; GetBytes returns subslices of Raw directly.
//
// Layout (little-endian throughout):
//
//	0  refID          int32
//	4  pos             int32
//	8  l_read_name     uint8
//	9  mapq            uint8
//	10 bin             uint16
//	12 n_cigar_op      uint16
//	14 flags           uint16
//	16 l_seq           int32
//	20 next_refID      int32
//	24 next_pos        int32
//	28 tlen            int32
//	32 read_name       [l_read_name]byte
//	.. cigar           [n_cigar_op]uint32
//	.. seq             [(l_seq+1)/2]byte
//	.. qual            [l_seq]byte
//	.. tags            to end of record
//
// Invariant: for any field F, offset(F)+len(F) <= len(record).
type Raw []byte

// unsupported is a programmer error: the caller asked for a field this
// accessor does not know how to slice out. Fail fast.
func unsupported(f Field) {
	vlog.Panicf("record: unsupported field %v", f)
}

func (r Raw) lReadName() uint8 { return r[8] }
func (r Raw) nCigarOp() uint16 { return binary.LittleEndian.Uint16(r[12:14]) }
func (r Raw) lSeq() uint32     { return binary.LittleEndian.Uint32(r[16:20]) }

func (r Raw) cigarOffset() int { return HeaderSize + int(r.lReadName()) }
func (r Raw) seqOffset() int   { return r.cigarOffset() + 4*int(r.nCigarOp()) }
func (r Raw) qualOffset() int  { return r.seqOffset() + int((r.lSeq()+1)/2) }
func (r Raw) tagsOffset() int  { return r.qualOffset() + int(r.lSeq()) }

// Len returns the byte length of field f within this record.
func (r Raw) Len(f Field) int {
	switch f {
	case RefID, Pos, NextRefID, NextPos, TemplateLength, seqLen:
		return 4
	case lName, Mapq:
		return 1
	case bin, nCigarOp, Flags:
		return 2
	case ReadName:
		return int(r.lReadName())
	case RawCigar:
		return 4 * int(r.nCigarOp())
	case RawSeq:
		return int((r.lSeq() + 1) / 2)
	case RawQual:
		return int(r.lSeq())
	case RawTags:
		return len(r) - r.tagsOffset()
	default:
		unsupported(f)
		return 0
	}
}

// offset returns the byte offset of field f within this record.
func (r Raw) offset(f Field) int {
	switch f {
	case RefID:
		return 0
	case Pos:
		return 4
	case lName:
		return 8
	case Mapq:
		return 9
	case bin:
		return 10
	case nCigarOp:
		return 12
	case Flags:
		return 14
	case seqLen:
		return 16
	case NextRefID:
		return 20
	case NextPos:
		return 24
	case TemplateLength:
		return 28
	case ReadName:
		return HeaderSize
	case RawCigar:
		return r.cigarOffset()
	case RawSeq:
		return r.seqOffset()
	case RawQual:
		return r.qualOffset()
	case RawTags:
		return r.tagsOffset()
	default:
		unsupported(f)
		return 0
	}
}

// GetBytes returns a zero-copy view of field f's bytes within r.
//
// REQUIRES: r is well-formed (the header-derived lengths do not run past
// len(r)); callers that read untrusted input should check that invariant
// first (see Validate).
func (r Raw) GetBytes(f Field) []byte {
	off := r.offset(f)
	n := r.Len(f)
	return r[off : off+n]
}

// Validate reports whether every header-derived field fits within r. Callers
// must run this once on untrusted input before calling GetBytes, since
// GetBytes itself assumes a well-formed record and will panic or misbehave
// otherwise.
func (r Raw) Validate() error {
	if len(r) < HeaderSize {
		return errTooShort(len(r), HeaderSize)
	}
	end := r.tagsOffset()
	if end > len(r) {
		return errTooShort(len(r), end)
	}
	return nil
}

func errTooShort(got, want int) error {
	return &malformedRecordError{got: got, want: want}
}

type malformedRecordError struct {
	got, want int
}

func (e *malformedRecordError) Error() string {
	return "record: header-derived length exceeds record size (have " +
		strconv.Itoa(e.got) + " bytes, need at least " + strconv.Itoa(e.want) + ")"
}
