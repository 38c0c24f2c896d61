// Package record provides a byte-level view over a single BAM alignment
// record (the RawRecord accessor and field catalog), and the arithmetic
// needed to derive per-field offsets and lengths from the BAM header without
// ever parsing the record into a higher-level object.
package record

import (
	"encoding/binary"
	"fmt"
)

// Field names a single column of a BAM record. On disk a column is
// identified by its String() name (the FileMeta.Fields key), not by its
// numeric value; the numeric value only orders the catalog.
type Field uint8

const (
	RefID Field = iota
	Pos
	lName // header-only: length of ReadName. Not a stored column.
	Mapq
	bin // header-only: BAI bin. Not a stored column.
	nCigarOp
	Flags
	seqLen // header-only: length of RawSeq/RawQual. Not a stored column.
	NextRefID
	NextPos
	TemplateLength
	ReadName
	RawCigar
	RawSeq
	RawQual
	RawTags

	numFields
)

// NumFields is the number of distinct Field values, including the
// header-only ones that are never written as columns.
const NumFields = int(numFields)

var fieldNames = [numFields]string{
	RefID:          "refid",
	Pos:            "pos",
	lName:          "lname",
	Mapq:           "mapq",
	bin:            "bin",
	nCigarOp:       "ncigar",
	Flags:          "flags",
	seqLen:         "seqlen",
	NextRefID:      "materefid",
	NextPos:        "matepos",
	TemplateLength: "templen",
	ReadName:       "name",
	RawCigar:       "cigar",
	RawSeq:         "seq",
	RawQual:        "qual",
	RawTags:        "tags",
}

// String returns the on-disk name of the field. It is used verbatim as the
// FileMeta.Fields map key, so it must not change once a file exists.
func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field%d", f)
}

// Width is either fixed (Type==Fixed, Bytes is the per-record width) or
// variable (Type==Variable; Bytes is meaningless and IndexField names the
// companion fixed field that stores cumulative end-of-record offsets).
type Width struct {
	Type       WidthType
	Bytes      int
	IndexField Field
}

// WidthType distinguishes fixed- from variable-width fields.
type WidthType int

const (
	Fixed WidthType = iota
	Variable
)

// IndexFieldSize is the byte width of every companion index field: a u32 LE
// cumulative byte offset.
const IndexFieldSize = 4

var catalog = [numFields]Width{
	RefID:          {Type: Fixed, Bytes: 4},
	Pos:            {Type: Fixed, Bytes: 4},
	lName:          {Type: Fixed, Bytes: 1},
	Mapq:           {Type: Fixed, Bytes: 1},
	bin:            {Type: Fixed, Bytes: 2},
	nCigarOp:       {Type: Fixed, Bytes: 2},
	Flags:          {Type: Fixed, Bytes: 2},
	seqLen:         {Type: Fixed, Bytes: 4},
	NextRefID:      {Type: Fixed, Bytes: 4},
	NextPos:        {Type: Fixed, Bytes: 4},
	TemplateLength: {Type: Fixed, Bytes: 4},
	ReadName:       {Type: Variable},
	RawCigar:       {Type: Variable},
	RawSeq:         {Type: Variable},
	RawQual:        {Type: Variable},
	RawTags:        {Type: Variable},
}

// dataBearing lists the columns that are actually persisted by the columnar
// writer. lName, bin, nCigarOp and seqLen are BAM-header bookkeeping fields
// and are not stored. lName, nCigarOp and seqLen are recoverable from the
// lengths of the variable fields they bound (e.g. ReadName's index delta
// gives lName back); bin is not recovered, and Assembled writes it as zero.
var dataBearing = [numFields]bool{
	RefID:          true,
	Pos:            true,
	Mapq:           true,
	Flags:          true,
	NextRefID:      true,
	NextPos:        true,
	TemplateLength: true,
	ReadName:       true,
	RawCigar:       true,
	RawSeq:         true,
	RawQual:        true,
	RawTags:        true,
}

// IsDataBearing reports whether a field is written to the file as a column
// in its own right.
func IsDataBearing(f Field) bool {
	return int(f) < len(dataBearing) && dataBearing[f]
}

// DataFields returns the data-bearing fields in catalog order.
func DataFields() []Field {
	fields := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		if IsDataBearing(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// TypeOf returns whether f is fixed- or variable-width.
func TypeOf(f Field) WidthType {
	return catalog[f].Type
}

// FixedWidth returns the per-record byte width of a fixed field. It panics
// if f is variable-width, which is always a caller bug.
func FixedWidth(f Field) int {
	w := catalog[f]
	if w.Type != Fixed {
		panic(fmt.Sprintf("record: %v is not a fixed-width field", f))
	}
	return w.Bytes
}

// IndexFieldName returns the name used for f's companion index column. Index
// columns are not part of the Field enum; they are addressed by name only,
// since FileMeta indexes fields by name.
func IndexFieldName(f Field) string {
	if catalog[f].Type != Variable {
		panic(fmt.Sprintf("record: %v has no companion index field", f))
	}
	return f.String() + ".index"
}

// PutIndexEntry encodes a cumulative end-of-record byte offset as the u32 LE
// companion index value.
func PutIndexEntry(buf []byte, endOffset uint32) {
	binary.LittleEndian.PutUint32(buf, endOffset)
}
