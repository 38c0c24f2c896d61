package columnar

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/grailbio/gbam/record"
	"github.com/pkg/errors"
)

// Source is what a Reader reads from: a random-access, sized byte stream.
type Source interface {
	io.ReaderAt
}

// Open reads a Source's FileInfo preamble and FileMeta footer and returns a
// Reader ready to serve FillRecord calls.
func Open(src Source, size int64) (*Reader, error) {
	header := make([]byte, FileInfoSize)
	if _, err := src.ReadAt(header, 0); err != nil {
		return nil, errors.Wrap(err, "columnar: read file header")
	}
	fi, err := UnmarshalFileInfo(header)
	if err != nil {
		return nil, err
	}
	if fi.Version != FormatVersion {
		return nil, errors.Errorf("columnar: unsupported format version %v (want %v)", fi.Version, FormatVersion)
	}
	metaLen := size - int64(fi.MetaSeek)
	if metaLen <= 0 {
		return nil, errors.Errorf("columnar: meta_seek %d past end of file (size %d)", fi.MetaSeek, size)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := src.ReadAt(metaBytes, int64(fi.MetaSeek)); err != nil {
		return nil, errors.Wrap(err, "columnar: read file meta")
	}
	if crc := CRC32(metaBytes); crc != fi.CRC32 {
		return nil, errors.Errorf("columnar: footer checksum mismatch (have %08x, want %08x)", crc, fi.CRC32)
	}
	meta, err := UnmarshalFileMeta(metaBytes)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:     src,
		meta:    meta,
		columns: make(map[string]*column),
		cache:   make(map[cacheKey][]byte),
	}
	for name, fm := range meta.Fields {
		codec := meta.CodecPerField[name]
		r.columns[name] = newColumn(name, codec, fm)
	}
	return r, nil
}

// column is one field (or index field)'s block layout, with a prefix sum of
// block item counts so a global row index can be mapped to (block, offset).
type column struct {
	name       string
	codec      Codec
	meta       FieldMeta
	cumulative []uint32 // cumulative[i] = total items in blocks [0, i)
}

func newColumn(name string, codec Codec, fm FieldMeta) *column {
	cumulative := make([]uint32, len(fm.Blocks)+1)
	for i, b := range fm.Blocks {
		cumulative[i+1] = cumulative[i] + b.NumItems
	}
	return &column{name: name, codec: codec, meta: fm, cumulative: cumulative}
}

// numRows is the total item count across every block of this column.
func (c *column) numRows() uint32 {
	if len(c.cumulative) == 0 {
		return 0
	}
	return c.cumulative[len(c.cumulative)-1]
}

// locate finds which block contains global row index idx, and the row's
// offset within that block.
func (c *column) locate(idx uint32) (block int, offset uint32, err error) {
	if idx >= c.numRows() {
		return 0, 0, errors.Errorf("columnar: row %d out of range for field %q (%d rows)", idx, c.name, c.numRows())
	}
	// cumulative is non-decreasing; find rightmost i with cumulative[i] <= idx.
	i := sort.Search(len(c.cumulative), func(i int) bool { return c.cumulative[i] > idx }) - 1
	return i, idx - c.cumulative[i], nil
}

type cacheKey struct {
	name  string
	block int
}

// Reader serves random-access reads of individual records out of a columnar
// file written by Writer. A Reader is not safe for concurrent use without
// external synchronization, since it caches the most recent decompressed
// block per field.
type Reader struct {
	src     Source
	meta    *FileMeta
	columns map[string]*column
	cache   map[cacheKey][]byte
}

// Meta returns the file's footer, for callers that need ref_seqs or raw
// field stats (e.g. the depth engine's block-skip optimization).
func (r *Reader) Meta() *FileMeta { return r.meta }

// Clone returns an independent Reader over the same Source and immutable
// FileMeta, with its own empty decompressed-block cache. The depth engine's
// worker ring uses this to give each concurrent per-reference scan its own
// cache, since a single Reader's cache is not safe for concurrent use.
func (r *Reader) Clone() *Reader {
	return &Reader{src: r.src, meta: r.meta, columns: r.columns, cache: make(map[cacheKey][]byte)}
}

// NumRecords is the total number of records in the file, taken from the
// RefID column (every data-bearing field has the same row count).
func (r *Reader) NumRecords() uint32 {
	c, ok := r.columns[record.RefID.String()]
	if !ok {
		return 0
	}
	return c.numRows()
}

// decompressBlock returns the decompressed bytes of column name's block b,
// populating the one-block-per-field cache on miss.
func (r *Reader) decompressBlock(name string, block int) ([]byte, error) {
	key := cacheKey{name, block}
	if buf, ok := r.cache[key]; ok {
		return buf, nil
	}
	c, ok := r.columns[name]
	if !ok {
		return nil, errors.Errorf("columnar: unknown field %q", name)
	}
	if block < 0 || block >= len(c.meta.Blocks) {
		return nil, errors.Errorf("columnar: block %d out of range for field %q", block, name)
	}
	bm := c.meta.Blocks[block]
	size := c.meta.BlockSizes[block]
	raw := make([]byte, size)
	if _, err := r.src.ReadAt(raw, int64(bm.SeekPos)); err != nil {
		return nil, errors.Wrapf(err, "columnar: read block %d of field %q", block, name)
	}
	out, err := c.codec.Decompress(nil, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "columnar: decompress block %d of field %q", block, name)
	}
	// One cached block per field: a reader is typically driven in row order,
	// so a field's previous block is very unlikely to be asked for again.
	for k := range r.cache {
		if k.name == name {
			delete(r.cache, k)
		}
	}
	r.cache[key] = out
	return out, nil
}

// FixedField returns row idx's raw bytes for fixed-width field f.
func (r *Reader) FixedField(f record.Field, idx uint32) ([]byte, error) {
	c, ok := r.columns[f.String()]
	if !ok {
		return nil, errors.Errorf("columnar: field %q not present in file", f)
	}
	block, offset, err := c.locate(idx)
	if err != nil {
		return nil, err
	}
	data, err := r.decompressBlock(c.name, block)
	if err != nil {
		return nil, err
	}
	width := record.FixedWidth(f)
	start := int(offset) * width
	if start+width > len(data) {
		return nil, errors.Errorf("columnar: field %q row %d out of bounds in block %d", f, idx, block)
	}
	return data[start : start+width], nil
}

// VariableField returns row idx's raw bytes for variable-width field f, read
// via its companion index column.
func (r *Reader) VariableField(f record.Field, idx uint32) ([]byte, error) {
	dataName := f.String()
	idxName := record.IndexFieldName(f)

	ic, ok := r.columns[idxName]
	if !ok {
		return nil, errors.Errorf("columnar: index field %q not present in file", idxName)
	}
	block, offset, err := ic.locate(idx)
	if err != nil {
		return nil, err
	}
	idxData, err := r.decompressBlock(idxName, block)
	if err != nil {
		return nil, err
	}
	end := binary.LittleEndian.Uint32(idxData[int(offset)*record.IndexFieldSize:])
	start := uint32(0)
	if offset > 0 {
		start = binary.LittleEndian.Uint32(idxData[int(offset-1)*record.IndexFieldSize:])
	}

	data, err := r.decompressBlock(dataName, block)
	if err != nil {
		return nil, err
	}
	if int(end) > len(data) || start > end {
		return nil, errors.Errorf("columnar: field %q row %d has corrupt index entry in block %d", f, idx, block)
	}
	return data[start:end], nil
}

// Template selects which data-bearing fields FillFields materializes for a
// row; fields outside the template are never fetched or decompressed.
type Template map[record.Field]bool

// NewTemplate builds a Template selecting exactly the given fields.
func NewTemplate(fields ...record.Field) Template {
	t := make(Template, len(fields))
	for _, f := range fields {
		t[f] = true
	}
	return t
}

// fullTemplate selects every data-bearing field; FillRecord uses it so its
// callers keep seeing a complete record.Raw.
var fullTemplate = NewTemplate(record.DataFields()...)

// PartialRecord holds the per-field bytes FillFields materialized for one
// row. A field's slice is nil unless the Template passed to FillFields named
// it.
type PartialRecord struct {
	RefID, Pos, Mapq, Flags, NextRefID, NextPos, TemplateLength []byte
	ReadName, RawCigar, RawSeq, RawQual, RawTags                []byte
}

// FillFields materializes only the fields tmpl selects for row idx, skipping
// the fetch-and-decompress of every column tmpl does not name. This is what
// lets a scan that only needs a handful of columns (e.g. the depth engine's
// RefID/Pos/Mapq/RawCigar) avoid paying for the variable-length blocks
// (ReadName, RawSeq, RawQual, RawTags) it has no use for.
func (r *Reader) FillFields(idx uint32, tmpl Template) (PartialRecord, error) {
	var p PartialRecord
	for f := range tmpl {
		if !tmpl[f] {
			continue
		}
		var (
			data []byte
			err  error
		)
		if record.TypeOf(f) == record.Variable {
			data, err = r.VariableField(f, idx)
		} else {
			data, err = r.FixedField(f, idx)
		}
		if err != nil {
			return PartialRecord{}, err
		}
		switch f {
		case record.RefID:
			p.RefID = data
		case record.Pos:
			p.Pos = data
		case record.Mapq:
			p.Mapq = data
		case record.Flags:
			p.Flags = data
		case record.NextRefID:
			p.NextRefID = data
		case record.NextPos:
			p.NextPos = data
		case record.TemplateLength:
			p.TemplateLength = data
		case record.ReadName:
			p.ReadName = data
		case record.RawCigar:
			p.RawCigar = data
		case record.RawSeq:
			p.RawSeq = data
		case record.RawQual:
			p.RawQual = data
		case record.RawTags:
			p.RawTags = data
		}
	}
	return p, nil
}

// FillRecord reconstructs row idx as a record.Raw, materializing every
// data-bearing field. Callers that only need a subset of fields should use
// FillFields with a narrower Template instead.
func (r *Reader) FillRecord(idx uint32) (record.Raw, error) {
	p, err := r.FillFields(idx, fullTemplate)
	if err != nil {
		return nil, err
	}
	return record.Assembled(
		int32(binary.LittleEndian.Uint32(p.RefID)), int32(binary.LittleEndian.Uint32(p.Pos)),
		p.Mapq[0], binary.LittleEndian.Uint16(p.Flags),
		int32(binary.LittleEndian.Uint32(p.NextRefID)), int32(binary.LittleEndian.Uint32(p.NextPos)), int32(binary.LittleEndian.Uint32(p.TemplateLength)),
		p.ReadName, p.RawCigar, p.RawSeq, p.RawQual, p.RawTags,
	), nil
}

// FindLeftmostBlock returns the index of the first block in fm.Blocks whose
// MaxValue is >= the target refID, using RefID's block stats so the depth
// engine can skip blocks whose stats rule out overlap entirely. It returns
// len(fm.Blocks) if no block qualifies.
func FindLeftmostBlock(fm FieldMeta, refID int32) int {
	return sort.Search(len(fm.Blocks), func(i int) bool {
		b := fm.Blocks[i]
		return b.MaxValue == nil || CompareRefID(b.MaxValue, refID) >= 0
	})
}

// FindRightmostBlock returns one past the index of the last block in
// fm.Blocks whose MinValue is <= the target refID.
func FindRightmostBlock(fm FieldMeta, refID int32) int {
	return sort.Search(len(fm.Blocks), func(i int) bool {
		b := fm.Blocks[i]
		return b.MinValue != nil && CompareRefID(b.MinValue, refID) > 0
	})
}

// RefIDScanRange narrows the row range the depth engine needs to scan for a
// given reference id, using the RefID column's per-block min/max stats. It
// reports ok=false when the leftmost qualifying block's MinValue rules the
// reference out entirely (it is simply absent from the file). This does not
// assume a uniform block stride: it reads the true cumulative row count at
// the block boundary, which is exact even when the last block is partial.
func (r *Reader) RefIDScanRange(refID int32) (start, end uint32, ok bool) {
	c, present := r.columns[record.RefID.String()]
	if !present || len(c.meta.Blocks) == 0 {
		return 0, 0, false
	}
	left := FindLeftmostBlock(c.meta, refID)
	if left >= len(c.meta.Blocks) {
		return 0, 0, false
	}
	if b := c.meta.Blocks[left]; b.MinValue != nil && CompareRefID(b.MinValue, refID) > 0 {
		return 0, 0, false
	}
	right := FindRightmostBlock(c.meta, refID)
	return c.cumulative[left], c.cumulative[right], true
}
