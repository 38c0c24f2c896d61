package columnar

import (
	"io"

	goerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/gbam/record"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

// SizeLimit is the soft per-block byte cap. It is a tuning constant, not a
// hard cap: a single oversized record is always admitted even if it
// overflows the limit.
const SizeLimit = 64 << 10

// Sink is what a Writer writes to: it must support sequential writes and an
// absolute seek back to the start, since Finish rewrites the FileInfo
// preamble after the footer location is known.
type Sink interface {
	io.Writer
	io.Seeker
}

// fieldBuffer accumulates bytes for one field (or one field's companion
// index) until SizeLimit is reached, then hands itself to the compressor
// pool under its own footer name.
type fieldBuffer struct {
	field    record.Field
	name     string
	buf      []byte
	numItems uint32
	nextSeq  int // per-buffer ordering_key counter
	stats    *Stats
	codec    Codec

	// pending holds the min/max recorded at submission time for each
	// ordering_key still awaiting its compressed Result: min/max are known
	// before compression finishes, size/seekpos only after.
	pending map[int]pendingMeta
}

func newFieldBuffer(f record.Field, name string, codec Codec, collectStats bool) *fieldBuffer {
	fb := &fieldBuffer{
		field:   f,
		name:    name,
		buf:     make([]byte, 0, SizeLimit),
		codec:   codec,
		pending: make(map[int]pendingMeta),
	}
	if collectStats {
		fb.stats = NewStats(f)
	}
	return fb
}

// append adds data to the buffer, closing (via flush) first if the buffer is
// already non-empty and would overflow SizeLimit. A single record larger
// than SizeLimit is still admitted whole once the buffer is empty. It is
// only used for self-governing buffers (fixed fields, and variable data
// fields); a companion index buffer is flushed in lockstep with its data
// buffer instead -- see PushRecord.
func (fb *fieldBuffer) append(w *Writer, data []byte) {
	if len(fb.buf) > 0 && len(fb.buf)+len(data) > SizeLimit {
		w.flush(fb)
	}
	fb.rawAppend(data)
}

// rawAppend adds data without considering SizeLimit at all.
func (fb *fieldBuffer) rawAppend(data []byte) {
	fb.buf = append(fb.buf, data...)
	fb.numItems++
	if fb.stats != nil {
		fb.stats.Observe(data)
	}
}

// pendingMeta stashes per-ordering-key stats that are only known at
// submission time (min/max), so commitBlock can merge them in once the
// compressed size and seek position are known too.
type pendingMeta struct {
	min, max []byte
}

// Writer transposes a stream of RawRecords into per-field compressed blocks
// plus a JSON metadata footer.
type Writer struct {
	sink       Sink
	pool       *Pool
	codec      Codec
	meta       *FileMeta
	fields     map[record.Field]*fieldBuffer
	indexBuf   map[record.Field]*fieldBuffer // companion index buffers for variable fields
	byName     map[string]*fieldBuffer
	totalBytes uint64
	err        goerrors.Once
	finished   bool
}

// New creates a Writer. sink must be writable and seekable; Finish is
// mandatory, since without it the footer is never written and the file is
// unreadable.
func New(sink Sink, codec Codec, threadCount int, refSeqs []RefSeq) *Writer {
	w := &Writer{
		sink:     sink,
		pool:     NewPool(threadCount),
		codec:    codec,
		meta:     NewFileMeta(codec, refSeqs),
		fields:   make(map[record.Field]*fieldBuffer),
		indexBuf: make(map[record.Field]*fieldBuffer),
		byName:   make(map[string]*fieldBuffer),
	}
	if _, err := sink.Seek(FileInfoSize, io.SeekStart); err != nil {
		w.err.Set(errors.Wrap(err, "columnar: reserve file header"))
		return w
	}
	for _, f := range record.DataFields() {
		name := f.String()
		fb := newFieldBuffer(f, name, codec, true)
		w.fields[f] = fb
		w.byName[name] = fb
		w.meta.CodecPerField[name] = codec

		if record.TypeOf(f) == record.Variable {
			idxName := record.IndexFieldName(f)
			idx := newFieldBuffer(f, idxName, codec, false)
			w.indexBuf[f] = idx
			w.byName[idxName] = idx
			w.meta.CodecPerField[idxName] = codec
		}
	}
	return w
}

// PushRecord admits one record, extracting every data-bearing field's bytes
// and appending them (plus, for variable fields, the companion index entry)
// to that field's open block.
func (w *Writer) PushRecord(r record.Raw) {
	if w.err.Err() != nil {
		return
	}
	if err := r.Validate(); err != nil {
		w.err.Set(err)
		return
	}
	for _, f := range record.DataFields() {
		data := r.GetBytes(f)
		fb := w.fields[f]

		if record.TypeOf(f) != record.Variable {
			fb.append(w, data)
			continue
		}

		// A variable field's index entry records a cumulative byte offset
		// within the field's *current* data block. That is only decodable
		// on read if the index buffer closes its block at exactly the same
		// record boundary as the data buffer -- so the index buffer never
		// makes its own closure decision; it is force-flushed here,
		// alongside the data buffer, whenever the data buffer closes.
		idx := w.indexBuf[f]
		if len(fb.buf) > 0 && len(fb.buf)+len(data) > SizeLimit {
			w.flush(fb)
			w.flush(idx)
		}
		fb.rawAppend(data)

		var entry [record.IndexFieldSize]byte
		record.PutIndexEntry(entry[:], uint32(len(fb.buf)))
		idx.rawAppend(entry[:])
	}
}

// flush schedules fb's current contents for compression and swaps in a
// fresh buffer. A block with zero items is a no-op.
func (w *Writer) flush(fb *fieldBuffer) {
	if fb.numItems == 0 {
		return
	}
	// Retrieve before submit: this is what keeps exactly threadCount results
	// outstanding for the pool's whole lifetime (see NewPool's doc comment).
	if result := w.pool.GetCompressedBlock(); result.Buf != nil {
		w.commitBlock(result)
	}

	orderingKey := fb.nextSeq
	fb.nextSeq++

	var minV, maxV []byte
	if fb.stats != nil {
		minV, maxV, _ = fb.stats.MinMax()
		fb.stats.Reset()
	}
	fb.pending[orderingKey] = pendingMeta{min: minV, max: maxV}

	w.pool.Submit(Task{
		OrderingKey:       orderingKey,
		Field:             fb.field,
		Name:              fb.name,
		NumItems:          fb.numItems,
		UncompressedBytes: fb.buf,
		Codec:             fb.codec,
	})

	fb.buf = make([]byte, 0, SizeLimit)
	fb.numItems = 0
}

// commitBlock writes a compressed block to the sink and records its
// BlockMeta at its ordering_key: compressed blocks may complete out of
// submission order, but the footer's block lists are indexed by
// ordering_key so they reflect submission order regardless.
func (w *Writer) commitBlock(result Result) {
	fb := w.byName[result.Name]
	pm := fb.pending[result.OrderingKey]
	delete(fb.pending, result.OrderingKey)

	seekPos, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		w.err.Set(errors.Wrap(err, "columnar: seek current"))
		return
	}
	if _, err := w.sink.Write(result.Buf); err != nil {
		w.err.Set(errors.Wrap(err, "columnar: write block"))
		return
	}
	w.totalBytes += uint64(len(result.Buf))

	fm := w.meta.Fields[result.Name]
	if need := result.OrderingKey + 1; len(fm.Blocks) < need {
		grownBlocks := make([]BlockMeta, need)
		copy(grownBlocks, fm.Blocks)
		fm.Blocks = grownBlocks
		grownSizes := make([]uint32, need)
		copy(grownSizes, fm.BlockSizes)
		fm.BlockSizes = grownSizes
	}
	fm.Blocks[result.OrderingKey] = BlockMeta{
		SeekPos:  uint64(seekPos),
		NumItems: result.NumItems,
		MinValue: pm.min,
		MaxValue: pm.max,
	}
	fm.BlockSizes[result.OrderingKey] = uint32(len(result.Buf))
	w.meta.Fields[result.Name] = fm
}

// Err returns the first error encountered so far, if any (pool errors, sink
// I/O errors, or malformed records).
func (w *Writer) Err() error {
	if err := w.err.Err(); err != nil {
		return err
	}
	return w.pool.Err()
}

// Finish closes every non-empty field's block, drains the compressor pool,
// writes the JSON footer, and backpatches the FileInfo preamble. It is
// mandatory: without it the footer is never written.
func (w *Writer) Finish() (uint64, error) {
	if w.finished {
		return w.totalBytes, w.Err()
	}
	w.finished = true

	// Every buffer here shares one sink and one pool, so closing them has to
	// stay sequential -- commitBlock's seek-then-write pair is not safe to
	// run concurrently against a single Sink.
	for _, fb := range w.allBuffers() {
		w.flush(fb)
	}

	for _, result := range w.pool.Finish() {
		w.commitBlock(result)
	}
	if err := w.Err(); err != nil {
		return w.totalBytes, err
	}

	metaStart, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.totalBytes, errors.Wrap(err, "columnar: seek before footer")
	}
	metaBytes, err := w.meta.Marshal()
	if err != nil {
		return w.totalBytes, err
	}
	if _, err := w.sink.Write(metaBytes); err != nil {
		return w.totalBytes, errors.Wrap(err, "columnar: write footer")
	}
	w.totalBytes += uint64(len(metaBytes))

	totalBytes, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.totalBytes, errors.Wrap(err, "columnar: seek end")
	}
	crc := CRC32(metaBytes)
	if _, err := w.sink.Seek(0, io.SeekStart); err != nil {
		return w.totalBytes, errors.Wrap(err, "columnar: rewind")
	}
	fi := FileInfo{Version: FormatVersion, MetaSeek: uint64(metaStart), CRC32: crc}
	if _, err := w.sink.Write(fi.Marshal()); err != nil {
		return w.totalBytes, errors.Wrap(err, "columnar: write file header")
	}
	vlog.VI(1).Infof("columnar: wrote %d bytes, footer at %d", totalBytes, metaStart)
	return uint64(totalBytes), nil
}

func (w *Writer) allBuffers() []*fieldBuffer {
	bufs := make([]*fieldBuffer, 0, len(w.fields)+len(w.indexBuf))
	for _, f := range record.DataFields() {
		bufs = append(bufs, w.fields[f])
		if record.TypeOf(f) == record.Variable {
			bufs = append(bufs, w.indexBuf[f])
		}
	}
	return bufs
}
