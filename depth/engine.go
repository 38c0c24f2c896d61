package depth

import (
	"encoding/binary"

	"v.io/x/lib/vlog"

	"github.com/grailbio/gbam/circular"
	"github.com/grailbio/gbam/columnar"
	"github.com/grailbio/gbam/record"
	"github.com/pkg/errors"
)

// Opts configures a Run.
type Opts struct {
	// Threads bounds the depth engine's per-reference worker ring at
	// min(Threads, RingCap).
	Threads int
	// MinMapQ filters out records below this mapping quality before they
	// contribute to the sweep line.
	MinMapQ uint32
	// MergeTolerance coalesces query intervals on the same chromosome that
	// are within this many bases of each other before scanning, so a BED
	// file with many adjacent small regions sweeps each covered stretch
	// once instead of once per region. 0 merges only abutting/overlapping
	// intervals.
	MergeTolerance uint32
}

// RingCap is the hard ceiling on concurrent per-reference workers.
const RingCap = 8

// DefaultOpts is a single-worker configuration with no MAPQ filter and no
// interval coalescing beyond overlapping or abutting intervals.
var DefaultOpts = Opts{Threads: 1, MinMapQ: 0}

func ringSize(threads int) int {
	if threads < 1 {
		threads = 1
	}
	if threads > RingCap {
		return RingCap
	}
	return threads
}

// coveragePool hands out reusable int64 coverage slices sized to the
// longest reference in the file, so the ring never allocates once warmed up.
type coveragePool struct {
	free     chan []int64
	capacity int
}

func newCoveragePool(slots, capacity int) *coveragePool {
	p := &coveragePool{free: make(chan []int64, slots), capacity: capacity}
	for i := 0; i < slots; i++ {
		p.free <- make([]int64, 0, capacity)
	}
	return p
}

func (p *coveragePool) get() []int64 {
	buf := <-p.free
	if cap(buf) < p.capacity {
		buf = make([]int64, 0, p.capacity)
	}
	return buf[:0]
}

func (p *coveragePool) put(buf []int64) {
	p.free <- buf
}

// refResult is the outcome of computing one reference's coverage array, the
// unit a ring slot's worker goroutine reports back.
type refResult struct {
	chr string
	cov []int64
	err error
}

// scanTemplate selects the only columns the sweep-line scan reads: it never
// touches ReadName/RawSeq/RawQual/RawTags, so those blocks are never
// decompressed during a depth scan.
var scanTemplate = columnar.NewTemplate(record.RefID, record.Pos, record.Mapq, record.RawCigar)

func computeCoverage(reader *columnar.Reader, refID int32, refLen uint32, minMapQ uint32, buf []int64) ([]int64, error) {
	cov := buf
	if cap(cov) < int(refLen)+1 {
		cov = make([]int64, 0, int(refLen)+1)
	}
	cov = cov[:refLen+1]
	for i := range cov {
		cov[i] = 0
	}

	start, end, ok := reader.RefIDScanRange(refID)
	if ok {
		for idx := start; idx < end; idx++ {
			rec, err := reader.FillFields(idx, scanTemplate)
			if err != nil {
				return nil, errors.Wrapf(err, "depth: fill record %d", idx)
			}
			if int32(binary.LittleEndian.Uint32(rec.RefID)) != refID {
				continue
			}
			if minMapQ > 0 && uint32(rec.Mapq[0]) < minMapQ {
				continue
			}
			pos := int32(binary.LittleEndian.Uint32(rec.Pos))
			if pos < 0 {
				continue
			}
			coverage := record.BaseCoverage(rec.RawCigar)
			s := uint32(pos)
			e := s + coverage
			if e > refLen {
				e = refLen
			}
			if s >= uint32(len(cov)) {
				continue
			}
			cov[s]++
			cov[e]--
		}
	}

	var acc int64
	for i := range cov {
		acc += cov[i]
		cov[i] = acc
	}
	return cov, nil
}

// Engine runs a depth query over a columnar file.
type Engine struct {
	opts   Opts
	reader *columnar.Reader
	pool   *coveragePool
}

// NewEngine builds an Engine bound to reader. reader is cloned once per
// concurrent worker, so the caller's reader is left untouched.
func NewEngine(reader *columnar.Reader, opts Opts) *Engine {
	refSeqs := reader.Meta().RefSeqs
	var longest int32
	for _, rs := range refSeqs {
		if rs.Length > longest {
			longest = rs.Length
		}
	}
	slots := ringSize(opts.Threads)
	// Round the per-slot buffer capacity up to the next power of 2 above the
	// longest reference length, which leaves room for the extra slot
	// computeCoverage needs. Each NewEngine call allocates its own buffers.
	capacity := int(longest) + 1
	if capacity > 1 {
		capacity = circular.NextExp2(capacity - 1)
	}
	return &Engine{
		opts:   opts,
		reader: reader,
		pool:   newCoveragePool(slots, capacity),
	}
}

// Run executes queries against the file and writes matching rows to p. Up to
// min(Threads, RingCap) references are scanned concurrently, but results are
// handed to the printer in file ref_seqs order regardless of worker
// completion order, keeping output stable.
func (e *Engine) Run(queries QuerySet, p *Printer) error {
	refSeqs := e.reader.Meta().RefSeqs
	if len(queries) == 0 {
		queries = make(QuerySet, len(refSeqs))
		for _, rs := range refSeqs {
			queries[rs.Name] = []Interval{{Begin: 0, End: uint32(rs.Length - 1)}}
		}
	} else {
		queries = CoalesceWithTolerance(queries, e.opts.MergeTolerance)
	}
	warnUnknownReferences(queries, refSeqs)

	ringCap := ringSize(e.opts.Threads)
	slots := make([]chan refResult, ringCap)

	idx := 0
	refIdx := 0
	joined := 0
	total := len(refSeqs)

	spawn := func(refIdxToSpawn int) {
		rs := refSeqs[refIdxToSpawn]
		refID := int32(refIdxToSpawn)
		buf := e.pool.get()
		ch := make(chan refResult, 1)
		slots[idx] = ch
		workerReader := e.reader.Clone()
		minMapQ := e.opts.MinMapQ
		go func() {
			cov, err := computeCoverage(workerReader, refID, uint32(rs.Length), minMapQ, buf)
			ch <- refResult{chr: rs.Name, cov: cov, err: err}
		}()
	}

	for joined < total {
		if slots[idx] != nil {
			res := <-slots[idx]
			slots[idx] = nil
			joined++
			if res.err != nil {
				return res.err
			}
			if intervals, want := queries[res.chr]; want {
				p.SetChromosome(res.chr)
				for _, iv := range intervals {
					hi := iv.End
					if int(hi) >= len(res.cov) {
						hi = uint32(len(res.cov) - 1)
					}
					for coord := iv.Begin; coord <= hi; coord++ {
						if res.cov[coord] > 0 {
							if err := p.Write(uint64(coord), res.cov[coord]); err != nil {
								return errors.Wrap(err, "depth: write output row")
							}
						}
					}
				}
			}
			e.pool.put(res.cov)
		}

		if refIdx < total {
			spawn(refIdx)
			refIdx++
		}

		idx++
		if idx == ringCap {
			idx = 0
		}
	}

	if err := p.Flush(); err != nil {
		return errors.Wrap(err, "depth: flush output")
	}
	vlog.VI(1).Infof("depth: scanned %d references with %d workers", total, ringCap)
	return nil
}

// warnUnknownReferences logs (without aborting) every chromosome name in
// queries that does not match any entry in refSeqs. Run only ever iterates
// refSeqs, so such a query would otherwise be silently dropped.
func warnUnknownReferences(queries QuerySet, refSeqs []columnar.RefSeq) {
	for chr := range queries {
		if columnar.RefSeqIndex(refSeqs, chr) < 0 {
			vlog.Errorf("depth: reference %q not found in file, skipping query", chr)
		}
	}
}
