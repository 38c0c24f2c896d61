package columnar

import (
	"bytes"
	"encoding/binary"

	"github.com/grailbio/gbam/record"
)

// compareBytes orders two raw field values according to the field's natural
// type. Fixed integer fields compare numerically; everything else falls
// back to byte-lexicographic order, which is the only ordering
// variable-length fields can meaningfully have.
func compareBytes(f record.Field, a, b []byte) int {
	switch f {
	case record.RefID, record.Pos, record.NextRefID, record.NextPos, record.TemplateLength:
		av := int32(binary.LittleEndian.Uint32(a))
		bv := int32(binary.LittleEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case record.Flags:
		av := binary.LittleEndian.Uint16(a)
		bv := binary.LittleEndian.Uint16(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case record.Mapq:
		return int(a[0]) - int(b[0])
	default:
		return bytes.Compare(a, b)
	}
}

// Stats tracks the running min/max of a field's raw bytes across one open
// block. A nil Stats is a valid no-op collector.
type Stats struct {
	field     record.Field
	min, max  []byte
	collected bool
}

// NewStats creates a collector for field f.
func NewStats(f record.Field) *Stats {
	return &Stats{field: f}
}

// Observe folds one record's field value into the running min/max.
func (s *Stats) Observe(value []byte) {
	if s == nil {
		return
	}
	if !s.collected {
		s.min = append([]byte(nil), value...)
		s.max = append([]byte(nil), value...)
		s.collected = true
		return
	}
	if compareBytes(s.field, value, s.min) < 0 {
		s.min = append(s.min[:0], value...)
	}
	if compareBytes(s.field, value, s.max) > 0 {
		s.max = append(s.max[:0], value...)
	}
}

// MinMax returns the accumulated min/max, or (nil, nil, false) if Observe was
// never called.
func (s *Stats) MinMax() (min, max []byte, ok bool) {
	if s == nil || !s.collected {
		return nil, nil, false
	}
	return append([]byte(nil), s.min...), append([]byte(nil), s.max...), true
}

// Reset clears the collector so the next block can reuse it.
func (s *Stats) Reset() {
	if s == nil {
		return
	}
	s.collected = false
}

// CompareRefID compares two RefID-shaped 4-byte LE signed values. It is
// exported for the depth engine's block-selection binary search, which
// compares a target ref id against block MinValue/MaxValue.
func CompareRefID(a []byte, refID int32) int {
	av := int32(binary.LittleEndian.Uint32(a))
	switch {
	case av < refID:
		return -1
	case av > refID:
		return 1
	default:
		return 0
	}
}
